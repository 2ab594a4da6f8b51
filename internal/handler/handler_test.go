package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/localstore"
	"github.com/dnspotify/server/internal/middleware"
	"github.com/dnspotify/server/internal/service"
	"github.com/dnspotify/server/internal/session"
	"github.com/dnspotify/server/pkg/db"
	"github.com/dnspotify/server/pkg/httputil"
	"github.com/dnspotify/server/pkg/logger"
	redispkg "github.com/dnspotify/server/pkg/redis"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memSongs is an in-memory song table.
type memSongs []*domain.Song

func (m memSongs) Create(context.Context, *domain.Song) error { return nil }
func (m memSongs) Upsert(context.Context, *domain.Song) error { return nil }

func (m memSongs) GetByID(_ context.Context, id string) (*domain.Song, error) {
	for _, s := range m {
		if s.ID == id {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrSongNotFound
}

func (m memSongs) List(context.Context) ([]*domain.Song, error) { return m, nil }

func (m memSongs) ListByArtist(_ context.Context, artistID string) ([]*domain.Song, error) {
	var out []*domain.Song
	for _, s := range m {
		if s.ArtistID == artistID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m memSongs) ListByIDs(_ context.Context, ids []string) ([]*domain.Song, error) {
	var out []*domain.Song
	for _, id := range ids {
		for _, s := range m {
			if s.ID == id {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func (m memSongs) Delete(context.Context, string) error                       { return nil }
func (m memSongs) AdjustLikes(context.Context, string, int64) (int64, error) { return 0, nil }
func (m memSongs) IncrementPlays(context.Context, string) error               { return nil }
func (m memSongs) ReconcileLikeCounts(context.Context) (int64, error)         { return 0, nil }

type noFavourites struct{}

func (noFavourites) FavouriteIDs(context.Context, *session.Session) ([]string, error) {
	return nil, nil
}

type tokenTable map[string]*session.Session

func (t tokenTable) Authenticate(_ context.Context, token string) (*session.Session, error) {
	if s, ok := t[token]; ok {
		return s, nil
	}
	return nil, domain.ErrUnauthenticated
}

var tokens = tokenTable{
	"listener": {ID: "s1", UserID: "u1", Role: domain.RoleListener, DeviceID: "d1"},
	"artist":   {ID: "s2", UserID: "a1", Role: domain.RoleArtist, DeviceID: "d2"},
}

func catalogue() memSongs {
	return memSongs{
		{ID: "s1", Title: "Midnight City", ArtistID: "a1", ArtistDisplayName: "M83"},
		{ID: "s2", Title: "Nightcall", ArtistID: "a2", ArtistDisplayName: "Kavinsky"},
		{ID: "s3", Title: "Genesis", ArtistID: "a2", ArtistDisplayName: "Justice"},
	}
}

func newTestRouter(t *testing.T, checker *db.HealthChecker) *gin.Engine {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redispkg.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	store := localstore.New(client)

	songs := catalogue()
	playlists := service.NewPlaylistService(store, songs, logger.Nop())
	catalog := service.NewCatalogService(songs, noFavourites{}, playlists)
	players := service.NewPlayerService(service.PlayerDeps{
		Songs:   songs,
		Catalog: catalog,
		History: store,
		Plays:   songs,
		Logger:  logger.Nop(),
	})
	if checker == nil {
		checker = db.NewHealthChecker()
	}

	return NewRouter(RouterConfig{
		Authenticator:  tokens,
		RateLimiter:    middleware.NewRateLimiter(0, 0, 0, 0),
		AllowedOrigins: []string{"*"},
		Logger:         logger.Nop(),
	}, Handlers{
		Auth:      &AuthHandler{},
		Catalog:   NewCatalogHandler(catalog, nil),
		Player:    NewPlayerHandler(players),
		Playlists: NewPlaylistHandler(playlists),
		Health:    NewHealthHandler(checker, nil),
	})
}

type result struct {
	code int
	resp httputil.Response
}

func do(t *testing.T, r *gin.Engine, method, path, token string, body any) result {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp httputil.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return result{code: w.Code, resp: resp}
}

// decodeData re-decodes the envelope's data into out.
func decodeData(t *testing.T, res result, out any) {
	t.Helper()
	raw, err := json.Marshal(res.resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestRouter_RoleGating(t *testing.T) {
	r := newTestRouter(t, nil)

	res := do(t, r, http.MethodGet, "/api/v1/songs", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.code)
	assert.Equal(t, "UNAUTHENTICATED", res.resp.Error.Code)

	res = do(t, r, http.MethodGet, "/api/v1/songs", "artist", nil)
	assert.Equal(t, http.StatusForbidden, res.code)
	assert.Equal(t, "ROLE_MISMATCH", res.resp.Error.Code)
	details, ok := res.resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, domain.ArtistHome, details["redirect"])

	res = do(t, r, http.MethodGet, "/api/v1/artist/songs", "listener", nil)
	assert.Equal(t, http.StatusForbidden, res.code)

	res = do(t, r, http.MethodGet, "/api/v1/artist/songs", "artist", nil)
	require.Equal(t, http.StatusOK, res.code)
	var own []domain.Song
	decodeData(t, res, &own)
	require.Len(t, own, 1)
	assert.Equal(t, "s1", own[0].ID)
}

func TestRouter_Navigate(t *testing.T) {
	r := newTestRouter(t, nil)

	tests := []struct {
		name   string
		token  string
		path   string
		allow  bool
		target string
	}{
		{"anonymous on landing", "", "/", true, ""},
		{"anonymous on listener page", "", domain.ListenerHome, false, "/"},
		{"artist on listener page", "artist", domain.ListenerHome, false, domain.ArtistHome},
		{"listener at home", "listener", domain.ListenerHome, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := do(t, r, http.MethodGet, "/api/v1/navigate?path="+tt.path, tt.token, nil)
			require.Equal(t, http.StatusOK, res.code)
			var d struct {
				Allow    bool   `json:"allow"`
				Redirect string `json:"redirect"`
			}
			decodeData(t, res, &d)
			assert.Equal(t, tt.allow, d.Allow)
			assert.Equal(t, tt.target, d.Redirect)
		})
	}
}

func TestCatalogHandler_Songs(t *testing.T) {
	r := newTestRouter(t, nil)

	res := do(t, r, http.MethodGet, "/api/v1/songs?q=night", "listener", nil)
	require.Equal(t, http.StatusOK, res.code)
	var songs []domain.Song
	decodeData(t, res, &songs)
	assert.Len(t, songs, 2)

	res = do(t, r, http.MethodGet, "/api/v1/songs?tab=recent", "listener", nil)
	assert.Equal(t, http.StatusBadRequest, res.code)
	assert.Equal(t, "VALIDATION_FAILED", res.resp.Error.Code)
	assert.Equal(t, domain.ErrInvalidTab.Error(), res.resp.Error.Message)

	res = do(t, r, http.MethodGet, "/api/v1/songs?playlist_id=missing", "listener", nil)
	assert.Equal(t, http.StatusNotFound, res.code)
}

func TestPlayerHandler(t *testing.T) {
	r := newTestRouter(t, nil)

	res := do(t, r, http.MethodPost, "/api/v1/player/volume", "listener", map[string]any{"value": 0})
	require.Equal(t, http.StatusOK, res.code)
	res = do(t, r, http.MethodPost, "/api/v1/player/mute", "listener", nil)
	require.Equal(t, http.StatusOK, res.code)
	res = do(t, r, http.MethodPost, "/api/v1/player/mute", "listener", nil)
	require.Equal(t, http.StatusOK, res.code)
	var st struct {
		Volume float64 `json:"volume"`
		Muted  bool    `json:"muted"`
	}
	decodeData(t, res, &st)
	assert.Equal(t, 0.0, st.Volume)
	assert.False(t, st.Muted)

	res = do(t, r, http.MethodPost, "/api/v1/player/volume", "listener", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, res.code)

	res = do(t, r, http.MethodPost, "/api/v1/player/select", "listener", map[string]any{"song_id": "s2"})
	require.Equal(t, http.StatusOK, res.code)
	res = do(t, r, http.MethodPost, "/api/v1/player/select", "listener", map[string]any{"song_id": "s1"})
	require.Equal(t, http.StatusOK, res.code)

	res = do(t, r, http.MethodGet, "/api/v1/history", "listener", nil)
	require.Equal(t, http.StatusOK, res.code)
	var history []domain.Song
	decodeData(t, res, &history)
	require.Len(t, history, 2)
	assert.Equal(t, "s1", history[0].ID)
	assert.Equal(t, "s2", history[1].ID)

	res = do(t, r, http.MethodPost, "/api/v1/player/seek", "listener", map[string]any{"value": 1.5})
	assert.Equal(t, http.StatusBadRequest, res.code)
	assert.Equal(t, domain.ErrInvalidSeek.Error(), res.resp.Error.Message)
}

func TestPlaylistHandler(t *testing.T) {
	r := newTestRouter(t, nil)

	res := do(t, r, http.MethodPost, "/api/v1/playlists", "listener", map[string]any{"name": " Mix "})
	require.Equal(t, http.StatusCreated, res.code)
	var p domain.Playlist
	decodeData(t, res, &p)
	assert.Equal(t, "Mix", p.Name)

	res = do(t, r, http.MethodPost, "/api/v1/playlists/"+p.ID+"/songs", "listener", map[string]any{"song_id": "s3"})
	require.Equal(t, http.StatusOK, res.code)
	res = do(t, r, http.MethodPost, "/api/v1/playlists/"+p.ID+"/songs", "listener", map[string]any{"song_id": "s3"})
	assert.Equal(t, http.StatusBadRequest, res.code)

	res = do(t, r, http.MethodGet, "/api/v1/songs?playlist_id="+p.ID, "listener", nil)
	require.Equal(t, http.StatusOK, res.code)
	var songs []domain.Song
	decodeData(t, res, &songs)
	require.Len(t, songs, 1)
	assert.Equal(t, "s3", songs[0].ID)

	res = do(t, r, http.MethodPost, "/api/v1/playlists", "listener", map[string]any{"name": "   "})
	assert.Equal(t, http.StatusBadRequest, res.code)

	res = do(t, r, http.MethodDelete, "/api/v1/playlists/"+p.ID, "listener", nil)
	require.Equal(t, http.StatusOK, res.code)
	res = do(t, r, http.MethodGet, "/api/v1/playlists", "listener", nil)
	require.Equal(t, http.StatusOK, res.code)
	var all []domain.Playlist
	decodeData(t, res, &all)
	assert.Empty(t, all)
}

func TestHealthHandler(t *testing.T) {
	checker := db.NewHealthChecker()
	checker.Register("postgres", func(context.Context) error { return nil })
	r := newTestRouter(t, checker)

	res := do(t, r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, res.code)
	res = do(t, r, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, res.code)

	checker.Register("redis", func(context.Context) error { return errors.New("connection refused") })
	res = do(t, r, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, res.code)
	assert.Equal(t, "NOT_READY", res.resp.Error.Code)
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
		msg    string
	}{
		{domain.ErrUnauthenticated, http.StatusUnauthorized, "UNAUTHENTICATED", ""},
		{domain.ErrSessionNotFound, http.StatusUnauthorized, "UNAUTHENTICATED", ""},
		{domain.ErrRoleMismatch, http.StatusForbidden, "ROLE_MISMATCH", ""},
		{domain.ErrForbidden, http.StatusForbidden, "FORBIDDEN", ""},
		{domain.ErrSongNotFound, http.StatusNotFound, "NOT_FOUND", domain.ErrSongNotFound.Error()},
		{domain.ErrInvalidTab, http.StatusBadRequest, "VALIDATION_FAILED", domain.ErrInvalidTab.Error()},
		{fmt.Errorf("wrapped: %w", domain.ErrRateLimited), http.StatusTooManyRequests, "RATE_LIMITED", ""},
		{fmt.Errorf("%w: cover", domain.ErrRemoteWrite), http.StatusBadGateway, "REMOTE_WRITE_FAILURE", ""},
		{fmt.Errorf("%w: song 2", domain.ErrPartialUpload), http.StatusBadGateway, "PARTIAL_UPLOAD_FAILURE", ""},
		{errors.New("pq: connection reset"), http.StatusInternalServerError, "INTERNAL", ""},
	}
	for _, tt := range tests {
		t.Run(tt.code+"/"+tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			handleError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var resp httputil.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Error.Code)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, resp.Error.Message)
			}
		})
	}
}

func TestHandlePartial(t *testing.T) {
	partial := fmt.Errorf("%w: upload b.mp3", domain.ErrPartialUpload)
	landed := &service.PublishResult{Songs: []*domain.Song{{ID: "s1"}}, Failed: []string{"b.mp3"}}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	handlePartial(c, partial, true, landed)
	assert.Equal(t, http.StatusMultiStatus, w.Code)
	var resp httputil.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "PARTIAL_UPLOAD_FAILURE", resp.Error.Code)
	assert.NotNil(t, resp.Error.Details)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	handlePartial(c, partial, false, &service.PublishResult{})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
