package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnspotify/server/internal/domain"
	redispkg "github.com/dnspotify/server/pkg/redis"
)

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redispkg.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, time.Hour), mr
}

func TestStore_OpenGetClose(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	sess, err := store.Open(ctx, "u1", domain.RoleArtist, "", 1)
	require.NoError(t, err)
	assert.Equal(t, "default", sess.DeviceID)
	assert.True(t, mr.Exists(redispkg.SessionKey(sess.ID)))

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleArtist, got.Role)
	assert.Equal(t, "u1", got.UserID)

	require.NoError(t, store.Close(ctx, sess))
	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestStore_Expires(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	sess, err := store.Open(ctx, "u1", domain.RoleListener, "d1", 1)
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestStore_CloseAll(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	a, err := store.Open(ctx, "u1", domain.RoleListener, "phone", 1)
	require.NoError(t, err)
	b, err := store.Open(ctx, "u1", domain.RoleListener, "laptop", 1)
	require.NoError(t, err)
	other, err := store.Open(ctx, "u2", domain.RoleListener, "phone", 1)
	require.NoError(t, err)

	ids, err := store.CloseAll(ctx, "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

	_, err = store.Get(ctx, a.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = store.Get(ctx, other.ID)
	assert.NoError(t, err)
}

func TestManager_ResolveStaleToken(t *testing.T) {
	store, _ := setupStore(t)
	m := NewManager(store, NewViews(func(context.Context, string) (*ViewData, error) { return nil, nil }))
	ctx := context.Background()

	sess, err := m.Open(ctx, "u1", domain.RoleListener, "d", 2)
	require.NoError(t, err)

	_, err = m.Resolve(ctx, sess.ID, 1)
	assert.ErrorIs(t, err, ErrStaleToken)

	got, err := m.Resolve(ctx, sess.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
}

func TestManager_CloseDropsView(t *testing.T) {
	store, _ := setupStore(t)
	views := NewViews(func(context.Context, string) (*ViewData, error) { return &ViewData{}, nil })
	m := NewManager(store, views)
	ctx := context.Background()

	sess, err := m.Open(ctx, "u1", domain.RoleListener, "d", 1)
	require.NoError(t, err)
	_, err = m.View(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, 1, views.Len())

	require.NoError(t, m.CloseAll(ctx, "u1"))
	assert.Equal(t, 0, views.Len())
}

func TestContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	sess := &Session{ID: "s"}
	assert.Same(t, sess, FromContext(WithContext(context.Background(), sess)))
}

func TestView_LikeToggleTwice(t *testing.T) {
	v := newView("u1", nil)

	prior, next := v.Toggle(domain.RelationLike, "s1", 5)
	assert.False(t, prior.Active)
	assert.EqualValues(t, 5, prior.LikesCount)
	assert.True(t, next.Active)
	assert.EqualValues(t, 6, next.LikesCount)

	_, next = v.Toggle(domain.RelationLike, "s1", 999)
	assert.False(t, next.Active)
	assert.EqualValues(t, 5, next.LikesCount)
}

func TestView_CountFlooredAtZero(t *testing.T) {
	v := newView("u1", &ViewData{Liked: []string{"s1"}})
	_, next := v.Toggle(domain.RelationLike, "s1", 0)
	assert.False(t, next.Active)
	assert.EqualValues(t, 0, next.LikesCount)
}

func TestView_Restore(t *testing.T) {
	v := newView("u1", nil)
	prior, _ := v.Toggle(domain.RelationLike, "s1", 5)

	v.Restore(domain.RelationLike, "s1", prior)
	assert.False(t, v.Has(domain.RelationLike, "s1"))
	_, ok := v.LikeCount("s1")
	assert.False(t, ok)
}

func TestView_RestoreCountKeepsEdge(t *testing.T) {
	v := newView("u1", nil)
	v.SetLikeCount("s1", 5)
	prior, _ := v.Toggle(domain.RelationLike, "s1", 0)

	v.RestoreCount("s1", prior)
	assert.True(t, v.Has(domain.RelationLike, "s1"))
	n, ok := v.LikeCount("s1")
	require.True(t, ok)
	assert.EqualValues(t, 5, n)
}

func TestView_Members(t *testing.T) {
	v := newView("u1", &ViewData{Favourites: []string{"b", "a"}, Following: []string{"x"}})
	assert.Equal(t, []string{"a", "b"}, v.Members(domain.RelationFavourite))
	assert.Equal(t, []string{"x"}, v.Members(domain.RelationFollow))
	assert.Empty(t, v.Members(domain.RelationLike))
}

func TestViews_SingleLoad(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	views := NewViews(func(ctx context.Context, userID string) (*ViewData, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &ViewData{Liked: []string{"s1"}}, nil
	})
	sess := &Session{ID: "sess", UserID: "u1"}

	var wg sync.WaitGroup
	results := make([]*View, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := views.Get(context.Background(), sess)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	for _, v := range results {
		assert.Same(t, results[0], v)
	}
	assert.True(t, results[0].Has(domain.RelationLike, "s1"))
}

func TestViews_LoadErrorNotCached(t *testing.T) {
	fail := true
	views := NewViews(func(context.Context, string) (*ViewData, error) {
		if fail {
			return nil, errors.New("db down")
		}
		return &ViewData{}, nil
	})
	sess := &Session{ID: "sess", UserID: "u1"}

	_, err := views.Get(context.Background(), sess)
	assert.Error(t, err)

	fail = false
	_, err = views.Get(context.Background(), sess)
	assert.NoError(t, err)
}

func TestManager_PruneDropsExpiredViews(t *testing.T) {
	store, mr := setupStore(t)
	views := NewViews(func(context.Context, string) (*ViewData, error) { return &ViewData{}, nil })
	m := NewManager(store, views)
	ctx := context.Background()

	old, err := m.Open(ctx, "u1", domain.RoleListener, "d1", 1)
	require.NoError(t, err)
	_, err = m.View(ctx, old)
	require.NoError(t, err)

	mr.FastForward(50 * time.Minute)
	fresh, err := m.Open(ctx, "u2", domain.RoleListener, "d2", 1)
	require.NoError(t, err)
	_, err = m.View(ctx, fresh)
	require.NoError(t, err)

	mr.FastForward(20 * time.Minute)
	n, err := m.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{fresh.ID}, views.SessionIDs())

	n, err = m.Prune(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestManager_ResolveExpiredDropsView(t *testing.T) {
	store, mr := setupStore(t)
	views := NewViews(func(context.Context, string) (*ViewData, error) { return &ViewData{}, nil })
	m := NewManager(store, views)
	ctx := context.Background()

	sess, err := m.Open(ctx, "u1", domain.RoleListener, "d1", 1)
	require.NoError(t, err)
	_, err = m.View(ctx, sess)
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	_, err = m.Resolve(ctx, sess.ID, 1)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Zero(t, views.Len())
}

func TestViews_InvalidatedLoadNotCached(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	views := NewViews(func(context.Context, string) (*ViewData, error) {
		close(started)
		<-release
		return &ViewData{}, nil
	})
	laptop := &Session{ID: "laptop", UserID: "u1"}

	done := make(chan *View, 1)
	go func() {
		v, err := views.Get(context.Background(), laptop)
		assert.NoError(t, err)
		done <- v
	}()
	<-started
	views.DropUser("u1", "phone")
	close(release)

	assert.NotNil(t, <-done)
	assert.Zero(t, views.Len())
}

func TestStore_Alive(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	sess, err := store.Open(ctx, "u1", domain.RoleListener, "d1", 1)
	require.NoError(t, err)

	alive, err := store.Alive(ctx, []string{sess.ID, "gone"})
	require.NoError(t, err)
	assert.True(t, alive[sess.ID])
	assert.False(t, alive["gone"])
}
