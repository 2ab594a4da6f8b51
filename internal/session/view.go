package session

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dnspotify/server/internal/domain"
)

// ViewData seeds a View from the store.
type ViewData struct {
	Liked      []string
	Favourites []string
	Following  []string
}

// Loader fetches the edges of a user.
type Loader func(ctx context.Context, userID string) (*ViewData, error)

// EdgeState is the local state of one edge, plus the song's like count
// for likes.
type EdgeState struct {
	Active     bool
	LikesCount int64
	HasCount   bool
}

// View is the optimistic local state of one session. The mutex guards
// memory only; concurrent toggles are not ordered.
type View struct {
	userID     string
	mu         sync.Mutex
	edges      map[domain.Relation]map[string]bool
	likeCounts map[string]int64
}

func newView(userID string, d *ViewData) *View {
	v := &View{
		userID: userID,
		edges: map[domain.Relation]map[string]bool{
			domain.RelationLike:      {},
			domain.RelationFavourite: {},
			domain.RelationFollow:    {},
		},
		likeCounts: make(map[string]int64),
	}
	if d == nil {
		return v
	}
	for _, id := range d.Liked {
		v.edges[domain.RelationLike][id] = true
	}
	for _, id := range d.Favourites {
		v.edges[domain.RelationFavourite][id] = true
	}
	for _, id := range d.Following {
		v.edges[domain.RelationFollow][id] = true
	}
	return v
}

// Has reports whether the edge is locally active.
func (v *View) Has(rel domain.Relation, target string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.edges[rel][target]
}

// Toggle flips the edge and, for likes, moves the local count by one,
// floored at zero. knownCount seeds the count the first time a song is seen.
// It returns the state before and after.
func (v *View) Toggle(rel domain.Relation, target string, knownCount int64) (prior, next EdgeState) {
	v.mu.Lock()
	defer v.mu.Unlock()

	prior.Active = v.edges[rel][target]
	if rel == domain.RelationLike {
		c, ok := v.likeCounts[target]
		if !ok {
			c = knownCount
		}
		prior.LikesCount, prior.HasCount = c, ok
	}

	next.Active = !prior.Active
	v.setEdge(rel, target, next.Active)

	if rel == domain.RelationLike {
		c := prior.LikesCount
		if next.Active {
			c++
		} else {
			c--
		}
		if c < 0 {
			c = 0
		}
		v.likeCounts[target] = c
		next.LikesCount, next.HasCount = c, true
	}
	return prior, next
}

// Restore puts the edge and its count back to st.
func (v *View) Restore(rel domain.Relation, target string, st EdgeState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.setEdge(rel, target, st.Active)
	if rel == domain.RelationLike {
		v.restoreCount(target, st)
	}
}

// RestoreCount puts only the like count back to st. The edge keeps its
// current state.
func (v *View) RestoreCount(songID string, st EdgeState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.restoreCount(songID, st)
}

// SetLikeCount records the authoritative count returned by the store.
func (v *View) SetLikeCount(songID string, n int64) {
	v.mu.Lock()
	v.likeCounts[songID] = n
	v.mu.Unlock()
}

// LikeCount returns the locally known count.
func (v *View) LikeCount(songID string) (int64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	n, ok := v.likeCounts[songID]
	return n, ok
}

// Members returns the active targets of rel, sorted.
func (v *View) Members(rel domain.Relation) []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, 0, len(v.edges[rel]))
	for id := range v.edges[rel] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (v *View) setEdge(rel domain.Relation, target string, active bool) {
	if active {
		v.edges[rel][target] = true
	} else {
		delete(v.edges[rel], target)
	}
}

func (v *View) restoreCount(songID string, st EdgeState) {
	if st.HasCount {
		v.likeCounts[songID] = st.LikesCount
	} else {
		delete(v.likeCounts, songID)
	}
}

// Views keeps one View per open session. Concurrent first requests of a
// session share a single load.
type Views struct {
	mu    sync.Mutex
	views map[string]*View
	group singleflight.Group
	load  Loader

	// loads in flight by session id, and those invalidated meanwhile
	inflight map[string]string
	stale    map[string]bool
}

// NewViews creates a registry backed by load.
func NewViews(load Loader) *Views {
	return &Views{
		views:    make(map[string]*View),
		load:     load,
		inflight: make(map[string]string),
		stale:    make(map[string]bool),
	}
}

// Get returns the view of sess, loading it on first use.
func (r *Views) Get(ctx context.Context, sess *Session) (*View, error) {
	r.mu.Lock()
	v, ok := r.views[sess.ID]
	r.mu.Unlock()
	if ok {
		return v, nil
	}

	res, err, _ := r.group.Do(sess.ID, func() (interface{}, error) {
		r.mu.Lock()
		if v, ok := r.views[sess.ID]; ok {
			r.mu.Unlock()
			return v, nil
		}
		r.inflight[sess.ID] = sess.UserID
		r.mu.Unlock()

		data, err := r.load(ctx, sess.UserID)

		r.mu.Lock()
		defer r.mu.Unlock()
		stale := r.stale[sess.ID]
		delete(r.inflight, sess.ID)
		delete(r.stale, sess.ID)
		if err != nil {
			return nil, err
		}
		v := newView(sess.UserID, data)
		// A load that raced an invalidation serves this request only.
		if !stale {
			r.views[sess.ID] = v
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*View), nil
}

// Drop forgets the views of the given sessions.
func (r *Views) Drop(sessionIDs ...string) {
	r.mu.Lock()
	for _, id := range sessionIDs {
		delete(r.views, id)
	}
	r.mu.Unlock()
}

// DropUser forgets every view of userID except the one of keep and returns
// how many went. The next request of those sessions reloads from the store.
func (r *Views) DropUser(userID, keep string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, v := range r.views {
		if v.userID == userID && id != keep {
			delete(r.views, id)
			n++
		}
	}
	for id, uid := range r.inflight {
		if uid == userID && id != keep {
			r.stale[id] = true
		}
	}
	return n
}

// SessionIDs returns the sessions that have a loaded view.
func (r *Views) SessionIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.views))
	for id := range r.views {
		ids = append(ids, id)
	}
	return ids
}

// Observe invalidates views on committed relation changes. The session
// that made the change keeps its view; the user's other sessions reload.
// Events from other instances carry the same payload, so their sessions
// are covered too.
func (r *Views) Observe(ev domain.Event) {
	switch ev.Type {
	case domain.EventLikesChanged, domain.EventFavouritesChanged, domain.EventFollowsChanged:
	default:
		return
	}
	kind, userID, ok := domain.ParseTopic(ev.Topic)
	if !ok {
		return
	}
	switch kind {
	case domain.TopicKindUserLikes, domain.TopicKindUserFavourites, domain.TopicKindUserFollows:
	default:
		return
	}
	var origin struct {
		SessionID string `json:"session_id"`
	}
	if len(ev.Data) > 0 {
		_ = json.Unmarshal(ev.Data, &origin)
	}
	r.DropUser(userID, origin.SessionID)
}

// Len returns the number of loaded views.
func (r *Views) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}
