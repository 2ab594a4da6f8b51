package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/dnspotify/server/internal/domain"
)

// Manager ties the stored record and the in-memory view to one lifecycle.
type Manager struct {
	store *Store
	views *Views
}

// NewManager creates a session manager.
func NewManager(store *Store, views *Views) *Manager {
	return &Manager{store: store, views: views}
}

// Store returns the underlying record store.
func (m *Manager) Store() *Store { return m.store }

// Open starts a session.
func (m *Manager) Open(ctx context.Context, userID string, role domain.Role, deviceID string, tokenVersion int) (*Session, error) {
	return m.store.Open(ctx, userID, role, deviceID, tokenVersion)
}

// Resolve loads a session by id and checks the token version it was issued with.
func (m *Manager) Resolve(ctx context.Context, id string, tokenVersion int) (*Session, error) {
	sess, err := m.store.Get(ctx, id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		m.views.Drop(id)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if sess.TokenVersion != tokenVersion {
		return nil, ErrStaleToken
	}
	return sess, nil
}

// View returns the optimistic view of sess.
func (m *Manager) View(ctx context.Context, sess *Session) (*View, error) {
	return m.views.Get(ctx, sess)
}

// Close ends one session.
func (m *Manager) Close(ctx context.Context, sess *Session) error {
	m.views.Drop(sess.ID)
	if err := m.store.Close(ctx, sess); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// CloseAll ends every session of a user.
func (m *Manager) CloseAll(ctx context.Context, userID string) error {
	ids, err := m.store.CloseAll(ctx, userID)
	if err != nil {
		return fmt.Errorf("close sessions: %w", err)
	}
	m.views.Drop(ids...)
	return nil
}

// Prune drops the views of sessions whose record has expired or was
// removed, and returns how many went.
func (m *Manager) Prune(ctx context.Context) (int, error) {
	ids := m.views.SessionIDs()
	alive, err := m.store.Alive(ctx, ids)
	if err != nil {
		return 0, err
	}
	var gone []string
	for _, id := range ids {
		if !alive[id] {
			gone = append(gone, id)
		}
	}
	m.views.Drop(gone...)
	return len(gone), nil
}

// ErrStaleToken is returned for tokens issued before a password change.
var ErrStaleToken = errors.New("token was revoked")
