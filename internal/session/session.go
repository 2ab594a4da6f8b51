// Package session holds the explicit session context that replaces global
// "current user" state. A session is opened at sign-in, resolved on every
// authenticated request and closed at sign-out.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dnspotify/server/internal/domain"
	redispkg "github.com/dnspotify/server/pkg/redis"
)

// Session is the record stored per sign-in. Role is cached here once and is
// not re-read from the profile.
type Session struct {
	ID           string      `json:"id"`
	UserID       string      `json:"user_id"`
	Role         domain.Role `json:"role"`
	DeviceID     string      `json:"device_id"`
	TokenVersion int         `json:"token_version"`
	CreatedAt    time.Time   `json:"created_at"`
	ExpiresAt    time.Time   `json:"expires_at"`
}

// Store persists sessions in Redis with a TTL.
type Store struct {
	rdb *redispkg.Client
	ttl time.Duration
	now func() time.Time
}

// NewStore creates a session store.
func NewStore(rdb *redispkg.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{rdb: rdb, ttl: ttl, now: time.Now}
}

// TTL returns the session lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// Open creates and stores a new session.
func (s *Store) Open(ctx context.Context, userID string, role domain.Role, deviceID string, tokenVersion int) (*Session, error) {
	if deviceID == "" {
		deviceID = "default"
	}
	now := s.now()
	sess := &Session{
		ID:           uuid.New().String(),
		UserID:       userID,
		Role:         role,
		DeviceID:     deviceID,
		TokenVersion: tokenVersion,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}

	_, err = s.rdb.Universal().TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, redispkg.SessionKey(sess.ID), data, s.ttl)
		p.SAdd(ctx, redispkg.UserSessionsKey(userID), sess.ID)
		p.Expire(ctx, redispkg.UserSessionsKey(userID), s.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return sess, nil
}

// Get loads a session. Unknown, expired or closed sessions yield
// domain.ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := s.rdb.Get(ctx, redispkg.SessionKey(id))
	if errors.Is(err, redispkg.ErrKeyNotFound) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// Alive reports which of ids still have a stored record.
func (s *Store) Alive(ctx context.Context, ids []string) (map[string]bool, error) {
	alive := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return alive, nil
	}
	cmds := make([]*goredis.IntCmd, len(ids))
	_, err := s.rdb.Universal().Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.Exists(ctx, redispkg.SessionKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("check sessions: %w", err)
	}
	for i, id := range ids {
		if cmds[i].Val() > 0 {
			alive[id] = true
		}
	}
	return alive, nil
}

// Close removes a session.
func (s *Store) Close(ctx context.Context, sess *Session) error {
	_, err := s.rdb.Universal().TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, redispkg.SessionKey(sess.ID))
		p.SRem(ctx, redispkg.UserSessionsKey(sess.UserID), sess.ID)
		return nil
	})
	return err
}

// CloseAll removes every session of a user and returns their ids.
func (s *Store) CloseAll(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, redispkg.UserSessionsKey(userID))
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, redispkg.SessionKey(id))
	}
	keys = append(keys, redispkg.UserSessionsKey(userID))
	if err := s.rdb.Delete(ctx, keys...); err != nil {
		return nil, err
	}
	return ids, nil
}

type ctxKey struct{}

// WithContext stores sess in ctx.
func WithContext(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, sess)
}

// FromContext returns the session in ctx, or nil for anonymous requests.
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(ctxKey{}).(*Session)
	return sess
}
