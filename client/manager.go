package client

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/coursekit/coursekit/registry"
)

// SessionManager performs the registry writes for one device: registering a
// freshly issued token after login and deleting the record on explicit
// logout. Both operations fail open - a registry hiccup never blocks the
// login or logout from completing locally.
type SessionManager struct {
	store       registry.Store
	callTimeout time.Duration
	nowTime     func() time.Time
}

// SessionManagerOption modifies a SessionManager instance.
type SessionManagerOption func(*SessionManager)

// WithManagerNowTime sets the now time function (primarily for testing)
func WithManagerNowTime(nowFunc func() time.Time) SessionManagerOption {
	return func(m *SessionManager) {
		m.nowTime = nowFunc
	}
}

// WithManagerCallTimeout bounds each registry call.
func WithManagerCallTimeout(timeout time.Duration) SessionManagerOption {
	return func(m *SessionManager) {
		m.callTimeout = timeout
	}
}

// NewSessionManager creates a session manager over the given record store.
func NewSessionManager(store registry.Store, options ...SessionManagerOption) (*SessionManager, error) {
	if store == nil {
		return nil, errors.New("[NewSessionManager] store is required")
	}

	m := &SessionManager{
		store:       store,
		callTimeout: 5 * time.Second,
		nowTime:     time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Register writes/replaces the session record for userID with token. Called
// once per successful login. Because the write is a replace, any other device
// holding a session for this user is invalidated the instant it commits;
// there is no kick message, only the other device's next failed validation.
// Returns false when the write failed - the caller proceeds with the login
// regardless, since blocking login on a registry hiccup is worse than a
// temporary window without enforcement.
func (m *SessionManager) Register(ctx context.Context, userID, token string) bool {
	ctx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	record := registry.SessionRecord{
		UserID:   userID,
		Token:    token,
		IssuedAt: m.nowTime(),
	}
	if err := m.store.Put(ctx, record); err != nil {
		log.Err(err).Str("user_id", userID).Msg("Session registration failed, continuing with local login")
		return false
	}
	return true
}

// Invalidate deletes the session record on explicit logout. Idempotent, and
// failures are swallowed so the current device always ends up logged out
// locally.
func (m *SessionManager) Invalidate(ctx context.Context, userID string) {
	ctx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	if err := m.store.Delete(ctx, userID); err != nil {
		log.Err(err).Str("user_id", userID).Msg("Session invalidation failed, clearing local state anyway")
	}
}
