// Package authority decides whether a held session token is still the one of
// record for a user. It is pure decision logic over the session registry and
// performs no writes.
package authority

import (
	"context"

	apperrors "github.com/coursekit/coursekit/internal/errors"
	"github.com/coursekit/coursekit/registry"
	"github.com/pkg/errors"
)

// Reason classifies why a validation did not come back valid.
type Reason string

const (
	// ReasonNone means the held token matches the record of authority.
	ReasonNone Reason = "none"

	// ReasonSessionReplaced means another login superseded the held token.
	// This is the only outcome that warrants a user-visible message.
	ReasonSessionReplaced Reason = "session_replaced"

	// ReasonNotFound means no record exists for the user - an ordinary
	// logout or expiry, never surfaced as an error.
	ReasonNotFound Reason = "not_found"

	// ReasonLookupError means the registry could not be consulted. Callers
	// must treat this as inconclusive and keep the current session.
	ReasonLookupError Reason = "lookup_error"
)

// Result is the outcome of a validation decision.
type Result struct {
	Valid  bool
	Reason Reason
	Err    error // Set only for ReasonLookupError, for logging
}

// Authority validates held tokens against the session registry.
type Authority struct {
	store registry.Store
}

// New creates an Authority backed by the given record store.
func New(store registry.Store) (*Authority, error) {
	if store == nil {
		return nil, errors.New("[authority.New] store is required")
	}
	return &Authority{store: store}, nil
}

// Validate compares heldToken against the current session record for userID.
// A missing record is an ordinary logout, a differing token means the session
// was replaced elsewhere, and a lookup failure is reported as inconclusive
// rather than as an invalidation.
func (a *Authority) Validate(ctx context.Context, userID, heldToken string) Result {
	record, err := a.store.Get(ctx, userID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrRecordNotFound) {
			return Result{Valid: false, Reason: ReasonNotFound}
		}
		return Result{Valid: false, Reason: ReasonLookupError, Err: err}
	}

	if record.Token != heldToken {
		return Result{Valid: false, Reason: ReasonSessionReplaced}
	}
	return Result{Valid: true, Reason: ReasonNone}
}
