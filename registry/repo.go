package registry

import "context"

// Store defines the interface for session record persistence.
// Implementations must guarantee that Put replaces any existing record for
// the same user key (linearizable per user), and must handle concurrent
// access safely.
type Store interface {
	// Put creates or replaces the record for record.UserID
	Put(ctx context.Context, record SessionRecord) error

	// Get retrieves the current record for a user.
	// Returns errors.ErrRecordNotFound when no record exists.
	Get(ctx context.Context, userID string) (SessionRecord, error)

	// Delete removes the record for a user. Deleting an absent record is
	// not an error.
	Delete(ctx context.Context, userID string) error
}
