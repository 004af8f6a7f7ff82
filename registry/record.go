package registry

import "time"

// SessionRecord is the single row of session authority per user. At most one
// record exists per UserID at any time; writing a new one for the same user
// replaces the old row, which is what invalidates every other device.
type SessionRecord struct {
	UserID   string    `json:"user_id"`
	Token    string    `json:"token"` // Opaque credential, compared by equality only
	IssuedAt time.Time `json:"issued_at"`
}
