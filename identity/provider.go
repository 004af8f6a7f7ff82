// Package identity wraps the opaque sign-in / sign-out primitives the session
// subsystem is layered on. The marketplace only consumes this boundary; the
// provider's internals (password checks, token minting, OIDC federation) are
// not part of the session-uniqueness protocol.
package identity

import (
	"context"
	"sync"

	"github.com/coursekit/coursekit/users"
)

// Credentials are what a user submits to log in.
type Credentials struct {
	Email    string
	Password string
}

// Credential is an issued login: the opaque session token plus the principal
// it was issued to.
type Credential struct {
	Token string
	User  *users.User
}

// Provider is the identity backing service boundary.
type Provider interface {
	// SignIn authenticates the credentials and issues a fresh session token.
	SignIn(ctx context.Context, creds Credentials) (Credential, error)

	// SignUp creates a new principal and issues its first session token.
	SignUp(ctx context.Context, creds Credentials, name string, role users.RoleType) (Credential, error)

	// SignOut revokes the given token with the provider. Best effort.
	SignOut(ctx context.Context, token string) error

	// UserFromToken resolves the principal a token was issued to.
	UserFromToken(ctx context.Context, token string) (*users.User, error)
}

// CredentialStore holds the locally persisted credential for one device or
// tab (the browser's cookie jar, a CLI's keychain file). Nil-credential
// semantics: Current returns nil when nothing is stored.
type CredentialStore interface {
	Current() *Credential
	Save(cred Credential) error
	Clear() error
}

var _ CredentialStore = (*MemoryCredentialStore)(nil)

// MemoryCredentialStore is a process-local credential store, one per
// simulated device in tests.
type MemoryCredentialStore struct {
	mu   sync.Mutex
	cred *Credential
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

func (s *MemoryCredentialStore) Current() *Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred
}

func (s *MemoryCredentialStore) Save(cred Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = &cred
	return nil
}

func (s *MemoryCredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
	return nil
}
