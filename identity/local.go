package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	apperrors "github.com/coursekit/coursekit/internal/errors"
	"github.com/coursekit/coursekit/users"
)

var _ Provider = (*LocalProvider)(nil)

// LocalProvider authenticates against the marketplace's own user repository.
type LocalProvider struct {
	userRepo users.UserRepo
	issuer   *TokenIssuer
	nowTime  func() time.Time
}

// LocalProviderOption modifies a LocalProvider instance.
type LocalProviderOption func(*LocalProvider)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) LocalProviderOption {
	return func(p *LocalProvider) {
		p.nowTime = nowFunc
	}
}

// NewLocalProvider initializes a LocalProvider with required dependencies.
func NewLocalProvider(userRepo users.UserRepo, issuer *TokenIssuer, options ...LocalProviderOption) (*LocalProvider, error) {
	if userRepo == nil {
		return nil, errors.New("[NewLocalProvider] user repo is required")
	}
	if issuer == nil {
		return nil, errors.New("[NewLocalProvider] token issuer is required")
	}

	provider := &LocalProvider{
		userRepo: userRepo,
		issuer:   issuer,
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(provider)
	}
	return provider, nil
}

// SignIn checks the credentials and issues a fresh session token.
func (p *LocalProvider) SignIn(ctx context.Context, creds Credentials) (Credential, error) {
	user, err := p.userRepo.GetByEmail(creds.Email)
	if err != nil {
		// Same error for unknown user and wrong password
		return Credential{}, apperrors.ErrInvalidCredentials
	}
	if user.Blocked {
		return Credential{}, apperrors.ErrUserBlocked
	}
	if !users.CheckPasswordHash(creds.Password, user.PasswordHash) {
		return Credential{}, apperrors.ErrInvalidCredentials
	}

	token, err := p.issuer.Issue(user)
	if err != nil {
		return Credential{}, errors.Wrap(err, "[LocalProvider.SignIn] issue token")
	}

	// Bookkeeping only, a failed timestamp must not block the login
	_ = p.userRepo.SetLastLogin(user.Email)

	return Credential{Token: token, User: user}, nil
}

// SignUp creates a new user and issues its first session token.
func (p *LocalProvider) SignUp(ctx context.Context, creds Credentials, name string, role users.RoleType) (Credential, error) {
	if _, err := p.userRepo.GetByEmail(creds.Email); err == nil {
		return Credential{}, apperrors.ErrUserExists
	}
	if !users.ValidRole(role) {
		return Credential{}, errors.Errorf("[LocalProvider.SignUp] invalid role %q", role)
	}
	if err := users.ValidatePasswordStrength(creds.Password); err != nil {
		return Credential{}, errors.Wrap(err, "[LocalProvider.SignUp] weak password")
	}

	hash, err := users.HashPassword(creds.Password)
	if err != nil {
		return Credential{}, errors.Wrap(err, "[LocalProvider.SignUp] hash password")
	}

	user := &users.User{
		ID:           uuid.New().String(),
		Email:        creds.Email,
		Name:         name,
		PasswordHash: hash,
		Role:         role,
		DateJoined:   p.nowTime(),
	}
	if err := p.userRepo.Upsert(user); err != nil {
		return Credential{}, errors.Wrap(err, "[LocalProvider.SignUp] upsert user")
	}

	token, err := p.issuer.Issue(user)
	if err != nil {
		return Credential{}, errors.Wrap(err, "[LocalProvider.SignUp] issue token")
	}
	return Credential{Token: token, User: user}, nil
}

// SignOut revokes nothing server-side for local tokens; the registry delete
// performed by the session manager is the authoritative logout.
func (p *LocalProvider) SignOut(ctx context.Context, token string) error {
	return nil
}

// UserFromToken resolves the principal a token was issued to.
func (p *LocalProvider) UserFromToken(ctx context.Context, token string) (*users.User, error) {
	userID, err := p.issuer.Subject(token)
	if err != nil {
		return nil, errors.Wrap(err, "[LocalProvider.UserFromToken] subject")
	}
	user, err := p.userRepo.GetByID(userID)
	if err != nil {
		return nil, apperrors.ErrUserNotFound
	}
	if user.Blocked {
		return nil, apperrors.ErrUserBlocked
	}
	return user, nil
}
