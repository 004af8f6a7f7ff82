package identity

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	apperrors "github.com/coursekit/coursekit/internal/errors"
	"github.com/coursekit/coursekit/users"
)

var _ Provider = (*OIDCProvider)(nil)

// OIDCProvider federates sign-in to an external OpenID Connect issuer using
// the resource-owner password grant. The ID token returned by the issuer
// becomes the opaque session token recorded in the registry; the issuer, not
// this process, owns the user database.
type OIDCProvider struct {
	provider     *oidc.Provider
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	userRepo     users.UserRepo // Local mirror of federated principals
}

// OIDCSettings carries the issuer coordinates.
type OIDCSettings struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NewOIDCProvider discovers the issuer and prepares the verifier.
func NewOIDCProvider(ctx context.Context, settings OIDCSettings, userRepo users.UserRepo) (*OIDCProvider, error) {
	if settings.IssuerURL == "" {
		return nil, errors.New("[NewOIDCProvider] issuer URL is required")
	}
	if userRepo == nil {
		return nil, errors.New("[NewOIDCProvider] user repo is required")
	}

	provider, err := oidc.NewProvider(ctx, settings.IssuerURL)
	if err != nil {
		return nil, errors.Wrap(err, "[NewOIDCProvider] oidc.NewProvider")
	}

	return &OIDCProvider{
		provider: provider,
		oauth2Config: &oauth2.Config{
			ClientID:     settings.ClientID,
			ClientSecret: settings.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  settings.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: settings.ClientID}),
		userRepo: userRepo,
	}, nil
}

// SignIn exchanges the credentials at the issuer's token endpoint and
// verifies the resulting ID token.
func (p *OIDCProvider) SignIn(ctx context.Context, creds Credentials) (Credential, error) {
	oauthToken, err := p.oauth2Config.PasswordCredentialsToken(ctx, creds.Email, creds.Password)
	if err != nil {
		return Credential{}, apperrors.Wrapf(apperrors.ErrInvalidCredentials, "token exchange: %v", err)
	}

	rawIDToken, ok := oauthToken.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return Credential{}, errors.New("[OIDCProvider.SignIn] issuer returned no id_token")
	}

	user, err := p.mirrorUser(ctx, rawIDToken)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Token: rawIDToken, User: user}, nil
}

// SignUp is delegated to the issuer's own registration surface.
func (p *OIDCProvider) SignUp(ctx context.Context, creds Credentials, name string, role users.RoleType) (Credential, error) {
	return Credential{}, apperrors.ErrUnsupported
}

// SignOut has no issuer-side effect for password-grant sessions.
func (p *OIDCProvider) SignOut(ctx context.Context, token string) error {
	return nil
}

// UserFromToken verifies the ID token and returns the mirrored principal.
func (p *OIDCProvider) UserFromToken(ctx context.Context, token string) (*users.User, error) {
	return p.mirrorUser(ctx, token)
}

// mirrorUser verifies an ID token and upserts the claims into the local user
// mirror so the rest of the marketplace can reference a stable principal.
func (p *OIDCProvider) mirrorUser(ctx context.Context, rawIDToken string) (*users.User, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "verify: %v", err)
	}

	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
		Role  string `json:"role"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "[OIDCProvider] parse claims")
	}

	role := users.RoleType(claims.Role)
	if !users.ValidRole(role) {
		role = users.RoleStudent
	}

	user := &users.User{
		ID:    idToken.Subject,
		Email: claims.Email,
		Name:  claims.Name,
		Role:  role,
	}
	if err := p.userRepo.Upsert(user); err != nil {
		return nil, errors.Wrap(err, "[OIDCProvider] mirror upsert")
	}
	return user, nil
}
