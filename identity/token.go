package identity

import (
	"crypto/rand"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	apperrors "github.com/coursekit/coursekit/internal/errors"
	"github.com/coursekit/coursekit/users"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// TokenIssuer mints and parses the opaque session tokens handed to clients.
// Tokens are HS256 JWTs; the jti claim makes every login distinct, which is
// what the registry's equality comparison keys off.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewTokenIssuer creates a token issuer. An empty secret generates a random
// one, which is fine for a single-node dev server but means tokens do not
// survive restarts.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if ttl <= 0 {
		return nil, errors.New("[NewTokenIssuer] ttl must be positive")
	}

	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, errors.Wrap(err, "[NewTokenIssuer] rand.Read")
		}
	}

	return &TokenIssuer{
		secret: key,
		ttl:    ttl,
		issuer: "coursekit",
	}, nil
}

// Issue creates a fresh session token for the user. Every call yields a
// distinct token even for the same user at the same instant.
func (ti *TokenIssuer) Issue(user *users.User) (string, error) {
	now := NowTimeFunc()
	claims := jwtlib.MapClaims{
		"iss":   ti.issuer,
		"sub":   user.ID,
		"email": user.Email,
		"role":  string(user.Role),
		"iat":   now.Unix(),
		"exp":   now.Add(ti.ttl).Unix(),
		"jti":   uuid.New().String(), // Unique per login
	}

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", errors.Wrap(err, "[TokenIssuer.Issue] sign")
	}
	return signed, nil
}

// Subject extracts and verifies the user ID a token was issued to.
func (ti *TokenIssuer) Subject(rawToken string) (string, error) {
	token, err := jwtlib.Parse(rawToken, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return ti.secret, nil
	}, jwtlib.WithTimeFunc(func() time.Time { return NowTimeFunc() }))
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return "", apperrors.ErrTokenExpired
		}
		return "", apperrors.Wrapf(apperrors.ErrInvalidToken, "parse: %v", err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", apperrors.ErrInvalidToken
	}
	return sub, nil
}

// FingerprintToken returns a short suffix of a token safe to log. The suffix
// is the signature tail, so it identifies the login without exposing the
// credential.
func FingerprintToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[len(token)-8:]
}
