// Package auth issues and validates the bearer credentials that identify a
// user to the HTTP API and the collaboration websocket.
//
// Credentials are HS256 JWTs carrying the user id and display name.
package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Iron-Ham/todohub/internal/errors"
)

// MinSecretLength is the shortest signing secret accepted.
const MinSecretLength = 16

// Identity is the user a credential speaks for.
type Identity struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// Claims is the JWT payload.
type Claims struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies credentials with a shared secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source used for iat/exp and validation.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an Issuer. The secret must be at least MinSecretLength
// bytes and ttl must be positive.
func NewIssuer(secret string, ttl time.Duration, issuer string, opts ...Option) (*Issuer, error) {
	if secret == "" {
		return nil, errors.NewAuthError("cannot create issuer", errors.ErrMissingSecret)
	}
	if len(secret) < MinSecretLength {
		return nil, errors.NewValidationError("secret is too short").WithField("auth.secret")
	}
	if ttl <= 0 {
		return nil, errors.NewValidationError("token ttl must be positive").WithField("auth.token_ttl").WithValue(ttl.String())
	}

	i := &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue returns a signed credential for id.
func (i *Issuer) Issue(id Identity) (string, error) {
	if id.UserID == "" || id.Name == "" {
		return "", errors.NewValidationError("identity needs user id and name")
	}

	now := i.now()
	claims := Claims{
		UserID: id.UserID,
		Name:   id.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", errors.NewAuthError("sign token", err).WithUser(id.Name)
	}
	return signed, nil
}

// Verify checks the signature, algorithm, issuer and expiry of token and
// returns the identity it carries.
func (i *Issuer) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, errors.NewAuthError("no credential presented", errors.ErrMissingToken)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(i.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, parserOpts...)
	if err != nil {
		return Identity{}, errors.NewAuthError("token rejected", errors.Join(errors.ErrInvalidToken, err))
	}

	if claims.UserID == "" || claims.Name == "" {
		return Identity{}, errors.NewAuthError("token has no identity", errors.ErrInvalidToken)
	}
	return Identity{UserID: claims.UserID, Name: claims.Name}, nil
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errors.NewAuthError("expected a bearer credential", errors.ErrMissingToken)
	}
	return strings.TrimSpace(token), nil
}
