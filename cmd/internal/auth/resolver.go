package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SecretEnvKey is the env var name for the shared HS256 signing secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	SecretEnvKey = "TIENDA_JWT_SECRET"

	// minSecretBytes is the minimum accepted secret length.
	minSecretBytes = 32
)

// Resolver verifies bearer credentials against the shared secret the
// storefront API signs with. Verification happens exactly once per connection
// attempt; the resulting Principal is cached on the session for its lifetime.
type Resolver struct {
	secret []byte
	parser *jwt.Parser
}

// NewResolver constructs a Resolver for the given shared secret.
func NewResolver(secret []byte) (*Resolver, error) {
	if len(secret) == 0 {
		return nil, ErrSecretMissing
	}
	if len(secret) < minSecretBytes {
		return nil, ErrSecretTooShort
	}
	return &Resolver{
		secret: secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

// NewResolverFromEnv constructs a Resolver from TIENDA_JWT_SECRET.
func NewResolverFromEnv() (*Resolver, error) {
	raw := strings.TrimSpace(os.Getenv(SecretEnvKey))
	if raw == "" {
		return nil, ErrSecretMissing
	}
	return NewResolver([]byte(raw))
}

// credentialClaims is the claim set the storefront API embeds at issuance.
type credentialClaims struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Resolve verifies credential and returns the embedded Principal.
// Every failure mode (missing, malformed, expired, bad signature, unknown
// role) returns a typed error; callers must refuse the connection on any
// non-nil error. There is no anonymous or degraded mode.
func (r *Resolver) Resolve(credential string) (Principal, error) {
	// Cut the scheme word before testing for empty, so a header carrying
	// nothing but "Bearer" classifies as missing, not malformed.
	credential = strings.TrimSpace(credential)
	if after, ok := strings.CutPrefix(credential, "Bearer"); ok {
		credential = strings.TrimSpace(after)
	}
	if credential == "" {
		return Principal{}, ErrCredentialMissing
	}

	var claims credentialClaims
	_, err := r.parser.ParseWithClaims(credential, &claims, func(_ *jwt.Token) (any, error) {
		return r.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrCredentialExpired
		}
		return Principal{}, fmt.Errorf("%w: %v", ErrCredentialInvalid, err)
	}

	role := Role(strings.TrimSpace(claims.Role))
	if !role.Valid() {
		return Principal{}, ErrUnknownRole
	}
	if strings.TrimSpace(claims.ID) == "" || strings.TrimSpace(claims.Username) == "" {
		return Principal{}, fmt.Errorf("%w: missing identity claims", ErrCredentialInvalid)
	}

	return Principal{
		ID:       strings.TrimSpace(claims.ID),
		Username: strings.TrimSpace(claims.Username),
		Role:     role,
	}, nil
}

// Sign issues a credential for p, valid for ttl from now.
// The storefront API is the normal issuer; this exists for smoke tooling and
// tests, using the same claim layout.
func (r *Resolver) Sign(p Principal, now time.Time, ttl time.Duration) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	claims := credentialClaims{
		ID:       p.ID,
		Username: p.Username,
		Role:     string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(r.secret)
}
