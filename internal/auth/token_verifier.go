// Package auth verifies the bearer tokens issued by the console's authentication
// layer and turns them into a caller identity.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is used by Issue when no ttl is given.
const DefaultTokenTTL = 15 * time.Minute

// Identity is the authenticated caller.
type Identity struct {
	UserID    string
	Role      string
	ExpiresAt time.Time
}

// Claims are the JWT claims understood by the console. The subject carries the user id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// VerifierConfig configures a TokenVerifier.
type VerifierConfig struct {
	Secret   string
	Issuer   string
	Audience string
	Leeway   time.Duration
	Clock    func() time.Time
}

// TokenVerifier validates HS256 tokens shared with the authentication layer.
type TokenVerifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// NewTokenVerifier constructs a TokenVerifier.
func NewTokenVerifier(cfg VerifierConfig) (*TokenVerifier, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("auth: token secret must be provided")
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &TokenVerifier{
		secret:   []byte(cfg.Secret),
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		leeway:   cfg.Leeway,
		now:      now,
	}, nil
}

// Verify parses token and returns the identity it asserts.
func (v *TokenVerifier) Verify(token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("auth: token is empty")
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		options = append(options, jwt.WithAudience(v.audience))
	}

	var claims Claims
	if _, err := jwt.NewParser(options...).ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("auth: parse token: %w", err)
	}

	userID := strings.TrimSpace(claims.Subject)
	if userID == "" {
		return nil, errors.New("auth: token has no subject")
	}

	identity := &Identity{UserID: userID, Role: claims.Role}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

// Issue signs a token for identity. Used by tests and local tooling.
func (v *TokenVerifier) Issue(identity Identity, ttl time.Duration) (string, error) {
	if strings.TrimSpace(identity.UserID) == "" {
		return "", errors.New("auth: user id is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := v.now()
	claims := Claims{
		Role: identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    v.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}
