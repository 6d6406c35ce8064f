package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Session tokens are stateless: once issued they stay valid until expiry.
// The only live-revocation path is the fixture liveness re-check in the gate.
const sessionMaxAgeSeconds = 86400

// TokenTTL is the lifetime of an issued session token.
const TokenTTL = sessionMaxAgeSeconds * time.Second

var (
	ErrTokenInvalid = errors.New("invalid session token")
	ErrTokenExpired = errors.New("session token expired")
)

// Claims is the signed claims set carried by a session token.
// The principal ID travels in the registered Subject claim.
type Claims struct {
	jwt.RegisteredClaims
	Username   string     `json:"username"`
	Role       string     `json:"role"`
	Provenance Provenance `json:"provenance"`
	IsTestUser bool       `json:"isTestUser,omitempty"`
}

// TokenService issues and verifies HMAC-signed session tokens.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a token service signing with the given secret.
func NewTokenService(secret []byte, issuer string) *TokenService {
	return &TokenService{
		secret: secret,
		issuer: issuer,
		ttl:    TokenTTL,
		now:    time.Now,
	}
}

// Issue mints a signed token for the principal, valid for TokenTTL.
// Each token gets a fresh jti, so two tokens for the same principal
// never compare equal.
func (s *TokenService) Issue(p *Principal) (string, error) {
	if p == nil || p.ID == "" {
		return "", fmt.Errorf("issue token: principal required")
	}

	now := s.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Username:   p.Username,
		Role:       p.Role,
		Provenance: p.Provenance,
		IsTestUser: p.IsTestUser,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token. Expired tokens return ErrTokenExpired;
// tampered or malformed tokens return ErrTokenInvalid. Callers must not
// surface the distinction to clients.
func (s *TokenService) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Principal converts verified claims back into a principal. For fixture
// claims the gate overlays the live record on top of this.
func (c *Claims) Principal() *Principal {
	return &Principal{
		ID:         c.Subject,
		Username:   c.Username,
		Role:       c.Role,
		Provenance: c.Provenance,
		IsTestUser: c.IsTestUser,
	}
}
