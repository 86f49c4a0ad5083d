// Package auditortoken issues and validates the short-lived bearer tokens that
// authorize an auditor to request a full disclosure.
package auditortoken

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"rxvc/pkg/domain"
	dErrors "rxvc/pkg/domain-errors"
)

// ScopeFullDisclosure grants access to every field of a credential.
const ScopeFullDisclosure = "audit:full"

const audience = "rxvc-audit"

// Claims are the JWT claims of an auditor token.
type Claims struct {
	Scope []string `json:"scope"`
	jwt.RegisteredClaims
}

// Auditor returns the DID the token was issued to.
func (c *Claims) Auditor() domain.DID {
	return domain.DID(c.Subject)
}

// Service signs and validates auditor tokens with a shared HMAC secret.
type Service struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

// NewService creates a token service.
func NewService(signingKey, issuer string) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Used in tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Issue returns a signed token granting auditor full disclosure for ttl.
func (s *Service) Issue(auditor domain.DID, ttl time.Duration) (string, error) {
	if auditor.IsNil() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "auditor did is required")
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Scope: []string{ScopeFullDisclosure},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   auditor.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{audience},
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify validates tokenString and checks that it was issued to auditor with
// full disclosure scope. A malformed, expired or forged token yields
// CodeUnauthorized; a valid token for another auditor or scope yields
// CodeForbidden.
func (s *Service) Verify(tokenString string, auditor domain.DID) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "auditor token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid auditor token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid auditor token claims")
	}
	if claims.Auditor() != auditor {
		return nil, dErrors.New(dErrors.CodeForbidden, "auditor token was issued to another auditor")
	}
	if !slices.Contains(claims.Scope, ScopeFullDisclosure) {
		return nil, dErrors.New(dErrors.CodeForbidden, "auditor token lacks full disclosure scope")
	}
	return claims, nil
}
