package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "rubberband"

// MinSecretLength is the minimum size of the HMAC session signing secret.
const MinSecretLength = 32

// SessionClaims are the verified claims of a session access token.
type SessionClaims struct {
	IdentityID uuid.UUID
	SessionID  uuid.UUID
	Email      string
	ExpiresAt  time.Time
}

type sessionTokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenSigner issues and verifies HS256 session access tokens.
type TokenSigner struct {
	secret []byte
}

// NewTokenSigner creates a signer from the session secret.
func NewTokenSigner(secret []byte) (*TokenSigner, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", MinSecretLength)
	}
	return &TokenSigner{secret: secret}, nil
}

// Issue creates a signed token whose jti is the session ID.
func (s *TokenSigner) Issue(claims SessionClaims) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &sessionTokenClaims{
		Email: claims.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.IdentityID.String(),
			ID:        claims.SessionID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
			Issuer:    tokenIssuer,
		},
	})

	return token.SignedString(s.secret)
}

// Verify parses and validates a token string.
func (s *TokenSigner) Verify(tokenStr string) (*SessionClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &sessionTokenClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	claims, ok := parsed.Claims.(*sessionTokenClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid claims", ErrUnauthenticated)
	}

	identityID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid subject", ErrUnauthenticated)
	}

	sessionID, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid session id", ErrUnauthenticated)
	}

	return &SessionClaims{
		IdentityID: identityID,
		SessionID:  sessionID,
		Email:      claims.Email,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}
