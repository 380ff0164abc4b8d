// Package federation delivers action tokens to remote instances and
// replicates attachments. Delivery is at-least-once: failed sends are
// retried with exponential backoff until the attempt budget runs out, so
// receivers must treat redelivered tokens as idempotent.
package federation

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidSignature = errors.New("invalid token signature")
)

// ActionClaims are the signed facts carried by an action token.
type ActionClaims struct {
	jwt.RegisteredClaims
	ActionType string `json:"action_type"`
	Subtype    string `json:"subtype,omitempty"`
	ContentRef string `json:"content_ref,omitempty"`
}

// TokenService signs and validates action tokens with a shared HS256
// secret.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewTokenService(secret, issuer string, ttl time.Duration) *TokenService {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Sign issues a token for one action addressed to one remote identity.
func (s *TokenService) Sign(actionID, actionType, subtype, audience string) (string, error) {
	now := time.Now()
	claims := ActionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   actionID,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		ActionType: actionType,
		Subtype:    subtype,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing action token: %w", err)
	}
	return signed, nil
}

// Validate parses an inbound token and returns its claims.
func (s *TokenService) Validate(tokenString string) (*ActionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ActionClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*ActionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
