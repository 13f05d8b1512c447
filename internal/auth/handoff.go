package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
)

const handoffIssuer = "ticket-checkout"

var ErrHandoffMismatch = errors.New("handoff token does not match reference")

type HandoffClaims struct {
	Amount string `json:"amt"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// HandoffIssuer signs the token handed to the client payment widget. Its
// subject is the payment reference.
type HandoffIssuer struct {
	secret string
	ttl    time.Duration
}

func NewHandoffIssuer(secret string, ttl time.Duration) *HandoffIssuer {
	return &HandoffIssuer{secret: secret, ttl: ttl}
}

func (h *HandoffIssuer) SignHandoff(reference string, amount decimal.Decimal, email string) (string, error) {
	return MakeHandoffToken(reference, amount, email, h.secret, h.ttl)
}

func (h *HandoffIssuer) Validate(token, reference string) (*HandoffClaims, error) {
	claims, err := ValidateHandoffToken(token, h.secret)
	if err != nil {
		return nil, err
	}
	if claims.Subject != reference {
		return nil, ErrHandoffMismatch
	}
	return claims, nil
}

func MakeHandoffToken(reference string, amount decimal.Decimal, email, secret string, expiresIn time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := HandoffClaims{
		Amount: amount.String(),
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    handoffIssuer,
			Subject:   reference,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign handoff token: %w", err)
	}
	return signed, nil
}

func ValidateHandoffToken(tokenString, secret string) (*HandoffClaims, error) {
	claims := &HandoffClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(handoffIssuer),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid handoff token: %w", err)
	}
	return claims, nil
}
