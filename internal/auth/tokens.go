package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token purposes.
const (
	PurposeReset  = "password-reset"
	PurposeVerify = "email-verify"
)

// TokenManager signs single-purpose tokens that are mailed to users.
type TokenManager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokenManager(secret, issuer string) *TokenManager {
	return &TokenManager{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Claims are the registered claims plus the token purpose.
type Claims struct {
	Purpose string `json:"purpose"`
	Email   string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Issue returns the signed token and its id (jti).
func (t *TokenManager) Issue(purpose, accountID, email string, ttl time.Duration) (string, string, error) {
	now := t.now()
	id := uuid.NewString()
	claims := Claims{
		Purpose: purpose,
		Email:   email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    t.issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", "", fmt.Errorf("signing token: %w", err)
	}
	return signed, id, nil
}

// Parse validates signature, expiry and purpose.
func (t *TokenManager) Parse(purpose, token string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if claims.Purpose != purpose || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
