// Package session issues and verifies the bearer tokens handed out after a
// successful OTP login.
package session

import (
	"errors"
	"fmt"
	"time"

	"leftuber-api/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by a session token
type Claims struct {
	UserID string      `json:"user_id"`
	Phone  string      `json:"phone"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs session tokens with a shared HMAC secret
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates a token issuer
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for user
func (i *Issuer) Issue(user *models.User) (string, error) {
	now := i.now()
	claims := Claims{
		UserID: user.ID,
		Phone:  user.Phone,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns the identity it carries. Any defect
// in the token, including expiry, yields models.ErrUnauthenticated.
func (i *Issuer) Parse(tokenString string) (models.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Identity{}, fmt.Errorf("%w: token expired", models.ErrUnauthenticated)
		}
		return models.Identity{}, fmt.Errorf("%w: invalid token", models.ErrUnauthenticated)
	}
	if !token.Valid || claims.UserID == "" {
		return models.Identity{}, fmt.Errorf("%w: invalid token", models.ErrUnauthenticated)
	}

	return models.Identity{
		UserID: claims.UserID,
		Phone:  claims.Phone,
		Role:   claims.Role,
	}, nil
}
