package utils

import (
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
)

const (
	RoleAdmin   = "admin"
	RoleCompany = "client"
)

type JwtCustomClaim struct {
	UserId string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.StandardClaims
}

// TokenIssuer signs and verifies bearer tokens with a secret taken from config.
type TokenIssuer struct {
	secret   []byte
	lifespan time.Duration
	now      func() time.Time
}

func NewTokenIssuer(secret string, lifespan time.Duration) *TokenIssuer {
	if lifespan <= 0 {
		lifespan = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), lifespan: lifespan, now: time.Now}
}

func (t *TokenIssuer) JwtGenerate(userId, email, role string) (string, error) {
	now := t.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &JwtCustomClaim{
		UserId: userId,
		Email:  email,
		Role:   role,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: now.Add(t.lifespan).Unix(),
			IssuedAt:  now.Unix(),
		},
	})
	return token.SignedString(t.secret)
}

func (t *TokenIssuer) JwtValidate(token string) (*JwtCustomClaim, error) {
	parsed, err := jwt.ParseWithClaims(token, &JwtCustomClaim{}, func(tk *jwt.Token) (interface{}, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("there's a problem with the signing method")
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, Wrap(ErrUnauthorized, err, "")
	}
	claims, ok := parsed.Claims.(*JwtCustomClaim)
	if !ok || !parsed.Valid {
		return nil, Errorf(ErrUnauthorized, "invalid token")
	}
	return claims, nil
}
