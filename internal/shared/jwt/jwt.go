package jwt

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	CivilianID int64  `json:"civilian_id"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

func secret() []byte {
	if s := os.Getenv("RESCUE_JWT_SECRET"); s != "" {
		return []byte(s)
	}
	return []byte("rescue-link-dev-secret")
}

func GenerateToken(civilianID int64) (string, error) {
	expirationTime := time.Now().Add(15 * time.Hour)
	claims := &Claims{
		CivilianID: civilianID,
		Role:       "CIVILIAN",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret())
}

// ParseToken accepts either a bare token or "Bearer <token>".
func ParseToken(raw string) (*Claims, error) {
	parts := strings.Split(raw, " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		raw = parts[1]
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return secret(), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
