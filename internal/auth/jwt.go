package auth

import (
	"time"

	"duel/internal/types"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
)

var (
	ErrInvalidToken = eris.New("invalid or expired token")
	ErrNoSecret     = eris.New("token secret is not configured")
)

type Claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateToken signs an identity with HS256. A zero ttl yields a token without expiry.
func GenerateToken(secret string, id types.Identity, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := &Claims{
		UserID:   id.UserID,
		Username: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  id.UserID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", eris.Wrap(err, "sign token")
	}
	return token, nil
}

// ParseToken verifies the token and returns the identity it carries.
// An empty secret verifies nothing.
func ParseToken(secret, tokenStr string) (types.Identity, error) {
	if secret == "" {
		return types.Identity{}, ErrNoSecret
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return types.Identity{}, ErrInvalidToken
	}

	id := types.Identity{UserID: claims.UserID, Username: claims.Username}
	if !id.Valid() {
		return types.Identity{}, ErrInvalidToken
	}
	return id, nil
}
