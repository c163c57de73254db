package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GenerateJWT signs a session token carrying the caller id and role.
func GenerateJWT(secret string, id Identity, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("JWT secret not set")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": id.UserID,
		"role":    string(id.Role),
		"exp":     time.Now().Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

// ValidateJWT parses an HS256 token and extracts the caller identity.
func ValidateJWT(secret, tokenStr string) (Identity, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Method.Alg())
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("invalid token claims")
	}
	userID, ok := claims["user_id"].(float64)
	if !ok || userID <= 0 {
		return Identity{}, fmt.Errorf("invalid user_id in token")
	}
	role, _ := claims["role"].(string)
	if !Role(role).Valid() {
		return Identity{}, fmt.Errorf("invalid role in token")
	}
	return Identity{UserID: int64(userID), Role: Role(role)}, nil
}
