package util

import (
	"puzzle_arena_backend/internal/model"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims 由外部认证系统签发，引擎只消费 TeamID 与 Role
type Claims struct {
	TeamID uint           `json:"team_id"`
	Role   model.TeamRole `json:"role"`
	jwt.RegisteredClaims
}

func GenerateJWT(teamID uint, role model.TeamRole, secret string, expiration time.Duration) (string, error) {
	expirationTime := time.Now().Add(expiration)

	claims := &Claims{
		TeamID: teamID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseJWT(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, err
}

func GetCallerFromContext(c *gin.Context) *Claims {
	caller, exists := c.Get("caller")
	if !exists {
		return nil
	}
	claims, ok := caller.(*Claims)
	if !ok {
		return nil
	}
	return claims
}
