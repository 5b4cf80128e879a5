package middleware

import (
	"puzzle_arena_backend/internal/config"
	"puzzle_arena_backend/internal/model"
	"puzzle_arena_backend/internal/util"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 解析外部认证系统签发的 JWT，注入调用方身份
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		if tokenString == "" {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		claims, err := util.ParseJWT(tokenString, cfg.JWT.Secret)
		if err != nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		c.Set("caller", claims)
		c.Next()
	}
}

// RoleMiddleware 角色门禁；管理员放行一切
func RoleMiddleware(roles ...model.TeamRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := util.GetCallerFromContext(c)
		if caller == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		hasRole := false
		for _, role := range roles {
			if caller.Role == model.AdminActor {
				hasRole = true
				break
			}
			if caller.Role == role {
				hasRole = true
				break
			}
		}

		if !hasRole {
			util.Forbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
