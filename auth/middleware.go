package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// IdentityKey gin.Context 中保存 *Identity 的键
const IdentityKey = "auth:identity"

// ExtractToken 依次从 Authorization: Bearer、查询参数 auth 中提取令牌
func ExtractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("auth")
}

// GinMiddleware 保护管理接口，校验失败返回 401
func GinMiddleware(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := a.Verify(c.Request.Context(), Credentials{Token: ExtractToken(c.Request)})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(IdentityKey, id)
		c.Next()
	}
}

// RequireRoles 要求 JWT 身份带有全部指定角色；共享密钥身份视为管理员
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if id.Method == methodSharedSecret {
			c.Next()
			return
		}
		for _, role := range roles {
			if !id.HasRole(role) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden: missing role " + role})
				return
			}
		}
		c.Next()
	}
}

// GetIdentity 从 gin.Context 获取身份
func GetIdentity(c *gin.Context) (*Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*Identity)
	return id, ok
}
