package ratelimit

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/meshd/clog"
)

// KeyFunc 从请求中提取限流键
type KeyFunc func(*gin.Context) string

// ClientIP 默认的限流键
func ClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// GinMiddleware 创建 Gin 限流中间件，被限流时返回 429。
// keyFunc 为 nil 时使用客户端 IP；提取不到 key 或限流器出错时放行。
//
//	r.Any("/proxy/:service/*path",
//	    ratelimit.GinMiddleware(limiter, cfg.Limit(), nil, logger),
//	    proxyHandler)
func GinMiddleware(limiter Limiter, limit Limit, keyFunc KeyFunc, logger clog.Logger) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	if logger == nil {
		logger = clog.Discard()
	}
	header := formatLimit(limit)

	return func(c *gin.Context) {
		key := keyFunc(c)
		if key == "" || !limit.Valid() {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", header)
		allowed, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			logger.Warn("rate limiter failed, letting request through",
				clog.String("key", key), clog.Error(err))
			c.Next()
			return
		}
		if !allowed {
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

func formatLimit(limit Limit) string {
	return fmt.Sprintf("rate=%.2f, burst=%d", limit.Rate, limit.Burst)
}
