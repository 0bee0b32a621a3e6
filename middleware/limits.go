package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/wyfcoding/optionpricer/response"
)

// RateLimit 全局令牌桶，r 为每秒请求数，r <= 0 时不限流。
// 蒙特卡洛定价是 CPU 密集型，限流保护的是整个进程而非单个客户端。
func RateLimit(r float64, burst int) gin.HandlerFunc {
	if r <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := rate.NewLimiter(rate.Limit(r), max(burst, 1))
	return func(c *gin.Context) {
		if !limiter.Allow() {
			slog.WarnContext(c.Request.Context(), "request rejected by rate limiter", "ip", c.ClientIP(), "path", c.Request.URL.Path)
			response.ErrorWithStatus(c, http.StatusTooManyRequests, "too many requests", "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

// MaxBodyBytes 限制请求体大小，limit <= 0 时不限制。
func MaxBodyBytes(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > limit {
			response.ErrorWithStatus(c, http.StatusRequestEntityTooLarge, "request body too large", "content length exceeded")
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// Timeout 给请求 ctx 加截止时间。定价循环会检查 ctx，超时后 handler 返回的错误在这里统一成 504。
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			response.ErrorWithStatus(c, http.StatusGatewayTimeout, "request timeout", "")
		}
	}
}
