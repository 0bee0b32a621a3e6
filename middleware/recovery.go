// Package middleware 定价 HTTP 接口的 Gin 中间件.
package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/optionpricer/response"
)

// Recovery 捕获 handler 的 panic，记录堆栈并返回 500。
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.ErrorContext(c.Request.Context(), "panic recovered",
					"error", err,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()),
				)
				response.ErrorWithStatus(c, http.StatusInternalServerError, "internal error", "")
				c.Abort()
			}
		}()
		c.Next()
	}
}
