package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/optionpricer/idgen"
	"github.com/wyfcoding/optionpricer/logging"
)

const HeaderXRequestID = "X-Request-ID"

// RequestID 沿用请求头中的 X-Request-ID，没有时用 gen 生成，并回写到响应头。
func RequestID(gen idgen.Generator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderXRequestID)
		if id == "" {
			id = idgen.String(gen)
		}
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Header(HeaderXRequestID, id)
		c.Next()
	}
}
