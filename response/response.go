// Package response 统一的 HTTP 响应包装：成功为 {code: 0, msg, data}，失败时 code 为业务错误码。
package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/optionpricer/xerrors"
)

// StatusClientClosedRequest 客户端在响应前断开 (nginx 约定)。
const StatusClientClosedRequest = 499

// Body 响应体。
type Body struct {
	Data   any    `json:"data,omitempty"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
	Type   string `json:"type,omitempty"`
	Code   int    `json:"code"`
}

// Success HTTP 200，业务码 0。
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Body{Code: 0, Msg: "success", Data: data})
}

// Error 按 xerrors 类型映射状态码，其余错误一律 500 且不回显内部信息。
func Error(c *gin.Context, err error) {
	if err == nil {
		Success(c, nil)
		return
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		ErrorWithStatus(c, http.StatusGatewayTimeout, "request timeout", "")
		return
	case errors.Is(err, context.Canceled):
		ErrorWithStatus(c, StatusClientClosedRequest, "request canceled", "")
		return
	}
	if xe, ok := xerrors.FromError(err); ok {
		c.JSON(xe.HTTPStatus(), Body{
			Code:   xe.Code,
			Msg:    xe.Message,
			Detail: xe.Detail,
			Type:   xe.Type.String(),
		})
		return
	}

	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		ErrorWithStatus(c, http.StatusRequestEntityTooLarge, "request body too large", err.Error())
		return
	}
	ErrorWithStatus(c, http.StatusInternalServerError, "internal error", "")
}

// ErrorWithStatus 直接指定状态码，业务码与状态码相同。
func ErrorWithStatus(c *gin.Context, status int, msg, detail string) {
	c.JSON(status, Body{Code: status, Msg: msg, Detail: detail})
}
