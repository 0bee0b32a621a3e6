// Package xerrors 定价引擎的结构化错误：按类型与错误码分类，可映射为 HTTP 与 gRPC 状态。
package xerrors

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"runtime"

	"google.golang.org/grpc/codes"
)

// ErrorType 错误大类，决定对外的状态码映射。
type ErrorType uint

const (
	ErrUnknown ErrorType = iota
	ErrInternal
	ErrInvalidArg
	ErrNotFound
	ErrUnavailable
	ErrTypeNotImplemented
)

var typeNames = map[ErrorType]string{
	ErrInternal:           "Internal",
	ErrInvalidArg:         "InvalidArg",
	ErrNotFound:           "NotFound",
	ErrUnavailable:        "Unavailable",
	ErrTypeNotImplemented: "NotImplemented",
}

func (t ErrorType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// Error 带错误码、调试详情与上下文的错误。
// 包级哨兵只读，WithDetail 等方法总是返回带新堆栈的副本。
type Error struct {
	Type    ErrorType      `json:"type"`
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Detail  string         `json:"detail"`
	Cause   error          `json:"-"`
	Stack   []string       `json:"stack"`
	Context map[string]any `json:"context"` // symbol、strike 等定位信息
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %d: %s", e.Type, e.Code, e.Message)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (Cause: %v)", e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 按类型与错误码匹配，派生副本与原哨兵视为同一错误。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code && t.Type == e.Type
}

// New 创建错误并记录调用点堆栈。
func New(errType ErrorType, code int, message, detail string, cause error) *Error {
	e := &Error{
		Type:    errType,
		Code:    code,
		Message: message,
		Detail:  detail,
		Cause:   cause,
		Context: make(map[string]any),
	}
	e.captureStack(3)
	return e
}

const stackDepth = 10

func (e *Error) captureStack(skip int) {
	var pcs [stackDepth]uintptr
	n := runtime.Callers(skip, pcs[:])
	e.Stack = make([]string, 0, n)
	if n == 0 {
		return
	}
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		e.Stack = append(e.Stack, fmt.Sprintf("%s:%d (%s)", frame.File, frame.Line, frame.Function))
		if !more {
			return
		}
	}
}

func (e *Error) clone() *Error {
	c := *e
	c.Context = maps.Clone(e.Context)
	if c.Context == nil {
		c.Context = make(map[string]any)
	}
	c.captureStack(4)
	return &c
}

// WithContext 返回附带一个上下文键值的副本。
func (e *Error) WithContext(key string, value any) *Error {
	c := e.clone()
	c.Context[key] = value
	return c
}

// WithDetail 返回替换了调试详情的副本。
func (e *Error) WithDetail(format string, args ...any) *Error {
	c := e.clone()
	c.Detail = fmt.Sprintf(format, args...)
	return c
}

// WithCause 返回包装 cause 的副本。
func (e *Error) WithCause(cause error) *Error {
	c := e.clone()
	c.Cause = cause
	return c
}

// Wrap 给 err 加上 msg。err 已是 *Error 时沿用其类型与错误码，否则按 errType 归类。
func Wrap(err error, errType ErrorType, msg string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := FromError(err); ok {
		c := e.clone()
		c.Cause = err
		c.Message = msg
		return c
	}
	return New(errType, int(errType), msg, "", err)
}

// FromError 沿错误链查找第一个 *Error。
func FromError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatus 对外 HTTP 状态码。
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case ErrInvalidArg:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrUnavailable:
		return http.StatusServiceUnavailable
	case ErrTypeNotImplemented:
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

// GRPCCode 对外 gRPC 状态码。
func (e *Error) GRPCCode() codes.Code {
	switch e.Type {
	case ErrInvalidArg:
		return codes.InvalidArgument
	case ErrNotFound:
		return codes.NotFound
	case ErrUnavailable:
		return codes.Unavailable
	case ErrTypeNotImplemented:
		return codes.Unimplemented
	}
	return codes.Internal
}
