// Package async 提供 panic 安全的 goroutine 启动与泛型 Future。
package async

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// ErrPanicRecovered 所有由 panic 转换而来的错误都匹配该哨兵。
var ErrPanicRecovered = errors.New("async task panic recovered")

// PanicError 保存被恢复的 panic 值与发生时的堆栈。
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%v: %v", ErrPanicRecovered, e.Value)
}

func (e *PanicError) Unwrap() error { return ErrPanicRecovered }

func newPanicError(rec any) *PanicError {
	return &PanicError{Value: rec, Stack: debug.Stack()}
}

// SafeGo 启动 goroutine，panic 被恢复并连同堆栈记录到 logger（nil 时用 slog.Default()）。
func SafeGo(logger *slog.Logger, fn func()) {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				if logger == nil {
					logger = slog.Default()
				}
				pe := newPanicError(rec)
				logger.Error("goroutine panic recovered", "error", pe, "stack", string(pe.Stack))
			}
		}()
		fn()
	}()
}
