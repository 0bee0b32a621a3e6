// Package validator 基于 go-playground/validator 的结构体校验封装，失败统一转换为 xerrors 参数错误。
package validator

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/wyfcoding/optionpricer/xerrors"
)

var (
	instance *validator.Validate
	once     sync.Once
)

// Instance 返回进程内共享的校验器。
func Instance() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
	})
	return instance
}

// Struct 校验结构体的 validate 标签。
func Struct(s any) error {
	err := Instance().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return xerrors.ErrInvalidInput.WithCause(err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return xerrors.ErrInvalidInput.WithDetail("%s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gt", "gte", "lt", "lte", "min", "max":
		return fmt.Sprintf("%s must be %s %s, got %v", field, fe.Tag(), fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %q validation", field, fe.Tag())
	}
}

// IsEmpty 判断去空格后的字符串是否为空。
func IsEmpty(val string) bool {
	return strings.TrimSpace(val) == ""
}
