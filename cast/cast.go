// Package cast 从无类型键值数据中取值并转换类型，转换失败统一返回 xerrors 参数错误。
package cast

import (
	"strconv"
	"strings"

	spfcast "github.com/spf13/cast"

	"github.com/wyfcoding/optionpricer/xerrors"
)

// present 判断键存在且值不为空 (nil 或空白字符串视为缺失)。
func present(data map[string]any, key string) (any, bool) {
	v, ok := data[key]
	if !ok || v == nil {
		return nil, false
	}
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		return nil, false
	}
	return v, true
}

// Has 判断键是否存在有效值。
func Has(data map[string]any, key string) bool {
	_, ok := present(data, key)
	return ok
}

// Float64 读取浮点数，键缺失时返回 ok=false。
func Float64(data map[string]any, key string) (val float64, ok bool, err error) {
	v, ok := present(data, key)
	if !ok {
		return 0, false, nil
	}
	f, err := spfcast.ToFloat64E(v)
	if err != nil {
		return 0, true, xerrors.ErrInvalidInput.WithDetail("%s: %v", key, err)
	}
	return f, true, nil
}

// Float64Or 读取浮点数，缺失时返回默认值。
func Float64Or(data map[string]any, key string, def float64) (float64, error) {
	f, ok, err := Float64(data, key)
	if err != nil || !ok {
		return def, err
	}
	return f, nil
}

// Int 读取整数，字符串一律按十进制解析（"010" 为 10）。
func Int(data map[string]any, key string) (val int, ok bool, err error) {
	v, ok := present(data, key)
	if !ok {
		return 0, false, nil
	}
	if s, isStr := v.(string); isStr {
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, strconv.IntSize)
		if err != nil {
			return 0, true, xerrors.ErrInvalidInput.WithDetail("%s: %v", key, err)
		}
		return int(i), true, nil
	}
	i, err := spfcast.ToIntE(v)
	if err != nil {
		return 0, true, xerrors.ErrInvalidInput.WithDetail("%s: %v", key, err)
	}
	return i, true, nil
}

// StringOr 读取字符串，缺失时返回默认值。
func StringOr(data map[string]any, key, def string) (string, error) {
	v, ok := present(data, key)
	if !ok {
		return def, nil
	}
	s, err := spfcast.ToStringE(v)
	if err != nil {
		return def, xerrors.ErrInvalidInput.WithDetail("%s: %v", key, err)
	}
	return strings.TrimSpace(s), nil
}

// Slice 读取列表值。
func Slice(data map[string]any, key string) (val []any, ok bool, err error) {
	v, ok := present(data, key)
	if !ok {
		return nil, false, nil
	}
	s, err := spfcast.ToSliceE(v)
	if err != nil {
		return nil, true, xerrors.ErrInvalidInput.WithDetail("%s: %v", key, err)
	}
	return s, true, nil
}

// StringMap 把任意值转换为 map[string]any，用于嵌套对象。
func StringMap(v any) (map[string]any, error) {
	m, err := spfcast.ToStringMapE(v)
	if err != nil {
		return nil, xerrors.ErrInvalidInput.WithDetail("expected an object: %v", err)
	}
	return m, nil
}

// BoolOr 读取布尔值，接受 true/false、"1"/"0" 等写法，缺失时返回默认值。
func BoolOr(data map[string]any, key string, def bool) (bool, error) {
	v, ok := present(data, key)
	if !ok {
		return def, nil
	}
	b, err := spfcast.ToBoolE(v)
	if err != nil {
		return def, xerrors.ErrInvalidInput.WithDetail("%s: %v", key, err)
	}
	return b, nil
}
