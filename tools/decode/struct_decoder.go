package decode

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/mitchellh/mapstructure"
)

// Options 用于定制 Decode 行为。
type Options struct {
	// 是否启用宽松解码（默认 true）：
	// 例如 "123" -> string、1.0 -> int64 等。
	WeaklyTypedInput bool
	// Aliases 旧字段名 -> 规范字段名，解码前改写；规范字段已存在时忽略别名
	Aliases map[string]string
}

// DefaultOptions 返回默认选项。
func DefaultOptions() Options {
	return Options{WeaklyTypedInput: true}
}

// WithAliases 便捷构造。
func WithAliases(aliases map[string]string) Options {
	return Options{WeaklyTypedInput: true, Aliases: aliases}
}

// DecodeMap 将 map 动态解码到任意结构体 T，字段读取使用 `json` tag。
func DecodeMap[T any](m map[string]any, opts ...Options) (*T, error) {
	cfg := DefaultOptions()
	if len(opts) > 0 {
		cfg = opts[0]
	}
	if m == nil {
		m = map[string]any{}
	}
	m = Normalize(m, cfg.Aliases)

	var out T
	decCfg := &mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: cfg.WeaklyTypedInput,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			floatToIntHook(),
			sliceAnyToSliceStringHook(),
		),
	}
	dec, err := mapstructure.NewDecoder(decCfg)
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("decode struct: %w", err)
	}
	return &out, nil
}

// DecodeJSON 先把 JSON 对象解为 map，再走 DecodeMap。
// 空输入按空对象处理。
func DecodeJSON[T any](raw []byte, opts ...Options) (*T, error) {
	m := map[string]any{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("unmarshal object: %w", err)
		}
	}
	return DecodeMap[T](m, opts...)
}

// Normalize 按别名表改写 key，返回新 map，不修改入参。
func Normalize(m map[string]any, aliases map[string]string) map[string]any {
	if len(aliases) == 0 {
		return m
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	for alias, canonical := range aliases {
		v, ok := out[alias]
		if !ok {
			continue
		}
		delete(out, alias)
		if _, exists := out[canonical]; !exists {
			out[canonical] = v
		}
	}
	return out
}

// ReadString 从 map 中读取 string 字段（数字按十进制转成字符串）。
func ReadString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", fmt.Errorf("missing field %q", key)
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case json.Number:
		return t.String(), nil
	default:
		return "", fmt.Errorf("field %q not string (got %T)", key, v)
	}
}

// -----------------------------
// Decode Hooks
// -----------------------------

// floatToIntHook：把 float64 自动转为 int / int32 / int64。
func floatToIntHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.Float64 {
			return data, nil
		}
		switch to {
		case reflect.Int:
			return int(data.(float64)), nil
		case reflect.Int32:
			return int32(data.(float64)), nil
		case reflect.Int64:
			return int64(data.(float64)), nil
		}
		return data, nil
	}
}

var stringSliceType = reflect.TypeOf([]string(nil))

// sliceAnyToSliceStringHook：目标是 []string 时把 []any 转过去，数字 id 转十进制字符串。
func sliceAnyToSliceStringHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != stringSliceType {
			return data, nil
		}
		src, ok := data.([]any)
		if !ok {
			return data, nil
		}
		out := make([]string, 0, len(src))
		for _, it := range src {
			switch v := it.(type) {
			case string:
				out = append(out, v)
			case float64:
				out = append(out, strconv.FormatFloat(v, 'f', -1, 64))
			case json.Number:
				out = append(out, v.String())
			default:
				b, _ := json.Marshal(v)
				out = append(out, string(b))
			}
		}
		return out, nil
	}
}
