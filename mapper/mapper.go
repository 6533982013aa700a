// Package mapper 将解码后的响应体（JSON 结构或 XML 元素树）按 schema 映射为 Go 结构体。
//
// 映射规则：
//   - 字段名取 `map` 标签，其次是 `json`（JSON）或 `xml`（XML）标签，最后是字段名本身
//   - `map:"-"` 的字段不参与映射，通常由 Finalizer 在映射后计算
//   - `map:"name,required"` 的字段缺失时返回 MappingError，其余缺失字段保持零值
//   - 多余的 key 一律忽略
//   - 嵌套结构体、结构体指针、结构体切片递归映射
//   - JSON 值不做语义转换（字符串不会变成数字），数字可在各数值类型之间转换
//   - XML 只有文本，按字段类型解析
//
// 基本使用：
//
//	type User struct {
//		ID    int64  `json:"id"`
//		Name  string `json:"name,omitempty"`
//		Email string `map:"email,required"`
//	}
//
//	data, _ := mapper.DecodeJSON(body)
//	user, err := mapper.Decode[User](data)
//	users, err := mapper.Decode[[]User](data)
package mapper

import (
	"bytes"
	"io"
	"reflect"

	"github.com/goccy/go-json"

	"github.com/ceyewan/courier/xerrors"
)

// Finalizer 映射完成后的钩子，用于计算派生字段或校验
type Finalizer interface {
	AfterMap() error
}

// Register 预先解析 T 及其嵌套类型的 schema，尽早暴露标签冲突等问题
func Register[T any]() error {
	return register(reflect.TypeFor[T](), map[reflect.Type]bool{})
}

func register(t reflect.Type, visited map[reflect.Type]bool) error {
	t = targetOf(t)
	if t == nil || visited[t] {
		return nil
	}
	visited[t] = true

	s, err := schemaOf(t)
	if err != nil {
		return err
	}
	for _, f := range s.fields {
		if err := register(f.typ, visited); err != nil {
			return err
		}
	}
	return nil
}

// Map 将 JSON 结构映射为 t 的实例；data 为数组时逐个映射并返回 []t
func Map(t reflect.Type, data any) (any, error) {
	if arr, ok := data.([]any); ok {
		out := reflect.New(reflect.SliceOf(t)).Elem()
		if err := assignJSON(out, arr, ""); err != nil {
			return nil, err
		}
		return out.Interface(), nil
	}
	v := reflect.New(t).Elem()
	if err := assignJSON(v, data, ""); err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// Decode 将 JSON 结构映射为 T
//
// T 为切片而 data 是单个对象时，结果为只含一个元素的切片。
func Decode[T any](data any) (T, error) {
	var zero T
	t := reflect.TypeFor[T]()
	if obj, ok := data.(map[string]any); ok && t.Kind() == reflect.Slice && targetOf(t.Elem()) != nil {
		data = []any{obj}
	}

	v := reflect.New(t).Elem()
	if err := assignJSON(v, data, ""); err != nil {
		return zero, err
	}
	return v.Interface().(T), nil
}

// DecodeJSON 解码 JSON 响应体，数字保留为 json.Number；空响应体返回 nil
func DecodeJSON(body []byte) (any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, &MappingError{Reason: "invalid json body", Err: err}
	}
	// 第一个值之后只允许空白
	var extra any
	if err := dec.Decode(&extra); !xerrors.Is(err, io.EOF) {
		return nil, &MappingError{Reason: "trailing data after json body", Err: err}
	}
	return out, nil
}
