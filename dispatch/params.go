package dispatch

import (
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/spf13/cast"
)

// ============================================================================
// 参数绑定
// ============================================================================

// 参数结构体的字段标签：
//
//	path:"id"            填充 URL 模板中的 {id}
//	query:"lang"         查询参数，切片展开为多个值
//	form:"name"          表单参数 (application/x-www-form-urlencoded)
//	body:"json"          整个字段作为 JSON 请求体
//
// query 与 form 支持 omitempty 选项，零值不发送；nil 指针始终不发送。

type paramKind int

const (
	paramPath paramKind = iota
	paramQuery
	paramForm
	paramBody
)

func (k paramKind) String() string {
	return [...]string{"path", "query", "form", "body"}[k]
}

type param struct {
	kind      paramKind
	name      string
	index     []int
	omitEmpty bool
}

// binding 参数结构体的字段表，声明时生成
type binding struct {
	params []param
	isPtr  bool
}

// request 渲染后的请求
type request struct {
	url   string
	query url.Values
	form  url.Values
	json  any
}

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// placeholders 返回 URL 模板中的占位符名
func placeholders(template string) []string {
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		names = append(names, m[1])
	}
	return names
}

// newBinding 解析参数类型 t 的字段标签，并检查 URL 模板中的每个占位符都有对应的 path 字段
func newBinding(t reflect.Type, template string) (*binding, error) {
	b := &binding{}
	if t.Kind() == reflect.Pointer {
		b.isPtr = true
		t = t.Elem()
	}

	if t.Kind() == reflect.Struct {
		if err := b.collect(t, nil); err != nil {
			return nil, err
		}
	}

	paths := map[string]bool{}
	for _, p := range b.params {
		if p.kind == paramPath {
			paths[p.name] = true
		}
	}
	for _, name := range placeholders(template) {
		if !paths[name] {
			return nil, configError("url placeholder {%s} has no matching path parameter in %s", name, t)
		}
	}
	return b, nil
}

func (b *binding) collect(t reflect.Type, prefix []int) error {
	var hasBody, hasForm bool
	for _, p := range b.params {
		hasBody = hasBody || p.kind == paramBody
		hasForm = hasForm || p.kind == paramForm
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		index := append(append([]int(nil), prefix...), i)

		if f.Anonymous && f.Type.Kind() == reflect.Struct && !hasParamTag(f.Tag) {
			if err := b.collect(f.Type, index); err != nil {
				return err
			}
			continue
		}
		if !f.IsExported() {
			continue
		}

		p, ok, err := parseParamTag(f)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		p.index = index

		switch p.kind {
		case paramPath:
			if !renderable(f.Type) {
				return &ParameterError{Field: f.Name, Value: reflect.Zero(f.Type).Interface(), Reason: "path parameters must be scalar"}
			}
		case paramBody:
			if hasBody {
				return configError("more than one body parameter in %s", t)
			}
			hasBody = true
		case paramForm:
			hasForm = true
		}
		if hasBody && hasForm {
			return configError("form and json body parameters are mutually exclusive in %s", t)
		}
		b.params = append(b.params, p)
	}
	return nil
}

func hasParamTag(tag reflect.StructTag) bool {
	for _, key := range []string{"path", "query", "form", "body"} {
		if _, ok := tag.Lookup(key); ok {
			return true
		}
	}
	return false
}

func parseParamTag(f reflect.StructField) (param, bool, error) {
	for kind, key := range []string{"path", "query", "form", "body"} {
		tag, ok := f.Tag.Lookup(key)
		if !ok {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		p := param{kind: paramKind(kind), name: name, omitEmpty: opts == "omitempty"}
		if p.kind == paramBody {
			if name != "json" {
				return param{}, false, configError("field %s: unsupported body encoding %q", f.Name, name)
			}
			return p, true, nil
		}
		if p.name == "" {
			p.name = f.Name
		}
		return p, true, nil
	}
	return param{}, false, nil
}

var stringerType = reflect.TypeFor[fmt.Stringer]()

// renderable 标量或实现 fmt.Stringer 的类型可以渲染为字符串
func renderable(t reflect.Type) bool {
	if t.Implements(stringerType) {
		return true
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
		if t.Implements(stringerType) {
			return true
		}
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// render 把标量值渲染为字符串
func render(field string, rv reflect.Value) (string, error) {
	if rv.Type().Implements(stringerType) && rv.CanInterface() {
		return rv.Interface().(fmt.Stringer).String(), nil
	}
	var v any
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		v = rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v = rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v = rv.Uint()
	case reflect.Float32, reflect.Float64:
		v = rv.Float()
	default:
		return "", &ParameterError{Field: field, Value: rv.Interface(), Reason: "unsupported kind " + rv.Kind().String()}
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", &ParameterError{Field: field, Value: rv.Interface(), Reason: err.Error()}
	}
	return s, nil
}

// renderValues 渲染查询或表单参数的值，切片与数组展开为多个值
func renderValues(field string, rv reflect.Value) ([]string, error) {
	for rv.Kind() == reflect.Interface || (rv.Kind() == reflect.Pointer && !rv.Type().Implements(stringerType)) {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		return []string{string(rv.Bytes())}, nil
	}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			s, err := renderValues(field, rv.Index(i))
			if err != nil {
				return nil, err
			}
			out = append(out, s...)
		}
		return out, nil
	}
	s, err := render(field, rv)
	if err != nil {
		return nil, err
	}
	return []string{s}, nil
}

// bind 按字段表渲染一次调用的请求
func (b *binding) bind(template string, args any) (*request, error) {
	req := &request{url: template}
	rv := reflect.ValueOf(args)
	if b.isPtr {
		if !rv.IsValid() || rv.IsNil() {
			if len(b.params) > 0 {
				return nil, configError("arguments are nil")
			}
			return req, nil
		}
		rv = rv.Elem()
	}

	replacer := make([]string, 0, 2*len(b.params))
	for _, p := range b.params {
		fv, ok := fieldByIndex(rv, p.index)
		if !ok || (fv.Kind() == reflect.Pointer && fv.IsNil()) {
			if p.kind == paramPath {
				return nil, &ParameterError{Field: p.name, Value: nil, Reason: "path parameter is nil"}
			}
			continue
		}
		if p.omitEmpty && p.kind != paramPath && fv.IsZero() {
			continue
		}

		switch p.kind {
		case paramPath:
			if fv.Kind() == reflect.Pointer && !fv.Type().Implements(stringerType) {
				fv = fv.Elem()
			}
			s, err := render(p.name, fv)
			if err != nil {
				return nil, err
			}
			replacer = append(replacer, "{"+p.name+"}", url.PathEscape(s))
		case paramQuery, paramForm:
			values, err := renderValues(p.name, fv)
			if err != nil {
				return nil, err
			}
			target := &req.query
			if p.kind == paramForm {
				target = &req.form
			}
			if *target == nil {
				*target = url.Values{}
			}
			(*target)[p.name] = append((*target)[p.name], values...)
		case paramBody:
			req.json = fv.Interface()
		}
	}
	if len(replacer) > 0 {
		req.url = strings.NewReplacer(replacer...).Replace(template)
	}
	return req, nil
}

// fieldByIndex 沿嵌入字段取值，遇到 nil 嵌入指针返回 false
func fieldByIndex(v reflect.Value, index []int) (reflect.Value, bool) {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v, true
}

// ============================================================================
// 函数声明形式
// ============================================================================

// Call 函数声明形式返回的请求描述
type Call struct {
	URL      string
	Params   map[string]any // 查询参数
	Data     map[string]any // 表单参数
	JSONBody any            // JSON 请求体，与 Data 互斥
}

func (c Call) request() (*request, error) {
	if strings.TrimSpace(c.URL) == "" {
		return nil, configError("call url is empty")
	}
	if c.Data != nil && c.JSONBody != nil {
		return nil, configError("call data and json body are mutually exclusive")
	}

	req := &request{url: c.URL, json: c.JSONBody}
	var err error
	if req.query, err = valuesOf(c.Params); err != nil {
		return nil, err
	}
	if c.Data != nil {
		if req.form, err = valuesOf(c.Data); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func valuesOf(m map[string]any) (url.Values, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(url.Values, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		values, err := renderValues(k, reflect.ValueOf(v))
		if err != nil {
			return nil, err
		}
		out[k] = values
	}
	return out, nil
}

// fingerprintParams 把查询参数转换为参与缓存 key 计算的形式
func fingerprintParams(q url.Values) map[string]any {
	if len(q) == 0 {
		return nil
	}
	out := make(map[string]any, len(q))
	for k, vs := range q {
		if len(vs) == 1 {
			out[k] = vs[0]
			continue
		}
		out[k] = vs
	}
	return out
}
