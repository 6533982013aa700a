package mapper

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"
)

var timeType = reflect.TypeFor[time.Time]()

type field struct {
	index    []int
	jsonName string
	xmlName  string
	required bool
	typ      reflect.Type
}

type schema struct {
	typ    reflect.Type
	fields []field
}

var schemas sync.Map // map[reflect.Type]*schema

func schemaOf(t reflect.Type) (*schema, error) {
	if s, ok := schemas.Load(t); ok {
		return s.(*schema), nil
	}
	s := &schema{typ: t}
	if err := collectFields(t, nil, s, map[string]bool{}); err != nil {
		return nil, err
	}
	actual, _ := schemas.LoadOrStore(t, s)
	return actual.(*schema), nil
}

func collectFields(t reflect.Type, prefix []int, s *schema, seen map[string]bool) error {
	for i := range t.NumField() {
		sf := t.Field(i)
		tag := sf.Tag.Get("map")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		index := append(slices.Clone(prefix), i)

		// 未命名的内嵌结构体展开到外层
		if sf.Anonymous && name == "" && sf.Type.Kind() == reflect.Struct && sf.Type != timeType {
			if err := collectFields(sf.Type, index, s, seen); err != nil {
				return err
			}
			continue
		}
		if !sf.IsExported() {
			continue
		}

		jsonName, jsonSkip := tagName(sf.Tag.Get("json"))
		if name == "" && jsonSkip {
			continue
		}
		xmlName, _ := tagName(sf.Tag.Get("xml"))

		f := field{
			index:    index,
			jsonName: firstNonEmpty(name, jsonName, sf.Name),
			xmlName:  firstNonEmpty(name, xmlName, sf.Name),
			required: slices.Contains(strings.Split(opts, ","), "required"),
			typ:      sf.Type,
		}
		if seen[f.jsonName] {
			return &MappingError{Type: s.typ, Reason: fmt.Sprintf("duplicate field name %q", f.jsonName)}
		}
		seen[f.jsonName] = true
		s.fields = append(s.fields, f)
	}
	return nil
}

// tagName 解析 json/xml 标签的名称部分，skip 表示标签为 "-"
func tagName(tag string) (name string, skip bool) {
	if tag == "-" {
		return "", true
	}
	name, _, _ = strings.Cut(tag, ",")
	// xml 标签可能带命名空间前缀 "ns local"
	if i := strings.LastIndexByte(name, ' '); i >= 0 {
		name = name[i+1:]
	}
	return name, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// targetOf 返回 t 中需要按 schema 映射的结构体类型（剥离指针、切片、map），没有则返回 nil
func targetOf(t reflect.Type) reflect.Type {
	for {
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Map:
			t = t.Elem()
		case reflect.Struct:
			if t == timeType {
				return nil
			}
			return t
		default:
			return nil
		}
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func indexPath(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

func finalize(v reflect.Value, path string) error {
	if !v.CanAddr() {
		return nil
	}
	fin, ok := v.Addr().Interface().(Finalizer)
	if !ok {
		return nil
	}
	if err := fin.AfterMap(); err != nil {
		return &MappingError{Path: path, Type: v.Type(), Reason: "finalizer rejected value", Err: err}
	}
	return nil
}
