package mapper

import (
	"fmt"
	"math"
	"reflect"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"

	"github.com/ceyewan/courier/xerrors"
)

// assignJSON 将 JSON 值 raw 写入 v；null 视为存在但为零值
func assignJSON(v reflect.Value, raw any, path string) error {
	if raw == nil {
		v.SetZero()
		return nil
	}

	t := v.Type()
	switch {
	case t == timeType:
		s, ok := raw.(string)
		if !ok {
			return mismatch(path, t, "time string", raw)
		}
		tm, err := cast.ToTimeE(s)
		if err != nil {
			return &MappingError{Path: path, Type: t, Reason: "invalid time", Err: err}
		}
		v.Set(reflect.ValueOf(tm))
		return nil
	case t.Kind() == reflect.Pointer:
		elem := reflect.New(t.Elem())
		if err := assignJSON(elem.Elem(), raw, path); err != nil {
			return err
		}
		v.Set(elem)
		return nil
	case t.Kind() == reflect.Interface:
		rv := reflect.ValueOf(raw)
		if !rv.Type().AssignableTo(t) {
			return mismatch(path, t, t.String(), raw)
		}
		v.Set(rv)
		return nil
	}

	switch t.Kind() {
	case reflect.Struct:
		obj, ok := raw.(map[string]any)
		if !ok {
			return mismatch(path, t, "object", raw)
		}
		return mapObject(v, obj, path)

	case reflect.Slice:
		arr, ok := raw.([]any)
		if !ok {
			return mismatch(path, t, "array", raw)
		}
		out := reflect.MakeSlice(t, len(arr), len(arr))
		for i, item := range arr {
			if err := assignJSON(out.Index(i), item, indexPath(path, i)); err != nil {
				return err
			}
		}
		v.Set(out)
		return nil

	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return &MappingError{Path: path, Type: t, Reason: "map key must be a string kind"}
		}
		obj, ok := raw.(map[string]any)
		if !ok {
			return mismatch(path, t, "object", raw)
		}
		out := reflect.MakeMapWithSize(t, len(obj))
		for k, item := range obj {
			ev := reflect.New(t.Elem()).Elem()
			if err := assignJSON(ev, item, joinPath(path, k)); err != nil {
				return err
			}
			out.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), ev)
		}
		v.Set(out)
		return nil

	case reflect.String:
		s, ok := raw.(string)
		if !ok {
			return mismatch(path, t, "string", raw)
		}
		v.SetString(s)
		return nil

	case reflect.Bool:
		b, ok := raw.(bool)
		if !ok {
			return mismatch(path, t, "bool", raw)
		}
		v.SetBool(b)
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if !isNumber(raw) {
			return mismatch(path, t, "number", raw)
		}
		return setNumber(v, raw, path)
	}

	return &MappingError{Path: path, Type: t, Reason: "unsupported field kind " + t.Kind().String()}
}

func mapObject(v reflect.Value, obj map[string]any, path string) error {
	s, err := schemaOf(v.Type())
	if err != nil {
		return err
	}
	for _, f := range s.fields {
		raw, ok := obj[f.jsonName]
		if !ok {
			if f.required {
				return &MappingError{Path: joinPath(path, f.jsonName), Type: v.Type(), Reason: "required field missing"}
			}
			continue
		}
		if err := assignJSON(v.FieldByIndex(f.index), raw, joinPath(path, f.jsonName)); err != nil {
			return err
		}
	}
	return finalize(v, path)
}

func isNumber(raw any) bool {
	switch raw.(type) {
	case json.Number, float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

// setNumber 在数值类型之间转换，拒绝溢出与丢失小数部分
func setNumber(v reflect.Value, raw any, path string) error {
	fail := func(err error) error {
		return &MappingError{Path: path, Type: v.Type(), Reason: fmt.Sprintf("cannot store %v", raw), Err: err}
	}

	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		f, err := toFloat64(raw)
		if err != nil {
			return fail(err)
		}
		if v.OverflowFloat(f) {
			return fail(errOverflow)
		}
		v.SetFloat(f)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := toInt64(raw)
		if err != nil {
			// 超出 int64 的无符号数
			u, uerr := cast.ToUint64E(raw)
			if uerr != nil {
				return fail(err)
			}
			if v.OverflowUint(u) {
				return fail(errOverflow)
			}
			v.SetUint(u)
			return nil
		}
		if n < 0 || v.OverflowUint(uint64(n)) {
			return fail(errOverflow)
		}
		v.SetUint(uint64(n))
	default:
		n, err := toInt64(raw)
		if err != nil {
			return fail(err)
		}
		if v.OverflowInt(n) {
			return fail(errOverflow)
		}
		v.SetInt(n)
	}
	return nil
}

var errOverflow = xerrors.New("value out of range")

func toInt64(raw any) (int64, error) {
	switch n := raw.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return floatToInt(f)
	case float64:
		return floatToInt(n)
	case float32:
		return floatToInt(float64(n))
	case uint64:
		if n > math.MaxInt64 {
			return 0, errOverflow
		}
		return int64(n), nil
	default:
		return cast.ToInt64E(raw)
	}
}

func toFloat64(raw any) (float64, error) {
	if n, ok := raw.(json.Number); ok {
		return n.Float64()
	}
	return cast.ToFloat64E(raw)
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, errOverflow
	}
	return int64(f), nil
}
