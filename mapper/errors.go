package mapper

import (
	"fmt"
	"reflect"

	"github.com/ceyewan/courier/xerrors"
)

// ErrMapping 所有映射失败的哨兵错误
var ErrMapping = xerrors.New("mapper: mapping failed")

// MappingError 描述映射失败的位置与原因
type MappingError struct {
	Path   string       // 出错位置，如 "owner.tags[2]"，根为空
	Type   reflect.Type // 目标类型
	Reason string
	Err    error
}

func (e *MappingError) Error() string {
	path := e.Path
	if path == "" {
		path = "$"
	}
	msg := fmt.Sprintf("mapper: %s: %s", path, e.Reason)
	if e.Type != nil {
		msg += " (target " + e.Type.String() + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MappingError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMapping, e.Err}
	}
	return []error{ErrMapping}
}

func (e *MappingError) ErrorCode() string { return "MAPPING" }

func mismatch(path string, t reflect.Type, want string, got any) error {
	return &MappingError{Path: path, Type: t, Reason: fmt.Sprintf("expected %s, got %T", want, got)}
}
