package xerrors

import (
	"errors"
	"testing"
)

func TestWrap(t *testing.T) {
	if err := Wrap(nil, "context"); err != nil {
		t.Errorf("Wrap(nil) = %v，期望 nil", err)
	}

	base := errors.New("connection refused")
	wrapped := Wrap(base, "attempt 1")
	if wrapped.Error() != "attempt 1: connection refused" {
		t.Errorf("Wrap(err).Error() = %q", wrapped.Error())
	}
	if !errors.Is(wrapped, base) {
		t.Error("errors.Is(wrapped, base) = false，期望 true")
	}
}

func TestWrapf(t *testing.T) {
	if err := Wrapf(nil, "url %s", "x"); err != nil {
		t.Errorf("Wrapf(nil) = %v，期望 nil", err)
	}

	wrapped := Wrapf(ErrNotFound, "endpoint %q", "users")
	if wrapped.Error() != `endpoint "users": not found` {
		t.Errorf("Wrapf(err).Error() = %q", wrapped.Error())
	}
	if !Is(wrapped, ErrNotFound) {
		t.Error("Wrapf 应保留哨兵错误")
	}
}

type codedKind struct{}

func (codedKind) Error() string     { return "kind" }
func (codedKind) ErrorCode() string { return "KIND" }

func TestGetCode(t *testing.T) {
	coded := WithCode(errors.New("cache miss"), "CACHE_MISS")
	if coded.Error() != "[CACHE_MISS] cache miss" {
		t.Errorf("WithCode(err).Error() = %q", coded.Error())
	}
	if code := GetCode(Wrap(coded, "lookup")); code != "CACHE_MISS" {
		t.Errorf("GetCode(wrapped) = %q，期望 CACHE_MISS", code)
	}

	// 实现 Coder 的类型同样可以提取
	if code := GetCode(Wrap(codedKind{}, "outer")); code != "KIND" {
		t.Errorf("GetCode(coder) = %q，期望 KIND", code)
	}

	if code := GetCode(errors.New("plain")); code != "" {
		t.Errorf("GetCode(plain) = %q，期望空", code)
	}
	if WithCode(nil, "X") != nil {
		t.Error("WithCode(nil) 应返回 nil")
	}
}

func TestMust(t *testing.T) {
	if v := Must(42, nil); v != 42 {
		t.Errorf("Must(42, nil) = %d，期望 42", v)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Error("Must(_, err) 未触发 panic")
		}
	}()
	Must(0, errors.New("boom"))
}

func TestCollector(t *testing.T) {
	var c Collector
	c.Collect(nil)
	if c.Err() != nil {
		t.Fatal("空 Collector 应返回 nil")
	}

	first := errors.New("first")
	c.Collect(first)
	c.Collect(errors.New("second"))
	if c.Err() != first {
		t.Errorf("Collector 应保留第一个错误，得到 %v", c.Err())
	}
}

func TestCombine(t *testing.T) {
	if Combine(nil, nil) != nil {
		t.Error("Combine(nil, nil) 应返回 nil")
	}

	only := errors.New("only")
	if Combine(nil, only) != only {
		t.Error("单个错误应原样返回")
	}

	a, b := errors.New("a"), errors.New("b")
	merged := Combine(a, nil, b)
	if merged.Error() != "a (and 1 more errors)" {
		t.Errorf("Combine().Error() = %q", merged.Error())
	}
	if !errors.Is(merged, b) {
		t.Error("MultiError 应支持 errors.Is 遍历")
	}
}
