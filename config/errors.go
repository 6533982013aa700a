package config

import "github.com/ceyewan/courier/xerrors"

// ErrValidationFailed 配置校验失败
var ErrValidationFailed = xerrors.New("configuration validation failed")

// IsNotFound 检查错误是否为配置未找到
func IsNotFound(err error) bool {
	return xerrors.Is(err, xerrors.ErrNotFound)
}

// IsInvalidInput 检查错误是否为配置格式无效或校验失败
func IsInvalidInput(err error) bool {
	return xerrors.Is(err, xerrors.ErrInvalidInput) || xerrors.Is(err, ErrValidationFailed)
}

func wrapLoadError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return xerrors.Wrapf(xerrors.Join(xerrors.ErrInvalidInput, err), format, args...)
}
