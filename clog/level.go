package clog

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ceyewan/courier/xerrors"
)

// Level 日志级别，数值与 slog 对齐，DebugLevel 最低
type Level int

const (
	DebugLevel Level = iota - 4 // 调试
	InfoLevel                   // 信息
	WarnLevel                   // 警告
	ErrorLevel                  // 错误
	FatalLevel                  // 致命，记录后进程退出
)

// String 返回 Level 的字符串表示
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	default:
		return fmt.Sprintf("level(%d)", l)
	}
}

// ParseLevel 将字符串（不区分大小写）解析为 Level
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, xerrors.Wrapf(xerrors.ErrInvalidInput, "unknown log level: %s", s)
	}
}

// slogLevel 映射到 slog.Level，fatal 没有对应常量，取 Error+4
func (l Level) slogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	case FatalLevel:
		return slog.LevelError + 4
	default:
		return slog.LevelInfo
	}
}
