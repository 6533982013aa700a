package clog

import (
	"log/slog"
	"time"

	"github.com/ceyewan/courier/xerrors"
)

// Field 是 slog.Attr 的类型别名
type Field = slog.Attr

func String(k, v string) Field             { return slog.String(k, v) }
func Int(k string, v int) Field            { return slog.Int(k, v) }
func Int64(k string, v int64) Field        { return slog.Int64(k, v) }
func Float64(k string, v float64) Field    { return slog.Float64(k, v) }
func Bool(k string, v bool) Field          { return slog.Bool(k, v) }
func Time(k string, v time.Time) Field     { return slog.Time(k, v) }
func Duration(k string, v time.Duration) Field {
	return slog.Duration(k, v)
}
func Any(k string, v any) Field { return slog.Any(k, v) }

// Error 输出错误消息到 err_msg；错误链上带有错误码时一并输出 err_code
//
//	logger.Error("request failed", clog.Error(err))
//	// err_msg="GET http://...: status 503" err_code=TRANSPORT
func Error(err error) Field {
	if err == nil {
		return slog.String("", "")
	}
	if code := xerrors.GetCode(err); code != "" {
		return slog.Group("", slog.String("err_msg", err.Error()), slog.String("err_code", code))
	}
	return slog.String("err_msg", err.Error())
}

// ErrorWithCode 显式指定错误码，输出嵌套结构 error={msg=..., code=...}
func ErrorWithCode(err error, code string) Field {
	if err == nil {
		return slog.Group("error", slog.String("code", code))
	}
	return slog.Group("error",
		slog.String("msg", err.Error()),
		slog.String("code", code),
	)
}
