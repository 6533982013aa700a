package config

import (
	"context"
	"strings"

	"github.com/ceyewan/courier/clog"
)

// Config 加载器配置
type Config struct {
	Name      string   // 配置文件名称（不含扩展名），默认 "config"
	Paths     []string // 配置文件搜索路径，默认 [".", "./config"]
	FileType  string   // 配置文件类型，默认 "yaml"
	EnvPrefix string   // 环境变量前缀，默认 "COURIER"
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "config"
	}
	if c.Paths == nil {
		c.Paths = []string{".", "./config"}
	}
	if c.FileType == "" {
		c.FileType = "yaml"
	}
	if c.EnvPrefix == "" {
		c.EnvPrefix = "COURIER"
	}
	c.EnvPrefix = strings.ToUpper(c.EnvPrefix)
}

// New 创建配置加载器，opts 在 cfg 之后应用
//
// 如果 cfg 为 nil，使用默认配置。
func New(cfg *Config, opts ...Option) (Loader, error) {
	o := options{logger: clog.Discard()}
	if cfg != nil {
		o.Config = *cfg
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.setDefaults()
	return newLoader(&o), nil
}

// Load 使用默认配置创建加载器并立即加载
func Load(ctx context.Context, opts ...Option) (Loader, error) {
	l, err := New(nil, opts...)
	if err != nil {
		return nil, err
	}
	if err := l.Load(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// MustLoad 同 Load，失败时 panic
func MustLoad(opts ...Option) Loader {
	l, err := Load(context.Background(), opts...)
	if err != nil {
		panic(err)
	}
	return l
}
