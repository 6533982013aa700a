package cache

import "github.com/ceyewan/courier/xerrors"

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config 缓存组件配置
type Config struct {
	// Driver 后端类型: "memory" | "redis" (默认 "memory")
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver"`

	// Prefix 全局 Key 前缀 (e.g., "courier:")
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`

	// Serializer 解码后 JSON 响应的落盘格式: "json" | "msgpack"
	Serializer string `json:"serializer" yaml:"serializer" mapstructure:"serializer"`

	// Capacity 内存后端最大条目数 (默认 10000)
	Capacity int `json:"capacity" yaml:"capacity" mapstructure:"capacity"`
}

// DefaultConfig 返回内存后端的默认配置
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Driver == "" {
		c.Driver = DriverMemory
	}
	if c.Prefix == "" {
		c.Prefix = "courier:"
	}
	if c.Serializer == "" {
		c.Serializer = "json"
	}
	if c.Capacity <= 0 {
		c.Capacity = 10000
	}
}

func (c *Config) validate() error {
	c.setDefaults()
	if c.Driver != DriverMemory && c.Driver != DriverRedis {
		return xerrors.Wrapf(ErrConfig, "driver must be %q or %q, got %q", DriverMemory, DriverRedis, c.Driver)
	}
	if c.Serializer != "json" && c.Serializer != "msgpack" {
		return xerrors.Wrapf(ErrConfig, "serializer must be \"json\" or \"msgpack\", got %q", c.Serializer)
	}
	return nil
}
