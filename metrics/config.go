package metrics

// Config 指标系统配置
//
// 典型配置（YAML）：
//
//	metrics:
//	  enabled: true
//	  service_name: "billing-worker"
//	  version: "v1.2.3"
//	  port: 9090
//	  path: "/metrics"
type Config struct {
	// Enabled 为 false 时 New 返回 noop Meter
	Enabled bool `mapstructure:"enabled"`

	// ServiceName 作为 OpenTelemetry Resource 的 service.name
	ServiceName string `mapstructure:"service_name"`

	// Version 作为 service.version
	Version string `mapstructure:"version"`

	// Port 大于 0 时启动 HTTP 服务暴露 Prometheus 指标
	Port int `mapstructure:"port"`

	// Path Prometheus 抓取路径，默认 "/metrics"
	Path string `mapstructure:"path"`
}

// NewDevDefaultConfig 开发环境配置：启用指标但不监听端口
func NewDevDefaultConfig(serviceName string) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: serviceName,
		Version:     "dev",
		Path:        "/metrics",
	}
}

func (c *Config) setDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "courier"
	}
	if c.Path == "" {
		c.Path = "/metrics"
	}
}
