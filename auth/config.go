package auth

import (
	"time"

	"github.com/ceyewan/courier/xerrors"
)

// Config 服务 Token 配置
type Config struct {
	SecretKey string   `mapstructure:"secret_key"` // HS256 密钥，至少 32 字符
	Issuer    string   `mapstructure:"issuer"`     // iss
	Subject   string   `mapstructure:"subject"`    // sub，默认与 Issuer 相同
	Audience  []string `mapstructure:"audience"`   // aud
	Scopes    []string `mapstructure:"scopes"`

	// TTL Token 有效期，默认 15m
	TTL time.Duration `mapstructure:"ttl"`
	// RefreshBefore 距过期不足该时长时重新签发，默认 TTL 的 1/5
	RefreshBefore time.Duration `mapstructure:"refresh_before"`
}

func (c *Config) setDefaults() {
	if c.TTL <= 0 {
		c.TTL = 15 * time.Minute
	}
	if c.RefreshBefore <= 0 {
		c.RefreshBefore = c.TTL / 5
	}
	if c.Subject == "" {
		c.Subject = c.Issuer
	}
}

func (c *Config) validate() error {
	if len(c.SecretKey) < 32 {
		return xerrors.Wrapf(ErrInvalidConfig, "secret_key must be at least 32 characters")
	}
	if c.RefreshBefore >= c.TTL {
		return xerrors.Wrapf(ErrInvalidConfig, "refresh_before (%s) must be shorter than ttl (%s)", c.RefreshBefore, c.TTL)
	}
	return nil
}
