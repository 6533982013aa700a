// Package auth 为出站调用签发服务间 JWT。
//
// TokenSource 按需签发 HS256 Token 并缓存，距过期不足 RefreshBefore 时重新签发，
// 适合作为 dispatch 调用点的 Bearer Token 提供者：
//
//	tokens, _ := auth.New(&auth.Config{
//		SecretKey: os.Getenv("BILLING_JWT_SECRET"),
//		Issuer:    "orders-service",
//		Audience:  []string{"billing"},
//	}, auth.WithLogger(logger))
//
//	charge, _ := dispatch.Declare[ChargeArgs, Receipt](client, http.MethodPost, "/charges",
//		dispatch.WithAuthToken(dispatch.Provider(tokens.Token)))
//
// 上游（或测试中的模拟上游）可用同一密钥通过 Validate 校验。
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ceyewan/courier/clog"
	"github.com/ceyewan/courier/metrics"
	"github.com/ceyewan/courier/xerrors"
)

// TokenSource 签发并缓存 Token，并发安全
type TokenSource struct {
	cfg    Config
	logger clog.Logger
	now    func() time.Time

	issued   metrics.Counter
	verified metrics.Counter

	mu      sync.Mutex
	current string
	expires time.Time
}

// New 创建 TokenSource
func New(cfg *Config, opts ...Option) (*TokenSource, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	issued, err := o.meter.Counter(MetricTokensIssued, "Service tokens signed")
	if err != nil {
		return nil, err
	}
	verified, err := o.meter.Counter(MetricTokensValidated, "Service tokens validated")
	if err != nil {
		return nil, err
	}

	return &TokenSource{
		cfg:      c,
		logger:   o.logger,
		now:      o.now,
		issued:   issued,
		verified: verified,
	}, nil
}

// Token 返回当前有效的 Token，签发失败时记录日志并返回空串（调用点随即不发送 Authorization）
func (s *TokenSource) Token() string {
	tok, err := s.TokenContext(context.Background())
	if err != nil {
		s.logger.Error("sign service token failed", clog.Error(err))
		return ""
	}
	return tok
}

// TokenContext 同 Token，返回签发错误
func (s *TokenSource) TokenContext(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.current != "" && now.Add(s.cfg.RefreshBefore).Before(s.expires) {
		return s.current, nil
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   s.cfg.Subject,
			Audience:  s.cfg.Audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TTL)),
		},
		Scopes: s.cfg.Scopes,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.SecretKey))
	if err != nil {
		return "", xerrors.Wrap(err, "auth: sign token")
	}

	s.current = tok
	s.expires = claims.ExpiresAt.Time
	s.issued.Inc(ctx)
	s.logger.DebugContext(ctx, "service token issued",
		clog.String("issuer", s.cfg.Issuer), clog.Time("expires_at", s.expires))
	return tok, nil
}

// Validate 校验 Token 的签名、有效期与 Audience
func (s *TokenSource) Validate(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	if len(s.cfg.Audience) > 0 {
		opts = append(opts, jwt.WithAudience(s.cfg.Audience[0]))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(s.cfg.SecretKey), nil
	}, opts...)
	if err != nil {
		kind := ErrInvalidToken
		switch {
		case xerrors.Is(err, jwt.ErrTokenExpired):
			kind = ErrExpiredToken
		case xerrors.Is(err, jwt.ErrTokenSignatureInvalid):
			kind = ErrInvalidSignature
		}
		s.verified.Inc(ctx, metrics.L("status", "error"))
		return nil, xerrors.Wrap(kind, err.Error())
	}

	s.verified.Inc(ctx, metrics.L("status", "ok"))
	return claims, nil
}
