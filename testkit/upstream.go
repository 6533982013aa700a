package testkit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
)

// Upstream 基于 gin 的假上游服务，记录每个路径的命中次数
type Upstream struct {
	URL    string
	Engine *gin.Engine

	server *httptest.Server
	mu     sync.Mutex
	hits   map[string]int
}

// NewUpstream 启动假上游，register 用于注册路由，测试结束时自动关闭
func NewUpstream(t *testing.T, register func(r *gin.Engine)) *Upstream {
	t.Helper()
	gin.SetMode(gin.TestMode)

	u := &Upstream{Engine: gin.New(), hits: make(map[string]int)}
	u.Engine.Use(func(c *gin.Context) {
		u.mu.Lock()
		u.hits[c.Request.URL.Path]++
		u.mu.Unlock()
		c.Next()
	})
	if register != nil {
		register(u.Engine)
	}

	u.server = httptest.NewServer(u.Engine)
	u.URL = u.server.URL
	t.Cleanup(u.server.Close)
	return u
}

// Hits 返回路径被请求的次数
func (u *Upstream) Hits(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hits[path]
}

// FailFirst 前 n 次请求返回 status，之后交给 next 处理
func FailFirst(n int, status int, next gin.HandlerFunc) gin.HandlerFunc {
	var count atomic.Int64
	return func(c *gin.Context) {
		if count.Add(1) <= int64(n) {
			c.String(status, http.StatusText(status))
			return
		}
		next(c)
	}
}

// JSON 返回固定 JSON 响应的处理器
func JSON(status int, body any) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(status, body)
	}
}

// Raw 返回固定原始响应的处理器
func Raw(status int, contentType string, body string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Data(status, contentType, []byte(body))
	}
}
