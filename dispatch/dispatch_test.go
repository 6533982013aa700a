package dispatch

import (
	"context"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/courier/breaker"
	"github.com/ceyewan/courier/cache/serializer"
	"github.com/ceyewan/courier/executor"
	"github.com/ceyewan/courier/metrics"
	"github.com/ceyewan/courier/retry"
	"github.com/ceyewan/courier/testkit"
	"github.com/ceyewan/courier/xerrors"
)

type getUser struct {
	ID   int64  `path:"id"`
	Lang string `query:"lang,omitempty"`
}

type address struct {
	Street string `json:"street"`
	City   string `json:"city"`
}

type user struct {
	Name    string   `json:"name"`
	Address address  `json:"address"`
	Friends []string `json:"friends"`
}

func userRoute(r *gin.Engine) {
	r.GET("/users/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":    "John",
			"address": gin.H{"street": "123 Main St", "city": "Hometown"},
			"friends": []string{"Alice", "Bob"},
			"id":      c.Param("id"),
		})
	})
}

func newClient(t *testing.T, up *testkit.Upstream, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithLogger(testkit.NewLogger())}, opts...)
	c, err := New(&Config{BaseURL: up.URL, Timeout: 2 * time.Second}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newBreaker(t *testing.T, threshold uint32, opts ...breaker.Option) breaker.Breaker {
	t.Helper()
	b, err := breaker.New(&breaker.Config{Name: "users-api", FailureThreshold: threshold, RecoveryTimeout: time.Hour}, opts...)
	require.NoError(t, err)
	return b
}

func TestCallMapsNestedJSON(t *testing.T) {
	up := testkit.NewUpstream(t, userRoute)
	ep, err := Declare[getUser, user](newClient(t, up), http.MethodGet, "/users/{id}")
	require.NoError(t, err)

	u, err := ep.Call(context.Background(), getUser{ID: 7})
	require.NoError(t, err)
	assert.Equal(t, user{
		Name:    "John",
		Address: address{Street: "123 Main St", City: "Hometown"},
		Friends: []string{"Alice", "Bob"},
	}, u)
	assert.Equal(t, 1, up.Hits("/users/7"))
}

func TestCallRawBody(t *testing.T) {
	up := testkit.NewUpstream(t, userRoute)
	ep, err := Declare[getUser, any](newClient(t, up), http.MethodGet, "/users/{id}")
	require.NoError(t, err)

	v, err := ep.Call(context.Background(), getUser{ID: 1})
	require.NoError(t, err)
	body, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "John", body["name"])
	assert.Equal(t, "1", body["id"])
}

func TestHeadersAndProviders(t *testing.T) {
	up := testkit.NewUpstream(t, func(r *gin.Engine) {
		r.GET("/echo", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"auth":    c.GetHeader("Authorization"),
				"key":     c.GetHeader("x-api-key"),
				"tenant":  c.GetHeader("X-Tenant"),
				"request": c.GetHeader("X-Request-ID"),
				"lang":    c.Query("lang"),
			})
		})
	})

	var calls atomic.Int64
	ep, err := Declare[getUser, map[string]string](newClient(t, up), http.MethodGet, "/echo",
		WithHeaders(Static(map[string]string{"X-Tenant": "acme"})),
		WithAuthToken(Provider(func() string {
			if calls.Add(1) == 1 {
				return "first"
			}
			return "second"
		})),
		WithAPIKey(Static("secret")),
	)
	require.NoError(t, err)

	first, err := ep.Call(context.Background(), getUser{Lang: "en"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer first", first["auth"])
	assert.Equal(t, "secret", first["key"])
	assert.Equal(t, "acme", first["tenant"])
	assert.Equal(t, "en", first["lang"])
	assert.NotEmpty(t, first["request"])

	second, err := ep.Call(context.Background(), getUser{})
	require.NoError(t, err)
	assert.Equal(t, "Bearer second", second["auth"])
	assert.Empty(t, second["lang"])
}

func TestEmptyProviderValuesAreSkipped(t *testing.T) {
	up := testkit.NewUpstream(t, func(r *gin.Engine) {
		r.GET("/echo", func(c *gin.Context) {
			_, hasAuth := c.Request.Header["Authorization"]
			c.JSON(http.StatusOK, gin.H{"has_auth": hasAuth})
		})
	})
	ep, err := Declare[struct{}, map[string]bool](newClient(t, up), http.MethodGet, "/echo",
		WithAuthToken(Provider(func() string { return "" })))
	require.NoError(t, err)

	out, err := ep.Call(context.Background(), struct{}{})
	require.NoError(t, err)
	assert.False(t, out["has_auth"])
}

func TestCacheServesRepeatedCalls(t *testing.T) {
	up := testkit.NewUpstream(t, userRoute)
	b := newBreaker(t, 1)
	ep, err := Declare[getUser, user](newClient(t, up), http.MethodGet, "/users/{id}",
		WithCache(time.Minute), WithBreaker(b))
	require.NoError(t, err)

	ctx := context.Background()
	for range 3 {
		u, err := ep.Call(ctx, getUser{ID: 1})
		require.NoError(t, err)
		assert.Equal(t, "John", u.Name)
	}
	assert.Equal(t, 1, up.Hits("/users/1"))

	// 命中缓存时不经过熔断器
	b.RecordFailure()
	require.Equal(t, breaker.StateOpen, b.State())
	u, err := ep.Call(ctx, getUser{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob"}, u.Friends)

	// 不同参数是不同的缓存 key
	_, err = ep.Call(ctx, getUser{ID: 2})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 0, up.Hits("/users/2"))
}

func TestCacheWithMessagePack(t *testing.T) {
	up := testkit.NewUpstream(t, userRoute)
	ser, err := serializer.New("msgpack")
	require.NoError(t, err)
	ep, err := Declare[getUser, user](newClient(t, up, WithSerializer(ser)), http.MethodGet, "/users/{id}",
		WithCache(0))
	require.NoError(t, err)

	for range 2 {
		u, err := ep.Call(context.Background(), getUser{ID: 3})
		require.NoError(t, err)
		assert.Equal(t, "Hometown", u.Address.City)
	}
	assert.Equal(t, 1, up.Hits("/users/3"))
}

func TestCacheOnMutatingMethodIsConfigError(t *testing.T) {
	up := testkit.NewUpstream(t, userRoute)
	c := newClient(t, up)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		_, err := Declare[getUser, user](c, method, "/users/{id}", WithCache(time.Minute))
		assert.ErrorIs(t, err, ErrConfiguration, method)
	}
	assert.Equal(t, 0, up.Hits("/users/1"))
}

func TestDeclareConfigErrors(t *testing.T) {
	up := testkit.NewUpstream(t, userRoute)
	c := newClient(t, up)

	tests := []struct {
		name string
		fn   func() error
	}{
		{"text payload with mapping target", func() error {
			_, err := Declare[getUser, user](c, http.MethodGet, "/users/{id}", WithPayload(PayloadText))
			return err
		}},
		{"placeholder without path field", func() error {
			_, err := Declare[getUser, user](c, http.MethodGet, "/users/{user_id}")
			return err
		}},
		{"zero retries", func() error {
			_, err := Declare[getUser, user](c, http.MethodGet, "/users/{id}", WithRetries(0))
			return err
		}},
		{"fallback with wrong types", func() error {
			_, err := Declare[getUser, user](c, http.MethodGet, "/users/{id}",
				WithFallback(func(context.Context, getUser) (string, error) { return "", nil }))
			return err
		}},
		{"callback with wrong type", func() error {
			_, err := Declare[getUser, user](c, http.MethodGet, "/users/{id}",
				WithCallback(func(string, error) {}))
			return err
		}},
		{"rate limit without burst", func() error {
			_, err := Declare[getUser, user](c, http.MethodGet, "/users/{id}", WithRateLimit(10, 0))
			return err
		}},
		{"non scalar path field", func() error {
			type args struct {
				IDs []int `path:"ids"`
			}
			_, err := Declare[args, any](c, http.MethodGet, "/users/{ids}")
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.fn(), ErrConfiguration)
		})
	}
	assert.Equal(t, 0, up.Hits("/users/1"))
}

func TestRetriesExhaustedRecordsOneFailure(t *testing.T) {
	up := testkit.NewUpstream(t, func(r *gin.Engine) {
		r.GET("/down", testkit.Raw(http.StatusServiceUnavailable, "text/plain", "maintenance"))
	})
	b := newBreaker(t, 5)
	ep, err := Declare[struct{}, any](newClient(t, up), http.MethodGet, "/down",
		WithRetries(3), WithRetryDelay(retry.Fixed(0)), WithBreaker(b))
	require.NoError(t, err)

	_, err = ep.Call(context.Background(), struct{}{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, executor.ErrTransport)
	assert.Equal(t, http.StatusServiceUnavailable, executor.StatusCode(err))
	assert.Equal(t, "RETRIES_EXHAUSTED", xerrors.GetCode(err))

	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)

	assert.Equal(t, 3, up.Hits("/down"))
	assert.Equal(t, uint32(1), b.Counts().ConsecutiveFailures)
	assert.Equal(t, breaker.StateClosed, b.State())
}

func TestRetryRecovers(t *testing.T) {
	up := testkit.NewUpstream(t, func(r *gin.Engine) {
		r.GET("/flaky", testkit.FailFirst(2, http.StatusBadGateway, testkit.JSON(http.StatusOK, gin.H{"ok": true})))
	})
	b := newBreaker(t, 5)
	ep, err := Declare[struct{}, map[string]bool](newClient(t, up), http.MethodGet, "/flaky",
		WithRetries(3), WithRetryDelay(retry.Values(time.Millisecond, time.Millisecond)), WithBreaker(b))
	require.NoError(t, err)

	out, err := ep.Call(context.Background(), struct{}{})
	require.NoError(t, err)
	assert.True(t, out["ok"])
	assert.Equal(t, 3, up.Hits("/flaky"))
	assert.Equal(t, uint32(1), b.Counts().TotalSuccesses)
	assert.Equal(t, uint32(0), b.Counts().TotalFailures)
}

func TestPerCallDelayIsReleasedAfterCall(t *testing.T) {
	up := testkit.NewUpstream(t, func(r *gin.Engine) {
		r.GET("/flaky", testkit.FailFirst(1, http.StatusBadGateway, testkit.JSON(http.StatusOK, gin.H{"ok": true})))
	})
	var started, finished atomic.Int32
	delay := retry.PerCall(func() iter.Seq[time.Duration] {
		return func(yield func(time.Duration) bool) {
			started.Add(1)
			defer finished.Add(1)
			for yield(time.Millisecond) {
			}
		}
	})
	ep, err := Declare[struct{}, map[string]bool](newClient(t, up), http.MethodGet, "/flaky",
		WithRetries(3), WithRetryDelay(delay))
	require.NoError(t, err)

	_, err = ep.Call(context.Background(), struct{}{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, int32(1), finished.Load(), "无限序列在调用结束时被停止")
}

func TestDelaySequenceExhaustion(t *testing.T) {
	up := testkit.NewUpstream(t, func(r *gin.Engine) {
		r.GET("/down", testkit.Raw(http.StatusInternalServerError, "text/plain", "boom"))
	})
	b := newBreaker(t, 5)
	ep, err := Declare[struct{}, any](newClient(t, up), http.MethodGet, "/down",
		WithRetries(3), WithRetryDelay(retry.Values(0)), WithBreaker(b))
	require.NoError(t, err)

	_, err = ep.Call(context.Background(), struct{}{})
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, retry.ErrDelaySequenceExhausted)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 2, up.Hits("/down"))
	assert.Equal(t, uint32(1), b.Counts().ConsecutiveFailures)
}

func TestFallbackWhenOpen(t *testing.T) {
	up := testkit.NewUpstream(t, userRoute)
	c := newClient(t, up)

	t.Run("call site fallback", func(t *testing.T) {
		b := newBreaker(t, 1, breaker.WithFallback(func(context.Context, string, any) (any, error) {
			return user{Name: "breaker"}, nil
		}))
		b.RecordFailure()

		ep, err := Declare[getUser, user](c, http.MethodGet, "/users/{id}", WithBreaker(b),
			WithFallback(func(_ context.Context, args getUser) (user, error) {
				assert.Equal(t, int64(9), args.ID)
				return user{Name: "fallback"}, nil
			}))
		require.NoError(t, err)

		u, err := ep.Call(context.Background(), getUser{ID: 9})
		require.NoError(t, err)
		assert.Equal(t, "fallback", u.Name)
	})

	t.Run("breaker fallback", func(t *testing.T) {
		b := newBreaker(t, 1, breaker.WithFallback(func(_ context.Context, name string, args any) (any, error) {
			assert.Equal(t, getUser{ID: 9}, args)
			return user{Name: name}, nil
		}))
		b.RecordFailure()

		ep, err := Declare[getUser, user](c, http.MethodGet, "/users/{id}", WithBreaker(b))
		require.NoError(t, err)

		u, err := ep.Call(context.Background(), getUser{ID: 9})
		require.NoError(t, err)
		assert.Equal(t, "users-api", u.Name)
	})

	assert.Equal(t, 0, up.Hits("/users/9"))
}

func TestBlockedWithoutFallback(t *testing.T) {
	up := testkit.NewUpstream(t, userRoute)
	b := newBreaker(t, 1)
	b.RecordFailure()

	ep, err := Declare[getUser, user](newClient(t, up), http.MethodGet, "/users/{id}", WithBreaker(b))
	require.NoError(t, err)

	_, err = ep.Call(context.Background(), getUser{ID: 4})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, breaker.IsRejected(err))

	var open *CircuitOpenError
	require.ErrorAs(t, err, &open)
	assert.Equal(t, "users-api", open.Breaker)
	assert.Equal(t, up.URL+"/users/4", open.Target)
	assert.Equal(t, 0, up.Hits("/users/4"))
}

func TestBreakerRegistryPerHost(t *testing.T) {
	up := testkit.NewUpstream(t, func(r *gin.Engine) {
		r.GET("/down", testkit.Raw(http.StatusServiceUnavailable, "text/plain", "down"))
	})
	c, err := New(&Config{
		BaseURL: up.URL,
		Breaker: BreakerConfig{Enabled: true, FailureThreshold: 2, RecoveryTimeout: time.Hour},
	}, WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ep, err := Declare[struct{}, any](c, http.MethodGet, "/down")
	require.NoError(t, err)

	ctx := context.Background()
	for range 2 {
		_, err = ep.Call(ctx, struct{}{})
		assert.ErrorIs(t, err, ErrRetriesExhausted)
	}
	_, err = ep.Call(ctx, struct{}{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, up.Hits("/down"))
}

func TestPayloadKinds(t *testing.T) {
	type book struct {
		ID    int      `xml:"id,attr"`
		Title string   `xml:"title"`
		Tags  []string `xml:"tags"`
	}
	up := testkit.NewUpstream(t, func(r *gin.Engine) {
		r.GET("/books", testkit.Raw(http.StatusOK, "application/xml",
			`<books><book id="1"><title>Go</title><tags><tag>a</tag><tag>b</tag></tags></book><book id="2"><title>Rust</title></book></books>`))
		r.GET("/motd", testkit.Raw(http.StatusOK, "text/plain", "hello"))
	})
	c := newClient(t, up)
	ctx := context.Background()

	books, err := Declare[struct{}, []book](c, http.MethodGet, "/books", WithPayload(PayloadXML), WithCache(time.Minute))
	require.NoError(t, err)
	for range 2 {
		got, err := books.Call(ctx, struct{}{})
		require.NoError(t, err)
		assert.Equal(t, []book{{ID: 1, Title: "Go", Tags: []string{"a", "b"}}, {ID: 2, Title: "Rust"}}, got)
	}
	assert.Equal(t, 1, up.Hits("/books"))

	text, err := Declare[struct{}, string](c, http.MethodGet, "/motd", WithPayload(PayloadText))
	require.NoError(t, err)
	s, err := text.Call(ctx, struct{}{})
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	raw, err := Declare[struct{}, any](c, http.MethodGet, "/motd", WithPayload(PayloadText))
	require.NoError(t, err)
	v, err := raw.Call(ctx, struct{}{})
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestMappingErrorIsNotRetried(t *testing.T) {
	up := testkit.NewUpstream(t, func(r *gin.Engine) {
		r.GET("/users/:id", testkit.JSON(http.StatusOK, gin.H{"name": 42}))
	})
	ep, err := Declare[getUser, user](newClient(t, up), http.MethodGet, "/users/{id}",
		WithRetries(3), WithRetryDelay(retry.Fixed(0)))
	require.NoError(t, err)

	_, err = ep.Call(context.Background(), getUser{ID: 1})
	assert.Error(t, err)
	assert.Equal(t, "MAPPING", xerrors.GetCode(err))
	assert.Equal(t, 1, up.Hits("/users/1"))
}

func TestMetricsOutcomes(t *testing.T) {
	kit := testkit.NewKit(t)
	up := testkit.NewUpstream(t, userRoute)
	ep, err := Declare[getUser, user](newClient(t, up, WithMeter(kit.Meter)), http.MethodGet, "/users/{id}",
		WithName("get-user"), WithCache(time.Minute))
	require.NoError(t, err)

	for range 2 {
		_, err = ep.Call(context.Background(), getUser{ID: 1})
		require.NoError(t, err)
	}

	rec := httptest.NewRecorder()
	metrics.Handler(kit.Meter).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	out := string(body)
	assert.Contains(t, out, `outcome="cache_hit"`)
	assert.Contains(t, out, `outcome="success"`)
	assert.Contains(t, out, `endpoint="get-user"`)
}

func TestSpecDefaults(t *testing.T) {
	up := testkit.NewUpstream(t, userRoute)
	c, err := New(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ep, err := Declare[getUser, user](c, "get", up.URL+"/users/{id}")
	require.NoError(t, err)

	spec := ep.Spec()
	assert.Equal(t, http.MethodGet, spec.Method)
	assert.Equal(t, 30*time.Second, spec.Timeout)
	assert.Equal(t, 1, spec.Retries)
	assert.Equal(t, PayloadJSON, spec.Payload)
	assert.Equal(t, "x-api-key", spec.APIKeyHeader)
	assert.False(t, spec.Cache)
	assert.Equal(t, "GET "+up.URL+"/users/{id}", spec.Name)
	d, err := spec.RetryDelay.Schedule().Next()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)
}
