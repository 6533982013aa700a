package dispatch

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/courier/ratelimit"
	"github.com/ceyewan/courier/retry"
	"github.com/ceyewan/courier/testkit"
)

// recordingLimiter 记录每次 Wait 的 key 与规则
type recordingLimiter struct {
	mu    sync.Mutex
	keys  []string
	rules []ratelimit.Limit
	err   error
}

func (r *recordingLimiter) Allow(context.Context, string, ratelimit.Limit) (bool, error) {
	return true, nil
}

func (r *recordingLimiter) Wait(_ context.Context, key string, limit ratelimit.Limit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	r.rules = append(r.rules, limit)
	return r.err
}

func (r *recordingLimiter) Close() error { return nil }

func TestRateLimitWaitsBeforeEachAttempt(t *testing.T) {
	up := testkit.NewUpstream(t, func(r *gin.Engine) {
		r.GET("/flaky", testkit.FailFirst(1, http.StatusServiceUnavailable, testkit.JSON(http.StatusOK, gin.H{"ok": true})))
	})
	lim := &recordingLimiter{}
	c := newClient(t, up, WithLimiter(lim))

	ep, err := Declare[struct{}, map[string]any](c, http.MethodGet, "/flaky",
		WithName("flaky"), WithRetries(2), WithRetryDelay(retry.Fixed(0)), WithRateLimit(5, 1))
	require.NoError(t, err)
	_, err = ep.Call(context.Background(), struct{}{})
	require.NoError(t, err)

	assert.Equal(t, []string{"flaky", "flaky"}, lim.keys)
	assert.Equal(t, ratelimit.Limit{Rate: 5, Burst: 1}, lim.rules[0])

	shared, err := Declare[struct{}, map[string]any](c, http.MethodGet, "/flaky",
		WithRateLimit(5, 1), WithRateLimitKey("upstream"))
	require.NoError(t, err)
	_, err = shared.Call(context.Background(), struct{}{})
	require.NoError(t, err)
	assert.Equal(t, "upstream", lim.keys[len(lim.keys)-1])
}

func TestRateLimitWaitFailure(t *testing.T) {
	up := testkit.NewUpstream(t, userRoute)
	b := newBreaker(t, 5)
	c := newClient(t, up, WithLimiter(&recordingLimiter{err: context.DeadlineExceeded}))

	ep, err := Declare[getUser, user](c, http.MethodGet, "/users/{id}", WithRateLimit(1, 1), WithBreaker(b))
	require.NoError(t, err)
	_, err = ep.Call(context.Background(), getUser{ID: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, up.Hits("/users/1"))
	assert.Equal(t, uint32(1), b.Counts().ConsecutiveFailures)
}

func TestRateLimitPacesCalls(t *testing.T) {
	up := testkit.NewUpstream(t, userRoute)
	c := newClient(t, up)

	ep, err := Declare[getUser, user](c, http.MethodGet, "/users/{id}", WithRateLimit(20, 1))
	require.NoError(t, err)

	ctx := testkit.NewContext(t, 5*time.Second)
	start := time.Now()
	for i := range 3 {
		_, err := ep.Call(ctx, getUser{ID: int64(i)})
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}
