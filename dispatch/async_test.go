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

	"github.com/ceyewan/courier/testkit"
)

func TestGoDeliversToCallbackAndFuture(t *testing.T) {
	up := testkit.NewUpstream(t, userRoute)
	runner := NewRunner(4)
	c := newClient(t, up, WithRunner(runner))

	var (
		mu      sync.Mutex
		results []string
	)
	ep, err := Declare[getUser, user](c, http.MethodGet, "/users/{id}",
		WithCallback(func(u user, err error) {
			assert.NoError(t, err)
			mu.Lock()
			results = append(results, u.Name)
			mu.Unlock()
		}))
	require.NoError(t, err)

	ctx := testkit.NewContext(t, 5*time.Second)
	futures := make([]*Future[user], 8)
	for i := range futures {
		futures[i] = ep.Go(ctx, getUser{ID: int64(i)})
	}
	for _, f := range futures {
		u, err := f.Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, "John", u.Name)
	}
	runner.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, results, 8)
}

func TestGoDeliversErrors(t *testing.T) {
	up := testkit.NewUpstream(t, func(r *gin.Engine) {
		r.GET("/down", testkit.Raw(http.StatusServiceUnavailable, "text/plain", "down"))
	})
	c := newClient(t, up, WithRunner(NewRunner(1)))

	got := make(chan error, 1)
	ep, err := Declare[struct{}, any](c, http.MethodGet, "/down",
		WithCallback(func(_ any, err error) { got <- err }))
	require.NoError(t, err)

	f := ep.Go(context.Background(), struct{}{})
	<-f.Done()
	_, err = f.Await(context.Background())
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, <-got, ErrRetriesExhausted)
}

func TestGoDeliversFallback(t *testing.T) {
	up := testkit.NewUpstream(t, userRoute)
	b := newBreaker(t, 1)
	b.RecordFailure()

	got := make(chan user, 1)
	ep, err := Declare[getUser, user](newClient(t, up), http.MethodGet, "/users/{id}",
		WithBreaker(b),
		WithFallback(func(context.Context, getUser) (user, error) { return user{Name: "cached copy"}, nil }),
		WithCallback(func(u user, err error) {
			assert.NoError(t, err)
			got <- u
		}))
	require.NoError(t, err)

	u, err := ep.Go(context.Background(), getUser{ID: 1}).Await(testkit.NewContext(t, 5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "cached copy", u.Name)
	assert.Equal(t, "cached copy", (<-got).Name)
	assert.Equal(t, 0, up.Hits("/users/1"))
}

func TestGoCallbackPanicStillResolvesFuture(t *testing.T) {
	up := testkit.NewUpstream(t, userRoute)
	runner := NewRunner(2)
	ep, err := Declare[getUser, user](newClient(t, up, WithRunner(runner)), http.MethodGet, "/users/{id}",
		WithCallback(func(user, error) { panic("callback bug") }))
	require.NoError(t, err)

	ctx := testkit.NewContext(t, 2*time.Second)
	for i := range 3 {
		u, err := ep.Go(ctx, getUser{ID: int64(i)}).Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, "John", u.Name)
	}
	assert.NotPanics(t, runner.Wait)
}

func TestAwaitRespectsContext(t *testing.T) {
	f := newFuture[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	f.resolve(7, nil)
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestDefaultRunnerIsShared(t *testing.T) {
	var wg sync.WaitGroup
	runners := make([]*Runner, 16)
	for i := range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runners[i] = DefaultRunner()
		}()
	}
	wg.Wait()
	for _, r := range runners {
		assert.Same(t, runners[0], r)
	}
}
