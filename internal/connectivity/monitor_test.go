package connectivity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/go-marketplace-stock/internal/apperr"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_ReconnectHookRunsOnlyOnOfflineToOnline(t *testing.T) {
	m := NewMonitor(Options{})
	var calls atomic.Int32
	m.OnReconnect(func(context.Context) { calls.Add(1) })

	assert.True(t, m.IsOnline())
	m.SetOnline(true)
	m.Wait()
	assert.Equal(t, int32(0), calls.Load(), "already online")

	m.SetOnline(false)
	m.SetOnline(false)
	assert.False(t, m.IsOnline())

	m.SetOnline(true)
	m.Wait()
	assert.True(t, m.IsOnline())
	assert.Equal(t, int32(1), calls.Load())
}

type flakyPinger struct {
	mu  sync.Mutex
	err error
	n   int
}

func (p *flakyPinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	return p.err
}

func (p *flakyPinger) set(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func TestMonitor_RunFollowsProbe(t *testing.T) {
	p := &flakyPinger{err: errors.New("dial tcp: refused")}
	m := NewMonitor(Options{Probe: p, ProbeInterval: 10 * time.Millisecond})
	reconnected := make(chan struct{}, 1)
	m.OnReconnect(func(context.Context) { reconnected <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	require.Eventually(t, func() bool { return !m.IsOnline() }, time.Second, 5*time.Millisecond)

	p.set(nil)
	select {
	case <-reconnected:
	case <-time.After(time.Second):
		t.Fatal("reconnect hook did not run")
	}
	assert.True(t, m.IsOnline())
}

func TestBreaker_DrivesMonitor(t *testing.T) {
	m := NewMonitor(Options{})
	cfg := DefaultBreakerConfig("remote-reads")
	cfg.Timeout = 20 * time.Millisecond
	cb := NewBreaker(cfg, m)

	down := apperr.BackendUnavailable("list products", errors.New("conn reset"))
	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, down })
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())
	assert.False(t, m.IsOnline())

	_, err := cb.Execute(func() (interface{}, error) { return nil, nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)

	time.Sleep(30 * time.Millisecond)
	_, err = cb.Execute(func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.True(t, m.IsOnline())
	m.Wait()
}

func TestBreaker_BusinessErrorsDoNotTrip(t *testing.T) {
	m := NewMonitor(Options{})
	cb := NewBreaker(DefaultBreakerConfig("remote-reads"), m)

	for i := 0; i < 10; i++ {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, apperr.NotFound("product", "p1") })
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.True(t, m.IsOnline())
}

func TestBreaker_CallerCancellationsDoNotTrip(t *testing.T) {
	m := NewMonitor(Options{})
	cb := NewBreaker(DefaultBreakerConfig("remote-reads"), m)

	cancelled := apperr.BackendUnavailable("list inventory", context.Canceled)
	expired := apperr.BackendUnavailable("list inventory", context.DeadlineExceeded)
	for i := 0; i < 5; i++ {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, cancelled })
		_, _ = cb.Execute(func() (interface{}, error) { return nil, expired })
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.True(t, m.IsOnline())
}
