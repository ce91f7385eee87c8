package connectivity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ariefcatur/go-marketplace-stock/internal/logger"
	"github.com/ariefcatur/go-marketplace-stock/internal/metrics"
	"go.uber.org/zap"
)

// Pinger is anything that can tell whether the remote store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ReconnectHook func(ctx context.Context)

// Monitor is a two-state machine, Online and Offline. It starts Online.
type Monitor struct {
	online atomic.Bool

	mu      sync.Mutex
	hooks   []ReconnectHook
	hookCtx context.Context
	running sync.WaitGroup

	probe    Pinger
	interval time.Duration
	metrics  *metrics.Metrics
	log      *zap.Logger
}

type Options struct {
	Probe         Pinger
	ProbeInterval time.Duration
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
}

func NewMonitor(opts Options) *Monitor {
	m := &Monitor{
		hookCtx:  context.Background(),
		probe:    opts.Probe,
		interval: opts.ProbeInterval,
		metrics:  opts.Metrics,
		log:      logger.OrNop(opts.Logger),
	}
	if m.interval <= 0 {
		m.interval = 10 * time.Second
	}
	m.online.Store(true)
	m.metrics.SetOnline(true)
	return m
}

func (m *Monitor) IsOnline() bool { return m.online.Load() }

// OnReconnect registers fn to run on every Offline -> Online transition.
func (m *Monitor) OnReconnect(fn ReconnectHook) {
	m.mu.Lock()
	m.hooks = append(m.hooks, fn)
	m.mu.Unlock()
}

// SetOnline records a connectivity signal. Hooks run in their own goroutines
// so a caller holding a lock (the breaker) is never blocked by them.
func (m *Monitor) SetOnline(online bool) {
	if m.online.Swap(online) == online {
		return
	}
	m.metrics.SetOnline(online)
	if !online {
		m.log.Warn("remote store unreachable, switching to offline mode")
		return
	}
	m.log.Info("remote store reachable again, resynchronizing")

	m.mu.Lock()
	hooks := append([]ReconnectHook(nil), m.hooks...)
	ctx := m.hookCtx
	m.mu.Unlock()
	for _, h := range hooks {
		m.running.Add(1)
		go func(h ReconnectHook) {
			defer m.running.Done()
			h(ctx)
		}(h)
	}
}

// Wait blocks until every started reconnect hook has returned.
func (m *Monitor) Wait() { m.running.Wait() }

// Run probes the remote store until ctx ends. Hooks started afterwards get ctx.
func (m *Monitor) Run(ctx context.Context) {
	m.mu.Lock()
	m.hookCtx = ctx
	m.mu.Unlock()

	if m.probe == nil {
		<-ctx.Done()
		return
	}

	t := time.NewTicker(m.interval)
	defer t.Stop()
	m.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.check(ctx)
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, m.interval/2)
	defer cancel()
	err := m.probe.Ping(pctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil && m.IsOnline() {
		m.log.Warn("health probe failed", zap.Error(err))
	}
	m.SetOnline(err == nil)
}
