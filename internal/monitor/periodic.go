package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Periodic runs a function on a fixed interval in its own goroutine. The
// first cycle runs immediately on Start. A cycle is never interrupted: the
// function receives a context that Stop and the Start context's cancellation
// do not cancel, so a cycle in flight runs to completion and the loop exits
// afterwards. Ticks that arrive while a cycle runs are dropped. Errors and
// panics are logged and the next tick runs as usual.
//
// Periodic is safe for concurrent use.
type Periodic struct {
	name    string
	fn      func(ctx context.Context) error
	observe func(name string, took time.Duration, err error)

	mu       sync.Mutex
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	reset    chan time.Duration
}

// NewPeriodic creates a stopped Periodic. observe may be nil.
func NewPeriodic(name string, interval time.Duration, fn func(ctx context.Context) error,
	observe func(name string, took time.Duration, err error)) *Periodic {
	return &Periodic{name: name, interval: interval, fn: fn, observe: observe}
}

// Start launches the loop under ctx. It returns false if already running.
func (p *Periodic) Start(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.reset = make(chan time.Duration, 1)
	go p.run(ctx, p.interval, p.done, p.reset)
	slog.Info("monitor: loop started", "loop", p.name, "interval", p.interval)
	return true
}

// Stop ends the loop and waits for an in-flight cycle to finish.
// Stopping a stopped Periodic is a no-op.
func (p *Periodic) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done, p.reset = nil, nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	slog.Info("monitor: loop stopped", "loop", p.name)
}

// Running reports whether the loop is started.
func (p *Periodic) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Interval returns the configured period.
func (p *Periodic) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// SetInterval changes the period. A running loop picks it up after the
// current cycle.
func (p *Periodic) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.interval == d {
		return
	}
	p.interval = d
	if p.reset != nil {
		select {
		case <-p.reset:
		default:
		}
		p.reset <- d
	}
}

func (p *Periodic) run(ctx context.Context, interval time.Duration, done chan struct{}, reset <-chan time.Duration) {
	defer close(done)

	t := time.NewTicker(interval)
	defer t.Stop()

	// Cycles keep the values of ctx but not its cancellation.
	cycleCtx := context.WithoutCancel(ctx)

	p.once(ctx, cycleCtx)
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-reset:
			t.Reset(d)
			slog.Info("monitor: loop interval changed", "loop", p.name, "interval", d)
		case <-t.C:
			p.once(ctx, cycleCtx)
		}
	}
}

// once runs one cycle under cycleCtx unless loopCtx is already done.
func (p *Periodic) once(loopCtx, cycleCtx context.Context) {
	if loopCtx.Err() != nil {
		return
	}
	start := time.Now()
	err := p.call(cycleCtx)
	if err != nil {
		slog.Error("monitor: cycle failed", "loop", p.name, "err", err)
	}
	if p.observe != nil {
		p.observe(p.name, time.Since(start), err)
	}
}

func (p *Periodic) call(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			slog.Error("monitor: cycle panicked", "loop", p.name, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	return p.fn(ctx)
}
