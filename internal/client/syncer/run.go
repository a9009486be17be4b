package syncer

import (
	"context"
	"errors"
	"time"
)

var ErrAlreadyRunning = errors.New("sync engine already running")

// Kick asks the run loop for a drain. It never blocks; kicks arriving
// while a drain is running are coalesced into one.
func (e *Engine) Kick() {
	select {
	case e.kickCh <- struct{}{}:
	default:
	}
}

// Start runs the engine in a new goroutine until ctx is done.
func (e *Engine) Start(ctx context.Context) {
	go func() {
		if err := e.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error(ctx, "sync engine stopped", "error", err)
		}
	}()
}

// Run drains on startup and then on every trigger until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	e.runMu.Lock()
	if e.running {
		e.runMu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	e.runMu.Unlock()
	defer func() {
		e.runMu.Lock()
		e.running = false
		e.runMu.Unlock()
	}()

	if err := e.LoadStatus(ctx); err != nil {
		e.logger.Warn(ctx, "could not load sync status", "error", err)
	}

	onlineCh := make(chan struct{}, 1)
	cancelWatch := e.oracle.OnChange(func(online bool) {
		e.hub.update(func(s *Status) { s.Online = online })
		if online {
			select {
			case onlineCh <- struct{}{}:
			default:
			}
		}
	})
	defer cancelWatch()

	ticker := time.NewTicker(e.opts.SyncInterval)
	defer ticker.Stop()

	stable := newIdleTimer()
	defer stable.stop()
	retry := newIdleTimer()
	defer retry.stop()

	e.logger.Info(ctx, "sync engine started", "online", e.oracle.IsOnline())
	e.Kick()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info(ctx, "sync engine stopped")
			return ctx.Err()

		case <-onlineCh:
			stable.reset(e.opts.StableConnectionDelay)

		case <-stable.c():
			stable.fired()
			if e.oracle.IsOnline() {
				e.backoff.reset()
				e.runDrain(ctx, retry)
			}

		case <-e.kickCh:
			if e.oracle.IsOnline() && e.backoff.ready(e.now()) {
				e.runDrain(ctx, retry)
			}

		case <-retry.c():
			retry.fired()
			e.Kick()

		case <-ticker.C:
			if e.oracle.IsOnline() && e.backoff.ready(e.now()) && e.Status().Pending > 0 {
				e.runDrain(ctx, retry)
			}
		}
	}
}

func (e *Engine) runDrain(ctx context.Context, retry *idleTimer) {
	rep := e.drain(ctx, nil)
	if len(rep.Blocked) > 0 {
		e.backoff.mu.Lock()
		wait := e.backoff.until.Sub(e.now())
		e.backoff.mu.Unlock()
		retry.reset(wait)
	}
}

// idleTimer is a stopped-by-default timer whose channel is nil while idle.
type idleTimer struct {
	t      *time.Timer
	active bool
}

func newIdleTimer() *idleTimer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return &idleTimer{t: t}
}

func (it *idleTimer) c() <-chan time.Time {
	if !it.active {
		return nil
	}
	return it.t.C
}

func (it *idleTimer) reset(d time.Duration) {
	if d < 0 {
		d = 0
	}
	it.t.Reset(d)
	it.active = true
}

func (it *idleTimer) fired() { it.active = false }

func (it *idleTimer) stop() {
	it.t.Stop()
	it.active = false
}
