package connectivity

import (
	"context"
	"time"

	"github.com/dmitrijs2005/bizsync/internal/logging"
)

// Pinger is satisfied by the remote clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Watcher is an Oracle that pings the server periodically. It starts
// offline until the first check.
type Watcher struct {
	state
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logger   logging.Logger
}

func NewWatcher(p Pinger, interval time.Duration, l logging.Logger) *Watcher {
	return &Watcher{
		pinger:   p,
		interval: interval,
		timeout:  3 * time.Second,
		logger:   l.With("module", "connectivity"),
	}
}

// CheckNow pings once and updates the state.
func (w *Watcher) CheckNow(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	err := w.pinger.Ping(ctx)
	cancel()

	online := err == nil
	if w.set(online) {
		if online {
			w.logger.Info(ctx, "switched to online mode")
		} else {
			w.logger.Info(ctx, "switched to offline mode", "error", err)
		}
	}
	return online
}

// Run checks immediately and then on every tick until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.CheckNow(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.CheckNow(ctx)
		case <-ctx.Done():
			return
		}
	}
}
