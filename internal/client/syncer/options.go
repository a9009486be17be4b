package syncer

import "time"

type Options struct {
	// MaxAttempts is the number of transient failures after which an
	// entry is dead-lettered.
	MaxAttempts int
	// BackoffBase and BackoffMax bound the delay between automatic drains
	// after a transient failure.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// StableConnectionDelay is how long the connection must stay up after
	// coming online before a drain starts.
	StableConnectionDelay time.Duration
	// SyncInterval is the period of the background drain.
	SyncInterval time.Duration
	// RemoteTimeout bounds every remote call.
	RemoteTimeout time.Duration
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts:           5,
		BackoffBase:           2 * time.Second,
		BackoffMax:            5 * time.Minute,
		StableConnectionDelay: 2 * time.Second,
		SyncInterval:          30 * time.Second,
		RemoteTimeout:         20 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = d.BackoffBase
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = d.BackoffMax
	}
	if o.StableConnectionDelay < 0 {
		o.StableConnectionDelay = 0
	}
	if o.SyncInterval <= 0 {
		o.SyncInterval = d.SyncInterval
	}
	if o.RemoteTimeout <= 0 {
		o.RemoteTimeout = d.RemoteTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
