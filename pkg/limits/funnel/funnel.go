// Package funnel throttles outbound calls to Google GenAI.
//
// Google applies undocumented per-IP limits on top of per-key quotas:
// roughly three concurrent requests and a dozen requests per four-minute
// rolling window. The Funnel admits a request only when both a window slot
// and a concurrency slot are free. It is shared by every google-genai
// provider in the process.
package funnel

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Default limits.
const (
	DefaultMaxConcurrent = 3
	DefaultMaxPerWindow  = 12
	DefaultWindow        = 4 * time.Minute

	// maxPoll caps a single wait so that limit changes and cancellation
	// are noticed promptly.
	maxPoll = 5 * time.Second
)

// Config configures a Funnel.
type Config struct {
	Enabled       bool
	MaxConcurrent int
	MaxPerWindow  int
	Window        time.Duration
}

// DefaultConfig returns the default limits, enabled.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		MaxConcurrent: DefaultMaxConcurrent,
		MaxPerWindow:  DefaultMaxPerWindow,
		Window:        DefaultWindow,
	}
}

// Stats is a point-in-time view of a Funnel.
type Stats struct {
	Enabled         bool          `json:"enabled"`
	Active          int64         `json:"active_requests"`
	Total           int64         `json:"total_requests"`
	Waits           int64         `json:"total_waits"`
	WindowUsed      int           `json:"window_used"`
	WindowLimit     int           `json:"window_limit"`
	WindowRemaining time.Duration `json:"window_remaining"`
}

// Funnel limits concurrency and rolling-window request rate.
type Funnel struct {
	config Config
	sem    chan struct{}
	window *RollingWindow

	active atomic.Int64
	total  atomic.Int64
	waits  atomic.Int64

	// OnWait, when set, is called each time a request has to wait for a
	// window slot.
	OnWait func()

	logger *slog.Logger
}

// New creates a Funnel. Non-positive limits fall back to the defaults.
func New(cfg Config) *Funnel {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.MaxPerWindow <= 0 {
		cfg.MaxPerWindow = DefaultMaxPerWindow
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}

	f := &Funnel{
		config: cfg,
		logger: slog.Default().With("component", "funnel"),
	}
	if cfg.Enabled {
		f.sem = make(chan struct{}, cfg.MaxConcurrent)
		f.window = NewRollingWindow(cfg.Window, cfg.MaxPerWindow)
		f.logger.Info("google genai request funnel initialized",
			"max_concurrent", cfg.MaxConcurrent,
			"max_per_window", cfg.MaxPerWindow,
			"window", cfg.Window,
		)
	}
	return f
}

// Config returns the funnel's effective configuration.
func (f *Funnel) Config() Config {
	return f.config
}

// Acquire blocks until the request may proceed. The returned release
// function must be called exactly once when the request completes.
//
// A window slot is taken before the concurrency slot and is not returned
// on cancellation, matching what the upstream counts.
func (f *Funnel) Acquire(ctx context.Context) (func(), error) {
	if !f.config.Enabled {
		return func() {}, nil
	}

	if err := f.waitForWindow(ctx); err != nil {
		return nil, err
	}

	select {
	case f.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	f.active.Add(1)
	f.total.Add(1)

	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			f.active.Add(-1)
			<-f.sem
		}
	}, nil
}

func (f *Funnel) waitForWindow(ctx context.Context) error {
	for {
		ok, wait := f.window.TryAdd()
		if ok {
			return nil
		}

		n := f.waits.Add(1)
		if f.OnWait != nil {
			f.OnWait()
		}
		if n%10 == 1 {
			f.logger.Info("waiting for rolling window slot",
				"wait", wait,
				"used", f.window.Count(),
				"limit", f.config.MaxPerWindow,
			)
		}

		if wait > maxPoll {
			wait = maxPoll
		}
		timer := time.NewTimer(wait + time.Millisecond)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Stats returns the current counters.
func (f *Funnel) Stats() Stats {
	if !f.config.Enabled {
		return Stats{Enabled: false}
	}
	return Stats{
		Enabled:         true,
		Active:          f.active.Load(),
		Total:           f.total.Load(),
		Waits:           f.waits.Load(),
		WindowUsed:      f.window.Count(),
		WindowLimit:     f.config.MaxPerWindow,
		WindowRemaining: f.window.Remaining(),
	}
}
