package dispatch

import (
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/mitchins/SmolRouter/pkg/config"
	"github.com/mitchins/SmolRouter/pkg/limits/funnel"
	"github.com/mitchins/SmolRouter/pkg/logsink"
	"github.com/mitchins/SmolRouter/pkg/providers"
	"github.com/mitchins/SmolRouter/pkg/quota"
	"github.com/mitchins/SmolRouter/pkg/routing"
)

// Attempt outcomes reported to an Observer.
const (
	OutcomeSuccess     = "success"
	OutcomeQuota       = "quota"
	OutcomeInvalidKey  = "invalid_key"
	OutcomeServerError = "server_error"
	OutcomeClientError = "client_error"
	OutcomeUnreachable = "unreachable"
	OutcomeTimeout     = "timeout"
	OutcomeDisabled    = "disabled"
	OutcomeBadResponse = "bad_response"
)

// Observer receives per-attempt events. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveAttempt(provider, outcome string)
	ObserveFunnelWait()
}

// Options supplies an Engine's collaborators. Nil fields get no-op or
// default implementations.
type Options struct {
	Ledger   *quota.Ledger
	Client   *providers.Client
	Stats    *routing.FailoverStats
	Sink     logsink.Sink
	Blobs    logsink.BlobStore
	Observer Observer
}

// Engine dispatches requests against the current Snapshot.
type Engine struct {
	snap atomic.Pointer[Snapshot]

	ledger   *quota.Ledger
	client   *providers.Client
	stats    *routing.FailoverStats
	executor *routing.Executor
	sink     logsink.Sink
	blobs    logsink.BlobStore
	observer Observer
	logger   *slog.Logger

	funnel    atomic.Pointer[funnel.Funnel]
	funnelCfg funnel.Config

	reloadMu sync.Mutex
}

// New builds the first snapshot from cfg and returns a ready Engine.
func New(cfg *config.Config, opts Options) (*Engine, error) {
	if opts.Ledger == nil {
		opts.Ledger = quota.NewLedger()
	}
	if opts.Client == nil {
		opts.Client = providers.NewClient(providers.DefaultClientConfig())
	}
	if opts.Stats == nil {
		opts.Stats = routing.NewFailoverStats()
	}
	if opts.Sink == nil {
		opts.Sink = logsink.NopSink{}
	}
	if opts.Blobs == nil {
		opts.Blobs = logsink.NopBlobStore{}
	}

	e := &Engine{
		ledger:   opts.Ledger,
		client:   opts.Client,
		stats:    opts.Stats,
		executor: routing.NewExecutor(opts.Stats),
		sink:     opts.Sink,
		blobs:    opts.Blobs,
		observer: opts.Observer,
		logger:   slog.Default().With("component", "dispatch.engine"),
	}
	if err := e.Reload(cfg); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload builds a snapshot from cfg and swaps it in. On error the current
// snapshot stays.
//
// Runtime enabled flags carry over for providers whose configuration did
// not change. Quota state carries over for keys that are still
// configured.
func (e *Engine) Reload(cfg *config.Config) error {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	next, err := BuildSnapshot(cfg)
	if err != nil {
		return err
	}
	prev := e.snap.Load()

	if prev != nil {
		for _, p := range next.Registry.All() {
			old, ok := prev.Registry.Get(p.Name)
			if ok && reflect.DeepEqual(prev.configs[p.Name], next.configs[p.Name]) {
				p.SetEnabled(old.Enabled())
			}
		}
	}

	for name, q := range next.Quotas {
		e.ledger.Configure(name, q)
	}
	for _, name := range e.ledger.Providers() {
		if _, ok := next.Quotas[name]; !ok {
			e.ledger.Remove(name)
		}
	}

	if e.funnel.Load() == nil || e.funnelCfg != next.Funnel {
		f := funnel.New(next.Funnel)
		if e.observer != nil {
			f.OnWait = e.observer.ObserveFunnelWait
		}
		e.funnel.Store(f)
		e.funnelCfg = next.Funnel
	}

	e.snap.Store(next)
	e.logger.Info("routing configuration applied",
		"providers", next.Registry.Len(),
		"routes", next.Routes.Len(),
		"aliases", len(next.Aliases.Names()),
		"model_mappings", next.Rewriter.Len(),
		"default_upstream", next.DefaultUpstream,
	)
	return nil
}

// Snapshot returns the current snapshot.
func (e *Engine) Snapshot() *Snapshot {
	return e.snap.Load()
}

// Ledger returns the quota ledger.
func (e *Engine) Ledger() *quota.Ledger {
	return e.ledger
}

// Funnel returns the current google-genai funnel.
func (e *Engine) Funnel() *funnel.Funnel {
	return e.funnel.Load()
}

// FailoverStats returns the executor's counters.
func (e *Engine) FailoverStats() *routing.FailoverStats {
	return e.stats
}

// SetProviderEnabled switches a configured provider on or off until the
// next reload that changes it.
func (e *Engine) SetProviderEnabled(name string, enabled bool) bool {
	p, ok := e.Snapshot().Registry.Get(name)
	if !ok {
		return false
	}
	p.SetEnabled(enabled)
	return true
}

func (e *Engine) observe(provider, outcome string) {
	if e.observer != nil {
		e.observer.ObserveAttempt(provider, outcome)
	}
}
