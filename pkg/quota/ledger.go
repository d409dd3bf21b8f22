package quota

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Status is the state of one (provider, key, model) pair.
type Status string

const (
	// StatusAvailable pairs may be selected.
	StatusAvailable Status = "available"

	// StatusExhausted pairs were rejected for quota and wait for their reset.
	StatusExhausted Status = "exhausted"

	// StatusInvalid pairs belong to a key the upstream refused. Terminal.
	StatusInvalid Status = "invalid"
)

// DefaultErrorThreshold is the number of consecutive failures after which
// a pair is skipped until its next reset.
const DefaultErrorThreshold = 20

// ProviderQuota configures one provider's key pool.
type ProviderQuota struct {
	// Keys in configuration order. Ties in usage go to the earlier key.
	Keys []string

	// DailyLimit is the per-pair request limit. Zero means unlimited.
	DailyLimit int

	// Policy computes reset instants. Nil selects DailyReset in the
	// default timezone.
	Policy ResetPolicy

	// ErrorThreshold overrides DefaultErrorThreshold when positive.
	ErrorThreshold int
}

// PairStats is a redacted view of one pair.
type PairStats struct {
	Provider          string    `json:"provider"`
	Key               string    `json:"key"`
	Model             string    `json:"model"`
	Used              int       `json:"used"`
	Limit             int       `json:"limit"`
	Status            Status    `json:"status"`
	ResetAt           time.Time `json:"reset_at"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	LastError         string    `json:"last_error,omitempty"`
}

type pairKey struct {
	fingerprint string
	model       string
}

type pairState struct {
	mu                sync.Mutex
	used              int
	resetAt           time.Time
	status            Status
	consecutiveErrors int
	lastError         string
	exhaustedAt       time.Time
}

// sweepLocked rolls the pair over when its reset instant has passed.
// It reports whether the pair went from exhausted back to available.
func (p *pairState) sweepLocked(now time.Time, policy ResetPolicy) bool {
	if !now.After(p.resetAt) {
		return false
	}
	p.used = 0
	p.consecutiveErrors = 0
	p.resetAt = policy.NextReset(now)
	if p.status == StatusExhausted {
		p.status = StatusAvailable
		p.exhaustedAt = time.Time{}
		return true
	}
	return false
}

type keyEntry struct {
	key         string
	fingerprint string
	invalid     atomic.Bool
}

type providerState struct {
	name           string
	keys           []*keyEntry
	byKey          map[string]*keyEntry
	limit          int
	policy         ResetPolicy
	errorThreshold int

	mu    sync.RWMutex
	pairs map[pairKey]*pairState
}

// pair returns the state for (k, model), creating it on first use.
func (ps *providerState) pair(k *keyEntry, model string, now time.Time) *pairState {
	pk := pairKey{fingerprint: k.fingerprint, model: model}

	ps.mu.RLock()
	p, ok := ps.pairs[pk]
	ps.mu.RUnlock()
	if ok {
		return p
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	if p, ok = ps.pairs[pk]; ok {
		return p
	}
	p = &pairState{status: StatusAvailable, resetAt: ps.policy.NextReset(now)}
	if k.invalid.Load() {
		p.status = StatusInvalid
	}
	ps.pairs[pk] = p
	return p
}

// Ledger tracks quota state for every configured provider.
// It is safe for concurrent use.
type Ledger struct {
	mu        sync.RWMutex
	providers map[string]*providerState

	now    func() time.Time
	resets atomic.Int64
	logger *slog.Logger

	resetsMu sync.Mutex
	resetsBy map[string]int64
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates an empty ledger.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		providers: make(map[string]*providerState),
		resetsBy:  make(map[string]int64),
		now:       time.Now,
		logger:    slog.Default().With("component", "quota.ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Configure installs or updates a provider's key pool. State for keys that
// are still configured survives, including invalid marks. State for
// removed keys is dropped.
func (l *Ledger) Configure(provider string, q ProviderQuota) {
	policy := q.Policy
	if policy == nil {
		policy = DailyReset{Location: defaultLocation()}
	}
	threshold := q.ErrorThreshold
	if threshold <= 0 {
		threshold = DefaultErrorThreshold
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.providers[provider]
	ps := &providerState{
		name:           provider,
		byKey:          make(map[string]*keyEntry, len(q.Keys)),
		limit:          q.DailyLimit,
		policy:         policy,
		errorThreshold: threshold,
		pairs:          make(map[pairKey]*pairState),
	}

	for _, key := range q.Keys {
		if _, dup := ps.byKey[key]; dup {
			continue
		}
		entry := &keyEntry{key: key, fingerprint: Fingerprint(key)}
		if old != nil {
			if prev, ok := old.byKey[key]; ok && prev.invalid.Load() {
				entry.invalid.Store(true)
			}
		}
		ps.keys = append(ps.keys, entry)
		ps.byKey[key] = entry
	}

	if old != nil {
		old.mu.RLock()
		for pk, p := range old.pairs {
			if _, kept := findByFingerprint(ps, pk.fingerprint); kept {
				ps.pairs[pk] = p
			}
		}
		old.mu.RUnlock()
	}

	l.providers[provider] = ps
}

// Remove drops all state for provider.
func (l *Ledger) Remove(provider string) {
	l.mu.Lock()
	delete(l.providers, provider)
	l.mu.Unlock()
}

// Providers returns the configured provider names, sorted.
func (l *Ledger) Providers() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.providers))
	for name := range l.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasKeys reports whether provider has a key pool.
func (l *Ledger) HasKeys(provider string) bool {
	ps := l.provider(provider)
	return ps != nil && len(ps.keys) > 0
}

// Select returns the least-used usable key for (provider, model).
//
// Exhausted and invalid pairs are skipped, as are pairs at their daily
// limit or with too many consecutive errors. Ties go to the key that comes
// first in configuration. A provider without keys yields "" and no error.
func (l *Ledger) Select(provider, model string) (string, error) {
	ps := l.provider(provider)
	if ps == nil {
		return "", ErrUnknownProvider
	}
	if len(ps.keys) == 0 {
		return "", nil
	}

	now := l.now()
	best, bestUsed := -1, 0
	var soonest time.Time

	for i, k := range ps.keys {
		if k.invalid.Load() {
			continue
		}
		p := ps.pair(k, model, now)

		p.mu.Lock()
		p.sweepLocked(now, ps.policy)
		status, used, errs, resetAt := p.status, p.used, p.consecutiveErrors, p.resetAt
		p.mu.Unlock()

		usable := status == StatusAvailable &&
			(ps.limit <= 0 || used < ps.limit) &&
			errs <= ps.errorThreshold
		if !usable {
			if status != StatusInvalid && (soonest.IsZero() || resetAt.Before(soonest)) {
				soonest = resetAt
			}
			continue
		}
		if best < 0 || used < bestUsed {
			best, bestUsed = i, used
		}
	}

	if best < 0 {
		return "", &QuotaExhaustedError{Provider: provider, Model: model, ResetAt: soonest}
	}
	return ps.keys[best].key, nil
}

// RecordSuccess counts one served request against the pair and clears its
// consecutive error count.
func (l *Ledger) RecordSuccess(provider, key, model string) {
	l.withPair(provider, key, model, func(p *pairState, _ *providerState, _ time.Time) {
		p.used++
		p.consecutiveErrors = 0
		p.lastError = ""
	})
}

// RecordQuotaRejection marks the pair exhausted until the policy's next
// reset after now. It is the only transition into StatusExhausted.
func (l *Ledger) RecordQuotaRejection(provider, key, model string, retryAfter time.Duration) {
	l.withPair(provider, key, model, func(p *pairState, ps *providerState, now time.Time) {
		if p.status == StatusInvalid {
			return
		}
		p.status = StatusExhausted
		p.exhaustedAt = now
		p.resetAt = ps.policy.NextReset(now)

		l.logger.Warn("key exhausted",
			"provider", provider,
			"key", Fingerprint(key),
			"model", model,
			"reset_at", p.resetAt,
			"retry_after", retryAfter,
		)
	})
}

// RecordFailure counts a failure that is neither quota nor credential
// related, such as an upstream 5xx.
func (l *Ledger) RecordFailure(provider, key, model, reason string) {
	l.withPair(provider, key, model, func(p *pairState, _ *providerState, _ time.Time) {
		p.consecutiveErrors++
		p.lastError = reason
	})
}

// RecordInvalid marks key invalid for every model of provider, including
// models not seen yet. There is no way back.
func (l *Ledger) RecordInvalid(provider, key string) {
	ps := l.provider(provider)
	if ps == nil {
		return
	}
	k, ok := ps.byKey[key]
	if !ok || k.invalid.Swap(true) {
		return
	}

	ps.mu.RLock()
	for pk, p := range ps.pairs {
		if pk.fingerprint != k.fingerprint {
			continue
		}
		p.mu.Lock()
		p.status = StatusInvalid
		p.mu.Unlock()
	}
	ps.mu.RUnlock()

	l.logger.Error("key marked invalid",
		"provider", provider,
		"key", k.fingerprint,
	)
}

// Sweep applies the reset rule to every pair and returns the number of
// pairs that went from exhausted back to available.
func (l *Ledger) Sweep(now time.Time) int {
	l.mu.RLock()
	providers := make([]*providerState, 0, len(l.providers))
	for _, ps := range l.providers {
		providers = append(providers, ps)
	}
	l.mu.RUnlock()

	restored := 0
	for _, ps := range providers {
		n := 0
		ps.mu.RLock()
		for _, p := range ps.pairs {
			p.mu.Lock()
			if p.sweepLocked(now, ps.policy) {
				n++
			}
			p.mu.Unlock()
		}
		ps.mu.RUnlock()

		if n > 0 {
			l.resetsMu.Lock()
			l.resetsBy[ps.name] += int64(n)
			l.resetsMu.Unlock()
		}
		restored += n
	}

	l.resets.Add(int64(restored))
	return restored
}

// Resets returns the total number of pairs restored by Sweep.
func (l *Ledger) Resets() int64 {
	return l.resets.Load()
}

// ResetsByProvider returns the number of pairs restored by Sweep per
// provider. Counts survive Configure and Remove.
func (l *Ledger) ResetsByProvider() map[string]int64 {
	l.resetsMu.Lock()
	defer l.resetsMu.Unlock()
	out := make(map[string]int64, len(l.resetsBy))
	for k, v := range l.resetsBy {
		out[k] = v
	}
	return out
}

// Stats returns a redacted view of every pair of provider, in key order
// then model order.
func (l *Ledger) Stats(provider string) []PairStats {
	ps := l.provider(provider)
	if ps == nil {
		return nil
	}

	order := make(map[string]int, len(ps.keys))
	for i, k := range ps.keys {
		order[k.fingerprint] = i
	}

	ps.mu.RLock()
	out := make([]PairStats, 0, len(ps.pairs))
	for pk, p := range ps.pairs {
		p.mu.Lock()
		out = append(out, PairStats{
			Provider:          provider,
			Key:               pk.fingerprint,
			Model:             pk.model,
			Used:              p.used,
			Limit:             ps.limit,
			Status:            p.status,
			ResetAt:           p.resetAt,
			ConsecutiveErrors: p.consecutiveErrors,
			LastError:         p.lastError,
		})
		p.mu.Unlock()
	}
	ps.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		oi, oj := order[out[i].Key], order[out[j].Key]
		if oi != oj {
			return oi < oj
		}
		return out[i].Model < out[j].Model
	})
	return out
}

func (l *Ledger) provider(name string) *providerState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.providers[name]
}

func (l *Ledger) withPair(provider, key, model string, fn func(p *pairState, ps *providerState, now time.Time)) {
	ps := l.provider(provider)
	if ps == nil {
		return
	}
	k, ok := ps.byKey[key]
	if !ok {
		return
	}

	now := l.now()
	p := ps.pair(k, model, now)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked(now, ps.policy)
	fn(p, ps, now)
}

func findByFingerprint(ps *providerState, fp string) (*keyEntry, bool) {
	for _, k := range ps.keys {
		if k.fingerprint == fp {
			return k, true
		}
	}
	return nil, false
}

var (
	defaultLocOnce sync.Once
	defaultLoc     *time.Location
)

func defaultLocation() *time.Location {
	defaultLocOnce.Do(func() {
		loc, err := time.LoadLocation(DefaultResetTimezone)
		if err != nil {
			loc = time.UTC
		}
		defaultLoc = loc
	})
	return defaultLoc
}
