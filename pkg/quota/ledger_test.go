package quota

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func pacific(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	return loc
}

func newTestLedger(t *testing.T, keys []string, limit int) (*Ledger, *fakeClock) {
	t.Helper()
	loc := pacific(t)
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, loc)}
	l := NewLedger(WithClock(clock.Now))
	l.Configure("genai", ProviderQuota{
		Keys:       keys,
		DailyLimit: limit,
		Policy:     DailyReset{Location: loc},
	})
	return l, clock
}

// ============================================================================
// Selection
// ============================================================================

func TestLedger_SelectLeastUsed(t *testing.T) {
	l, _ := newTestLedger(t, []string{"k1", "k2", "k3"}, 0)

	// Ties go to configuration order.
	if got, _ := l.Select("genai", "flash"); got != "k1" {
		t.Fatalf("Expected k1 on empty ledger, got %s", got)
	}

	l.RecordSuccess("genai", "k1", "flash")
	l.RecordSuccess("genai", "k1", "flash")
	l.RecordSuccess("genai", "k2", "flash")

	if got, _ := l.Select("genai", "flash"); got != "k3" {
		t.Errorf("Expected least-used k3, got %s", got)
	}

	l.RecordSuccess("genai", "k3", "flash")
	if got, _ := l.Select("genai", "flash"); got != "k2" {
		t.Errorf("Expected k2 (tie with k3 goes to config order), got %s", got)
	}

	// Usage is tracked per model.
	if got, _ := l.Select("genai", "pro"); got != "k1" {
		t.Errorf("Expected k1 for a fresh model, got %s", got)
	}
}

func TestLedger_SkipsExhaustedAndInvalid(t *testing.T) {
	l, _ := newTestLedger(t, []string{"k1", "k2", "k3"}, 0)

	l.RecordQuotaRejection("genai", "k1", "flash", 0)
	l.RecordInvalid("genai", "k2")

	for i := 0; i < 5; i++ {
		got, err := l.Select("genai", "flash")
		if err != nil {
			t.Fatalf("Select failed: %v", err)
		}
		if got != "k3" {
			t.Fatalf("Expected k3, got %s", got)
		}
		l.RecordSuccess("genai", got, "flash")
	}

	// k1 is exhausted only for flash.
	if got, _ := l.Select("genai", "pro"); got != "k1" {
		t.Errorf("Expected k1 for another model, got %s", got)
	}

	// k2 is invalid for every model, including ones first seen later.
	for _, model := range []string{"flash", "pro", "new-model"} {
		for _, s := range l.Stats("genai") {
			if s.Key == Fingerprint("k2") && s.Model == model && s.Status != StatusInvalid {
				t.Errorf("Expected k2 invalid for %s, got %s", model, s.Status)
			}
		}
	}
	l.RecordQuotaRejection("genai", "k1", "new-model", 0)
	l.RecordQuotaRejection("genai", "k3", "new-model", 0)
	if _, err := l.Select("genai", "new-model"); !errors.Is(err, ErrQuotaExhausted) {
		t.Errorf("Expected k2 never selected for new-model, got %v", err)
	}
}

func TestLedger_AllExhausted(t *testing.T) {
	l, clock := newTestLedger(t, []string{"k1", "k2"}, 0)

	l.RecordQuotaRejection("genai", "k1", "flash", 0)
	l.RecordQuotaRejection("genai", "k2", "flash", 20*time.Second)

	_, err := l.Select("genai", "flash")
	var qe *QuotaExhaustedError
	if !errors.As(err, &qe) {
		t.Fatalf("Expected QuotaExhaustedError, got %v", err)
	}
	if qe.Provider != "genai" || qe.Model != "flash" {
		t.Errorf("Unexpected error fields: %+v", qe)
	}

	wantReset := time.Date(2026, 3, 11, 0, 0, 0, 0, pacific(t))
	if !qe.ResetAt.Equal(wantReset) {
		t.Errorf("Expected reset at %v, got %v", wantReset, qe.ResetAt)
	}
	if qe.ResetIn(clock.Now()) != 12*time.Hour {
		t.Errorf("Expected 12h until reset, got %v", qe.ResetIn(clock.Now()))
	}
}

func TestLedger_DailyLimit(t *testing.T) {
	l, clock := newTestLedger(t, []string{"k1"}, 2)

	for i := 0; i < 2; i++ {
		key, err := l.Select("genai", "flash")
		if err != nil {
			t.Fatalf("Select %d failed: %v", i, err)
		}
		l.RecordSuccess("genai", key, "flash")
	}

	if _, err := l.Select("genai", "flash"); !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("Expected limit to block selection, got %v", err)
	}

	// Reaching the limit is not a quota rejection.
	for _, s := range l.Stats("genai") {
		if s.Status != StatusAvailable {
			t.Errorf("Expected status available at limit, got %s", s.Status)
		}
	}

	clock.Set(time.Date(2026, 3, 11, 0, 0, 1, 0, pacific(t)))
	if key, err := l.Select("genai", "flash"); err != nil || key != "k1" {
		t.Errorf("Expected k1 after reset, got %q %v", key, err)
	}
}

func TestLedger_ErrorProneSkipped(t *testing.T) {
	l, _ := newTestLedger(t, []string{"k1", "k2"}, 0)

	for i := 0; i <= DefaultErrorThreshold; i++ {
		l.RecordFailure("genai", "k1", "flash", "upstream 500")
	}
	l.RecordSuccess("genai", "k2", "flash")
	l.RecordSuccess("genai", "k2", "flash")

	if got, _ := l.Select("genai", "flash"); got != "k2" {
		t.Errorf("Expected error-prone k1 skipped, got %s", got)
	}
}

func TestLedger_NoKeys(t *testing.T) {
	l := NewLedger()
	l.Configure("local", ProviderQuota{})

	key, err := l.Select("local", "m")
	if key != "" || err != nil {
		t.Errorf("Expected empty key and no error, got %q %v", key, err)
	}

	if _, err := l.Select("missing", "m"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("Expected ErrUnknownProvider, got %v", err)
	}
}

// ============================================================================
// Reset
// ============================================================================

func TestLedger_ExhaustedClearsOnlyAfterReset(t *testing.T) {
	loc := pacific(t)
	l, clock := newTestLedger(t, []string{"k1"}, 0)

	clock.Set(time.Date(2026, 3, 10, 23, 59, 0, 0, loc))
	l.RecordQuotaRejection("genai", "k1", "flash", 0)

	midnight := time.Date(2026, 3, 11, 0, 0, 0, 0, loc)
	tests := []struct {
		name       string
		at         time.Time
		wantUsable bool
	}{
		{"one second before", midnight.Add(-time.Second), false},
		{"exactly at reset", midnight, false},
		{"exactly at reset seen from UTC", midnight.UTC(), false},
		{"exactly at reset seen from Tokyo", midnight.In(time.FixedZone("JST", 9*3600)), false},
		{"just after reset", midnight.Add(time.Nanosecond), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.Set(tt.at)
			_, err := l.Select("genai", "flash")
			if (err == nil) != tt.wantUsable {
				t.Errorf("At %v: expected usable=%v, got err=%v", tt.at, tt.wantUsable, err)
			}
		})
	}
}

func TestLedger_InvalidSurvivesReset(t *testing.T) {
	l, clock := newTestLedger(t, []string{"k1"}, 0)
	l.RecordInvalid("genai", "k1")

	clock.Set(clock.Now().Add(72 * time.Hour))
	l.Sweep(clock.Now())

	if _, err := l.Select("genai", "flash"); !errors.Is(err, ErrQuotaExhausted) {
		t.Errorf("Expected invalid key to stay unusable, got %v", err)
	}
}

func TestLedger_Sweep(t *testing.T) {
	l, clock := newTestLedger(t, []string{"k1", "k2"}, 0)
	l.RecordQuotaRejection("genai", "k1", "flash", 0)
	l.RecordQuotaRejection("genai", "k2", "pro", 0)
	l.RecordSuccess("genai", "k2", "flash")

	if n := l.Sweep(clock.Now()); n != 0 {
		t.Errorf("Expected nothing restored before reset, got %d", n)
	}

	next := clock.Now().Add(24 * time.Hour)
	if n := l.Sweep(next); n != 2 {
		t.Errorf("Expected 2 pairs restored, got %d", n)
	}
	if l.Resets() != 2 {
		t.Errorf("Expected 2 total resets, got %d", l.Resets())
	}
	if got := l.ResetsByProvider()["genai"]; got != 2 {
		t.Errorf("Expected 2 resets for genai, got %d", got)
	}

	for _, s := range l.Stats("genai") {
		if s.Status != StatusAvailable || s.Used != 0 {
			t.Errorf("Expected %s/%s reset, got %+v", s.Key, s.Model, s)
		}
	}
}

func TestLedger_RollingPolicy(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	l := NewLedger(WithClock(clock.Now))
	l.Configure("openai", ProviderQuota{Keys: []string{"k"}, Policy: RollingReset{Window: time.Hour}})

	l.RecordQuotaRejection("openai", "k", "gpt-4o", 0)

	clock.Set(start.Add(time.Hour))
	if _, err := l.Select("openai", "gpt-4o"); err == nil {
		t.Error("Expected key still exhausted at window end")
	}
	clock.Set(start.Add(time.Hour + time.Second))
	if _, err := l.Select("openai", "gpt-4o"); err != nil {
		t.Errorf("Expected key usable after window, got %v", err)
	}
}

// ============================================================================
// Reconfiguration & concurrency
// ============================================================================

func TestLedger_ConfigureKeepsState(t *testing.T) {
	l, _ := newTestLedger(t, []string{"k1", "k2"}, 0)
	l.RecordInvalid("genai", "k1")
	l.RecordSuccess("genai", "k2", "flash")

	l.Configure("genai", ProviderQuota{Keys: []string{"k1", "k2", "k3"}, Policy: DailyReset{Location: pacific(t)}})

	stats := l.Stats("genai")
	var sawK2 bool
	for _, s := range stats {
		if s.Key == Fingerprint("k2") && s.Used == 1 {
			sawK2 = true
		}
	}
	if !sawK2 {
		t.Errorf("Expected k2 usage kept across Configure, got %+v", stats)
	}

	if got, _ := l.Select("genai", "flash"); got != "k3" {
		t.Errorf("Expected k3 (k1 invalid, k2 used), got %s", got)
	}

	l.Configure("genai", ProviderQuota{Keys: []string{"k3"}})
	for _, s := range l.Stats("genai") {
		if s.Key != Fingerprint("k3") {
			t.Errorf("Expected removed keys dropped, found %s", s.Key)
		}
	}
}

func TestLedger_ConcurrentSuccess(t *testing.T) {
	l, _ := newTestLedger(t, []string{"k1", "k2", "k3"}, 0)

	var wg sync.WaitGroup
	for i := 0; i < 300; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key, err := l.Select("genai", "flash")
			if err != nil {
				t.Errorf("Select failed: %v", err)
				return
			}
			l.RecordSuccess("genai", key, "flash")
		}()
	}
	wg.Wait()

	total := 0
	for _, s := range l.Stats("genai") {
		total += s.Used
	}
	if total != 300 {
		t.Errorf("Expected 300 recorded requests, got %d", total)
	}
}

func TestLedger_StatsNeverExposeKeys(t *testing.T) {
	secret := "AIzaSyD-very-secret-key"
	l, _ := newTestLedger(t, []string{secret}, 0)
	l.RecordSuccess("genai", secret, "flash")

	for _, s := range l.Stats("genai") {
		if s.Key == secret {
			t.Fatal("Stats exposed the raw key")
		}
		if s.Key != Fingerprint(secret) {
			t.Errorf("Expected fingerprint %s, got %s", Fingerprint(secret), s.Key)
		}
	}
}
