package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/mitchins/SmolRouter/pkg/dispatch"
	"github.com/mitchins/SmolRouter/pkg/quota"
)

// RoutingCheck fails when the current snapshot has nowhere to send a
// request: no enabled provider, no named server and no default upstream.
func RoutingCheck(snapshot func() *dispatch.Snapshot) CheckFunc {
	return func(ctx context.Context) error {
		snap := snapshot()
		if snap == nil {
			return errors.New("no routing snapshot loaded")
		}
		if snap.DefaultUpstream != "" || len(snap.Servers()) > 0 {
			return nil
		}
		if len(snap.Registry.Enabled()) == 0 {
			return errors.New("no upstream configured")
		}
		return nil
	}
}

// QuotaCheck fails when every tracked key of some provider has been
// rejected as invalid. Exhausted keys are expected and do not count.
func QuotaCheck(ledger *quota.Ledger) CheckFunc {
	return func(ctx context.Context) error {
		for _, provider := range ledger.Providers() {
			stats := ledger.Stats(provider)
			if len(stats) == 0 {
				continue
			}
			invalid := 0
			for _, st := range stats {
				if st.Status == quota.StatusInvalid {
					invalid++
				}
			}
			if invalid == len(stats) {
				return fmt.Errorf("all %d keys of provider %q are invalid", invalid, provider)
			}
		}
		return nil
	}
}

// Pinger is implemented by stores that can verify their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck wraps a Pinger, such as the SQLite request log.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}
