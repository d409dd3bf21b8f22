// Package quota tracks per-key, per-model request quotas for providers that
// hold a pool of API keys.
//
// Every (provider, key, model) pair has its own usage counter, reset
// instant and status. Keys are selected least-used first. A key that the
// upstream rejected for quota stays exhausted until strictly after its
// reset instant. A key the upstream reported as invalid is never selected
// again for that provider.
//
// # Reset Policies
//
// Reset instants come from a ResetPolicy:
//
//   - DailyReset: next calendar midnight in a fixed timezone (Pacific by default)
//   - RollingReset: a fixed duration after the triggering event
//
// # Sweeping
//
// Pairs are swept lazily on every access. A Sweeper additionally sweeps the
// whole ledger on a cron schedule so that reported statistics stay current
// for idle pairs.
//
// Raw keys are held in memory only. Everything the ledger reports uses
// key fingerprints.
package quota
