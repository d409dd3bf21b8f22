package routing

import (
	"context"
	"log/slog"
	"time"
)

// AttemptFunc tries one instance. A nil error ends the walk successfully.
// An error for which IsFailover reports true moves on to the next
// instance. Any other error ends the walk and is returned as is.
type AttemptFunc func(ctx context.Context, inst Instance) error

// Result describes a finished walk.
type Result struct {
	// Instance is the instance that ended the walk.
	Instance Instance

	// Index is Instance's position in the list.
	Index int

	// Attempts holds every instance tried, failed ones first.
	Attempts []Attempt
}

// Failed returns the attempts that failed over.
func (r *Result) Failed() []Attempt {
	if len(r.Attempts) == 0 {
		return nil
	}
	return r.Attempts[:len(r.Attempts)-1]
}

// Executor walks an ordered instance list, one instance at a time.
type Executor struct {
	stats  *FailoverStats
	logger *slog.Logger
}

// NewExecutor creates an Executor. stats may be nil.
func NewExecutor(stats *FailoverStats) *Executor {
	return &Executor{
		stats:  stats,
		logger: slog.Default().With("component", "routing.failover"),
	}
}

// Execute tries instances strictly in order, each at most once.
//
// It returns when an attempt succeeds, when an attempt fails with an error
// that does not ask for failover, or when the context is done. When every
// instance fails over, it returns *AllInstancesFailedError carrying the
// last cause.
func (e *Executor) Execute(ctx context.Context, alias string, instances []Instance, fn AttemptFunc) (*Result, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	res := &Result{Attempts: make([]Attempt, 0, len(instances))}
	var lastErr error

	for i, inst := range instances {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		start := time.Now()
		err := fn(ctx, inst)
		res.Attempts = append(res.Attempts, Attempt{Instance: inst, Err: err, Duration: time.Since(start)})
		res.Instance, res.Index = inst, i

		if err == nil {
			e.stats.recordSuccess(alias, i)
			return res, nil
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if !IsFailover(err) {
			e.stats.recordTerminal(alias)
			return res, err
		}

		lastErr = err
		e.stats.recordFailover(alias)
		if i < len(instances)-1 {
			e.logger.Warn("instance failed, trying next",
				"alias", alias,
				"instance", inst.String(),
				"next", instances[i+1].String(),
				"error", err,
			)
		}
	}

	e.stats.recordExhausted(alias)
	return res, &AllInstancesFailedError{Alias: alias, Attempts: res.Attempts, LastError: lastErr}
}
