package janitor

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper removes stale state and reports how many entries it dropped.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

type SweepFunc func(ctx context.Context) (int64, error)

func (f SweepFunc) Sweep(ctx context.Context) (int64, error) { return f(ctx) }

type Janitor struct {
	period   time.Duration
	log      *slog.Logger
	sweepers map[string]Sweeper
}

func New(period time.Duration, log *slog.Logger) *Janitor {
	return &Janitor{period: period, log: log, sweepers: make(map[string]Sweeper)}
}

func (j *Janitor) Add(name string, s Sweeper) {
	j.sweepers[name] = s
}

// Start runs the loop in a goroutine until ctx is cancelled. A non-positive
// period disables it. The returned channel closes when the loop exits.
func (j *Janitor) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if j.period <= 0 {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		t := time.NewTicker(j.period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				j.RunOnce(ctx)
			}
		}
	}()
	return done
}

func (j *Janitor) RunOnce(ctx context.Context) {
	for name, s := range j.sweepers {
		n, err := s.Sweep(ctx)
		if err != nil {
			j.log.Error("janitor_sweep_failed", "sweeper", name, "error", err)
			continue
		}
		if n > 0 {
			j.log.Info("janitor_sweep", "sweeper", name, "removed", n)
		}
	}
}
