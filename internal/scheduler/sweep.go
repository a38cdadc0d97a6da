package scheduler

import (
	"context"
	"time"
)

// SweepJobName is the name the draft sweep is registered under.
const SweepJobName = "draft-sweep"

// Sweeper removes expired drafts.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// SweepJob returns a job that runs one sweep against the current time.
func SweepJob(s Sweeper) JobFunc {
	return func(ctx context.Context) error {
		_, err := s.Sweep(ctx, time.Now())
		return err
	}
}
