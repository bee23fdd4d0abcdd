package jobs

import (
	"context"

	"github.com/wonny/stockleague/backend/internal/warm"
)

// WarmJob is the cron safety net behind the opportunistic warm
// triggers: with no lookup traffic at all the cache still gets warmed.
// The warmer's own interval gate and in-flight flag make overlapping
// invocations harmless.
type WarmJob struct {
	warmer   *warm.Warmer
	schedule string
}

// NewWarmJob creates a warm job on the given cron schedule
func NewWarmJob(warmer *warm.Warmer, schedule string) *WarmJob {
	return &WarmJob{warmer: warmer, schedule: schedule}
}

func (j *WarmJob) Name() string {
	return "cache-warm"
}

func (j *WarmJob) Schedule() string {
	return j.schedule
}

func (j *WarmJob) Run(ctx context.Context) error {
	return j.warmer.Run(ctx)
}
