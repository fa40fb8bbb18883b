package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tapcard/contact-search/internal/model"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Grouping job metrics within the lookback window.
	JobsTotal      int     `json:"jobs_total"`
	JobsCompleted  int     `json:"jobs_completed"`
	JobsFailed     int     `json:"jobs_failed"`
	JobsProcessing int     `json:"jobs_processing"`
	JobFailRate    float64 `json:"job_fail_rate"`

	// Jobs that completed with a degraded AI stage.
	DegradedAIJobs int `json:"degraded_ai_jobs"`

	// Provider spend within the lookback window, across all users.
	CostUSD float64 `json:"cost_usd"`
	RunsAI  int     `json:"runs_ai"`
	RunsAPI int     `json:"runs_api"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// MetricsStore is the store surface the collector reads from.
type MetricsStore interface {
	ListRecentJobs(ctx context.Context, since time.Time) ([]model.Job, error)
	UsageSince(ctx context.Context, since time.Time) (model.UsageTotals, error)
}

// Collector gathers job and spend metrics from the store.
type Collector struct {
	store MetricsStore
	now   func() time.Time
}

// NewCollector creates a metrics collector.
func NewCollector(st MetricsStore) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   c.now().UTC(),
	}
	cutoff := snap.CollectedAt.Add(-time.Duration(lookbackHours) * time.Hour)

	jobs, err := c.store.ListRecentJobs(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list recent jobs")
	}

	snap.JobsTotal = len(jobs)
	for _, j := range jobs {
		switch j.Status {
		case model.JobStatusCompleted:
			snap.JobsCompleted++
		case model.JobStatusFailed:
			snap.JobsFailed++
		case model.JobStatusProcessing:
			snap.JobsProcessing++
		}
		if len(j.StageErrors) > 0 {
			snap.DegradedAIJobs++
		}
	}
	if finished := snap.JobsCompleted + snap.JobsFailed; finished > 0 {
		snap.JobFailRate = float64(snap.JobsFailed) / float64(finished)
	}

	totals, err := c.store.UsageSince(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: usage totals")
	}
	snap.CostUSD = totals.CostUSD
	snap.RunsAI = totals.RunsAI
	snap.RunsAPI = totals.RunsAPI

	return snap, nil
}
