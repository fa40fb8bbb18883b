// Package budget enforces per-tier monthly spend and run quotas. The gate
// is a pure read over usage records: it never reserves or deducts, so two
// concurrent checks may both pass and slightly overshoot the cap. The
// overshoot is bounded by the cost of a single operation.
package budget

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tapcard/contact-search/internal/model"
	"github.com/tapcard/contact-search/internal/tier"
)

// UsageStore is the subset of the store the gate needs.
type UsageStore interface {
	AppendUsage(ctx context.Context, rec model.UsageRecord) error
	MonthlyTotals(ctx context.Context, userID string, from, to time.Time) (model.UsageTotals, error)
}

// Gate answers "can this user afford estimated cost X right now".
type Gate struct {
	store UsageStore
	tiers *tier.Registry
	log   *zap.Logger
	now   func() time.Time
}

func NewGate(store UsageStore, tiers *tier.Registry, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{store: store, tiers: tiers, log: log, now: time.Now}
}

// CanAfford checks the user's remaining monthly budget against an estimated
// cost and one run of the given type. It fails closed: if usage totals cannot
// be read, the operation is denied rather than risk unmetered spend.
func (g *Gate) CanAfford(ctx context.Context, user model.User, estimatedCost float64, runType model.RunType) error {
	snap, err := g.Snapshot(ctx, user)
	if err != nil {
		g.log.Warn("budget check failed, denying", zap.String("user_id", user.ID), zap.Error(err))
		return &model.BudgetExceededError{Reason: "usage totals unavailable"}
	}

	if snap.SpentUSD+estimatedCost > snap.MaxCostUSD {
		return &model.BudgetExceededError{Reason: "monthly cost limit reached", Remaining: snap}
	}
	switch runType {
	case model.RunTypeAI:
		if snap.RunsAI+1 > snap.MaxRunsAI {
			return &model.BudgetExceededError{Reason: "monthly AI run limit reached", Remaining: snap}
		}
	case model.RunTypeAPI:
		if snap.RunsAPI+1 > snap.MaxRunsAPI {
			return &model.BudgetExceededError{Reason: "monthly API run limit reached", Remaining: snap}
		}
	}
	return nil
}

// Snapshot computes the user's remaining budget for the current month.
func (g *Gate) Snapshot(ctx context.Context, user model.User) (model.BudgetSnapshot, error) {
	from, to := model.MonthWindow(g.now())
	totals, err := g.store.MonthlyTotals(ctx, user.ID, from, to)
	if err != nil {
		return model.BudgetSnapshot{}, eris.Wrapf(err, "budget: monthly totals for %s", user.ID)
	}

	limits := g.tiers.Limits(tier.Name(user.Tier))
	return model.BudgetSnapshot{
		UserID:           user.ID,
		Tier:             user.Tier,
		MonthStart:       from,
		SpentUSD:         totals.CostUSD,
		RunsAI:           totals.RunsAI,
		RunsAPI:          totals.RunsAPI,
		MaxCostUSD:       limits.MaxCostUSD,
		MaxRunsAI:        limits.MaxRunsAI,
		MaxRunsAPI:       limits.MaxRunsAPI,
		RemainingUSD:     max(0, limits.MaxCostUSD-totals.CostUSD),
		RemainingRunsAI:  max(0, limits.MaxRunsAI-totals.RunsAI),
		RemainingRunsAPI: max(0, limits.MaxRunsAPI-totals.RunsAPI),
	}, nil
}

// RecordUsage appends one usage record after an external call completed.
// Zero-cost records are persisted too so run quotas stay accurate.
func (g *Gate) RecordUsage(ctx context.Context, rec model.UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = g.now().UTC()
	}
	if err := g.store.AppendUsage(ctx, rec); err != nil {
		return eris.Wrap(err, "budget: record usage")
	}
	g.log.Debug("usage recorded",
		zap.String("user_id", rec.UserID),
		zap.String("feature", rec.Feature),
		zap.Float64("cost", rec.Cost),
		zap.String("run_type", string(rec.RunType)),
	)
	return nil
}
