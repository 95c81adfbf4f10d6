package custody

import (
	"context"
	"strconv"
	"time"
)

// =============================================================================
// OPERATING PARAMETERS - Tunable thresholds stored as key/value rows
// =============================================================================

const (
	// ParamTransitAlertMinutes is how long a transfer may stay in transit
	// before it is flagged.
	ParamTransitAlertMinutes = "transit_alert_minutes"

	// ParamDiscrepancyAlertAmount is the absolute difference above which a
	// reconciliation or receipt is flagged for review.
	ParamDiscrepancyAlertAmount = "discrepancy_alert_amount"
)

const DefaultTransitAlertMinutes = 30

// DefaultDiscrepancyAlertAmount is 2.00 in drawer currency.
func DefaultDiscrepancyAlertAmount() Amount { return AmountFromCents(200) }

// Parameters reads tunable thresholds with typed accessors. Missing or
// malformed values fall back to the supplied default rather than failing
// the caller's operation.
type Parameters struct {
	Store Store
}

func (p *Parameters) Minutes(ctx context.Context, key string, fallback int) (int, error) {
	param, err := p.Store.GetParameter(ctx, key)
	if err != nil {
		return 0, storeErr(err)
	}
	if param == nil {
		return fallback, nil
	}
	n, err := strconv.Atoi(param.Value)
	if err != nil || n < 0 {
		return fallback, nil
	}
	return n, nil
}

func (p *Parameters) Amount(ctx context.Context, key string, fallback Amount) (Amount, error) {
	param, err := p.Store.GetParameter(ctx, key)
	if err != nil {
		return Amount{}, storeErr(err)
	}
	if param == nil {
		return fallback, nil
	}
	a, err := ParseAmount(param.Value)
	if err != nil || a.IsNegative() {
		return fallback, nil
	}
	return a, nil
}

// DiscrepancyAlert reports whether an absolute difference exceeds the
// configured review threshold.
func (p *Parameters) DiscrepancyAlert(ctx context.Context, difference Amount) (bool, error) {
	threshold, err := p.Amount(ctx, ParamDiscrepancyAlertAmount, DefaultDiscrepancyAlertAmount())
	if err != nil {
		return false, err
	}
	return difference.Abs().GreaterThan(threshold), nil
}

// SeedDefaults inserts the default parameter rows when absent. Existing
// values are left untouched so operator overrides survive restarts.
func SeedDefaults(ctx context.Context, store Store, now time.Time) error {
	defaults := []Parameter{
		{
			Key:         ParamTransitAlertMinutes,
			Value:       strconv.Itoa(DefaultTransitAlertMinutes),
			Description: "Minutes in transit before a transfer is flagged",
			UpdatedAt:   now,
		},
		{
			Key:         ParamDiscrepancyAlertAmount,
			Value:       DefaultDiscrepancyAlertAmount().String(),
			Description: "Absolute difference that flags a count for review",
			UpdatedAt:   now,
		},
	}
	for _, d := range defaults {
		existing, err := store.GetParameter(ctx, d.Key)
		if err != nil {
			return storeErr(err)
		}
		if existing != nil {
			continue
		}
		if err := store.UpsertParameter(ctx, d); err != nil {
			return storeErr(err)
		}
	}
	return nil
}
