// Package cost estimates the monthly cost of a set of capabilities and
// enforces the pipeline's cost guardrail.
package cost

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// LineItem is the estimated monthly cost of one capability.
type LineItem struct {
	// Capability is the capability ID.
	Capability string `json:"capability"`

	// MonthlyUSD is the estimated monthly cost in USD.
	MonthlyUSD float64 `json:"monthly_usd"`
}

// Estimate is the cost estimate for a whole intent.
type Estimate struct {
	// MonthlyUSD is the total estimated monthly cost in USD.
	MonthlyUSD float64 `json:"monthly_usd"`

	// Lines holds the per-capability breakdown, sorted by capability ID.
	Lines []LineItem `json:"lines"`
}

// Estimator produces cost estimates for capability sets.
type Estimator interface {
	Estimate(ctx context.Context, capabilityIDs []string) (*Estimate, error)
}

// DefaultRates returns baseline monthly rates in USD per capability.
// Rates are deliberately coarse; the guardrail needs an order of
// magnitude, not an invoice.
func DefaultRates() map[string]float64 {
	return map[string]float64{
		"vpc":        0,
		"iam":        0,
		"route53":    5,
		"s3":         10,
		"lambda":     15,
		"cloudwatch": 20,
		"elb":        25,
		"apigateway": 30,
		"dynamodb":   45,
		"ec2":        120,
		"ecs":        150,
		"rds":        280,
	}
}

// DefaultUnknownRate is charged for capabilities without a table entry.
const DefaultUnknownRate = 50.0

// TableEstimator estimates cost from a static rate table.
type TableEstimator struct {
	rates       map[string]float64
	unknownRate float64
	logger      zerolog.Logger
}

// NewTableEstimator creates an estimator over the given rate table.
// A nil table means DefaultRates.
func NewTableEstimator(rates map[string]float64, logger zerolog.Logger) *TableEstimator {
	if rates == nil {
		rates = DefaultRates()
	}
	return &TableEstimator{
		rates:       rates,
		unknownRate: DefaultUnknownRate,
		logger:      logger.With().Str("component", "cost-estimator").Logger(),
	}
}

// Estimate sums the per-capability rates for the given IDs.
func (e *TableEstimator) Estimate(ctx context.Context, capabilityIDs []string) (*Estimate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	est := &Estimate{}
	for _, id := range capabilityIDs {
		rate, ok := e.rates[id]
		if !ok {
			rate = e.unknownRate
			e.logger.Debug().Str("capability", id).Msg("no rate entry, using unknown rate")
		}
		est.Lines = append(est.Lines, LineItem{Capability: id, MonthlyUSD: rate})
		est.MonthlyUSD += rate
	}

	sort.Slice(est.Lines, func(i, j int) bool {
		return est.Lines[i].Capability < est.Lines[j].Capability
	})
	return est, nil
}

// Guardrail checks estimates against a monthly budget.
type Guardrail struct {
	// MonthlyBudgetUSD is the spending limit. Zero or negative disables
	// the guardrail.
	MonthlyBudgetUSD float64
}

// Check reports whether the estimate fits the budget. The reason is
// always populated for audit trails.
func (g Guardrail) Check(est *Estimate) (bool, string) {
	if g.MonthlyBudgetUSD <= 0 {
		return true, "cost guardrail disabled"
	}
	if est.MonthlyUSD > g.MonthlyBudgetUSD {
		return false, fmt.Sprintf("estimated monthly cost $%.2f exceeds budget $%.2f",
			est.MonthlyUSD, g.MonthlyBudgetUSD)
	}
	return true, fmt.Sprintf("estimated monthly cost $%.2f within budget $%.2f",
		est.MonthlyUSD, g.MonthlyBudgetUSD)
}
