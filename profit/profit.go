// Package profit turns a sale price and seller costs into profit figures.
package profit

import (
	"math"

	"github.com/aluiziolira/resale-scout/models"
)

// Result holds the computed figures for a priced listing.
type Result struct {
	FeesDollar float64
	NetProfit  float64
	MarginPct  float64
	// Score is the margin rounded and clamped to [0, 100]. MarginPct stays
	// unclamped.
	Score int
}

// Compute evaluates price against costs. ok is false when price is not a
// finite number greater than zero, in which case nothing is computed.
func Compute(price float64, costs models.CostInputs) (Result, bool) {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return Result{}, false
	}

	fees := (costs.FeesPct / 100) * price
	net := price - (costs.Cost + fees + costs.Shipping + costs.Other)
	margin := (net / price) * 100

	return Result{
		FeesDollar: fees,
		NetProfit:  net,
		MarginPct:  margin,
		Score:      Score(margin),
	}, true
}

// Score rounds a margin percentage and clamps it into [0, 100].
func Score(marginPct float64) int {
	if math.IsNaN(marginPct) {
		return 0
	}
	rounded := math.Round(marginPct)
	switch {
	case rounded < 0:
		return 0
	case rounded > 100:
		return 100
	}
	return int(rounded)
}
