package calculator

import (
	"fmt"

	"github.com/mmynk/tripsplit/internal/models"
)

// BalanceSummary is a snapshot of everything derived from a trip's expenses.
type BalanceSummary struct {
	Balances            []Balance          `json:"balances"`
	Settlements         []Settlement       `json:"settlements"`
	CombinationBalances []CombinationGroup `json:"combinationBalances"`
}

// Summarize validates the trip's expenses and computes overall balances,
// settlements, and per-combination breakdowns.
func Summarize(trip models.Trip) (BalanceSummary, error) {
	for _, expense := range trip.Expenses {
		if err := expense.Validate(); err != nil {
			return BalanceSummary{}, fmt.Errorf("invalid expense %s: %w", expense.ID, err)
		}
	}

	balances := ComputeBalances(trip.Participants, trip.Expenses)

	return BalanceSummary{
		Balances:            balances,
		Settlements:         ComputeSettlements(balances),
		CombinationBalances: ComputeCombinationBalances(trip),
	}, nil
}
