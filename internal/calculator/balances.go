// Package calculator derives balances and settlement suggestions from a
// trip's expenses. All functions are pure and never mutate their inputs.
package calculator

import "github.com/mmynk/tripsplit/internal/models"

// Balance represents the balance information for one trip participant.
type Balance struct {
	ParticipantID   string  `json:"participantId"`
	ParticipantName string  `json:"participantName"`
	TotalPaid       float64 `json:"totalPaid"`  // Total amount paid across all expenses
	TotalOwed       float64 `json:"totalOwed"`  // Sum of this participant's split shares
	NetBalance      float64 `json:"netBalance"` // Positive = owed money, Negative = owes money
}

// ComputeBalances folds expenses into one Balance per participant, in the
// order participants are given.
//
// Algorithm:
// - Payer contributed +amount
// - Each listed participant owes amount / len(participants)
// - net_balance = total_paid - total_owed
//
// IDs that are not in participants are skipped, so expenses that still
// reference a removed participant do not fail the calculation. Expenses with
// no participants are skipped as a whole; Summarize reports them as invalid.
func ComputeBalances(participants []models.Participant, expenses []models.Expense) []Balance {
	balances := make([]Balance, len(participants))
	index := make(map[string]int, len(participants))
	for i, p := range participants {
		balances[i] = Balance{ParticipantID: p.ID, ParticipantName: p.Name}
		index[p.ID] = i
	}

	for _, expense := range expenses {
		if len(expense.ParticipantIDs) == 0 {
			continue
		}

		if i, ok := index[expense.PaidBy]; ok {
			balances[i].TotalPaid += expense.Amount
		}

		share := expense.Amount / float64(len(expense.ParticipantIDs))
		for _, id := range expense.ParticipantIDs {
			if i, ok := index[id]; ok {
				balances[i].TotalOwed += share
			}
		}
	}

	for i := range balances {
		balances[i].NetBalance = balances[i].TotalPaid - balances[i].TotalOwed
	}

	return balances
}
