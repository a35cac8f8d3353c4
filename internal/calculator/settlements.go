package calculator

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
)

// Epsilon is the tolerance below which a balance counts as settled.
const Epsilon = 0.01

// Settlement is a suggested payment from a debtor to a creditor.
type Settlement struct {
	FromID   string  `json:"fromId"` // Person who owes
	FromName string  `json:"fromName"`
	ToID     string  `json:"toId"` // Person who is owed
	ToName   string  `json:"toName"`
	Amount   float64 `json:"amount"`
}

type position struct {
	id        string
	name      string
	remaining float64
}

// ComputeSettlements matches debtors with creditors to clear all balances.
//
// Greedy algorithm: the largest creditor is paid by the largest debtor, for
// the smaller of the two outstanding amounts, then whichever side is
// exhausted moves on (both when they tie). This keeps the number of payments
// low but is not guaranteed to be the global minimum.
//
// Amounts are rounded to cents when emitted; the running totals keep full
// precision. Balances within Epsilon of zero are left out.
func ComputeSettlements(balances []Balance) []Settlement {
	var creditors, debtors []position
	for _, b := range balances {
		switch {
		case b.NetBalance > Epsilon:
			creditors = append(creditors, position{b.ParticipantID, b.ParticipantName, b.NetBalance})
		case b.NetBalance < -Epsilon:
			debtors = append(debtors, position{b.ParticipantID, b.ParticipantName, -b.NetBalance})
		}
	}

	largestFirst := func(a, b position) int { return cmp.Compare(b.remaining, a.remaining) }
	slices.SortStableFunc(creditors, largestFirst)
	slices.SortStableFunc(debtors, largestFirst)

	settlements := []Settlement{}
	i, j := 0, 0
	for i < len(creditors) && j < len(debtors) {
		creditor := &creditors[i]
		debtor := &debtors[j]

		amount := min(creditor.remaining, debtor.remaining)
		if amount > Epsilon {
			settlements = append(settlements, Settlement{
				FromID:   debtor.id,
				FromName: debtor.name,
				ToID:     creditor.id,
				ToName:   creditor.name,
				Amount:   roundCents(amount),
			})
		}

		creditor.remaining -= amount
		debtor.remaining -= amount

		if creditor.remaining < Epsilon {
			i++
		}
		if debtor.remaining < Epsilon {
			j++
		}
	}

	return settlements
}

func roundCents(amount float64) float64 {
	return decimal.NewFromFloat(amount).Round(2).InexactFloat64()
}
