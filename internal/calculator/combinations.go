package calculator

import (
	"cmp"
	"slices"
	"strings"

	"github.com/mmynk/tripsplit/internal/models"
)

// CombinationGroup holds the expenses split among exactly the same set of
// participants, balanced on their own.
type CombinationGroup struct {
	ParticipantIDs   []string         `json:"participantIds"` // sorted, deduplicated
	ParticipantNames []string         `json:"participantNames"`
	Expenses         []models.Expense `json:"expenses"`
	Balances         []Balance        `json:"balances"`
	Settlements      []Settlement     `json:"settlements"`
	TotalAmount      float64          `json:"totalAmount"`
}

// CombinationKey returns the sorted, deduplicated participant IDs and the
// comma-joined key identifying their combination. {B,A} and {A,B} share a key;
// {A,B} and {A,B,C} do not.
func CombinationKey(participantIDs []string) (string, []string) {
	ids := slices.Clone(participantIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	return strings.Join(ids, ","), ids
}

// ComputeCombinationBalances partitions the trip's expenses by participant
// combination and runs the balance and settlement calculation for each
// partition, considering only that combination's participants. Groups are
// returned largest TotalAmount first.
func ComputeCombinationBalances(trip models.Trip) []CombinationGroup {
	names := make(map[string]string, len(trip.Participants))
	for _, p := range trip.Participants {
		names[p.ID] = p.Name
	}

	var order []string
	partitions := make(map[string]*CombinationGroup)
	for _, expense := range trip.Expenses {
		key, ids := CombinationKey(expense.ParticipantIDs)
		group, ok := partitions[key]
		if !ok {
			group = &CombinationGroup{ParticipantIDs: ids}
			partitions[key] = group
			order = append(order, key)
		}
		expense.ParticipantIDs = slices.Clone(expense.ParticipantIDs)
		group.Expenses = append(group.Expenses, expense)
		group.TotalAmount += expense.Amount
	}

	groups := make([]CombinationGroup, 0, len(order))
	for _, key := range order {
		group := partitions[key]

		members := make([]models.Participant, len(group.ParticipantIDs))
		group.ParticipantNames = make([]string, len(group.ParticipantIDs))
		for i, id := range group.ParticipantIDs {
			name, ok := names[id]
			if !ok {
				name = id
			}
			members[i] = models.Participant{ID: id, Name: name}
			group.ParticipantNames[i] = name
		}

		group.Balances = ComputeBalances(members, group.Expenses)
		group.Settlements = ComputeSettlements(group.Balances)
		groups = append(groups, *group)
	}

	slices.SortStableFunc(groups, func(a, b CombinationGroup) int {
		return cmp.Compare(b.TotalAmount, a.TotalAmount)
	})

	return groups
}
