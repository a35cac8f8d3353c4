package service

import (
	"time"

	"github.com/mmynk/tripsplit/internal/calculator"
	"github.com/mmynk/tripsplit/internal/models"
	"github.com/mmynk/tripsplit/pkg/api"
)

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func toAPIParticipant(p models.Participant) api.Participant {
	return api.Participant{
		ID:        p.ID,
		Name:      p.Name,
		CreatedAt: toMillis(p.CreatedAt),
	}
}

func toAPIExpense(e models.Expense) api.Expense {
	ids := make([]string, len(e.ParticipantIDs))
	copy(ids, e.ParticipantIDs)
	return api.Expense{
		ID:             e.ID,
		TripID:         e.TripID,
		Description:    e.Description,
		Amount:         e.Amount,
		Currency:       e.Currency,
		PaidBy:         e.PaidBy,
		ParticipantIDs: ids,
		Date:           toMillis(e.Date),
		CreatedAt:      toMillis(e.CreatedAt),
	}
}

func toAPIExpenses(expenses []models.Expense) []api.Expense {
	out := make([]api.Expense, len(expenses))
	for i, e := range expenses {
		out[i] = toAPIExpense(e)
	}
	return out
}

func toAPITrip(trip *models.Trip) *api.Trip {
	participants := make([]api.Participant, len(trip.Participants))
	for i, p := range trip.Participants {
		participants[i] = toAPIParticipant(p)
	}
	return &api.Trip{
		ID:           trip.ID,
		Name:         trip.Name,
		Description:  trip.Description,
		RoomCode:     trip.RoomCode,
		CreatedBy:    trip.CreatedBy,
		Participants: participants,
		Expenses:     toAPIExpenses(trip.Expenses),
		CreatedAt:    toMillis(trip.CreatedAt),
		UpdatedAt:    toMillis(trip.UpdatedAt),
	}
}

func toAPIBalances(balances []calculator.Balance) []api.Balance {
	out := make([]api.Balance, len(balances))
	for i, b := range balances {
		out[i] = api.Balance{
			ParticipantID:   b.ParticipantID,
			ParticipantName: b.ParticipantName,
			TotalPaid:       b.TotalPaid,
			TotalOwed:       b.TotalOwed,
			NetBalance:      b.NetBalance,
		}
	}
	return out
}

func toAPISettlements(settlements []calculator.Settlement) []api.Settlement {
	out := make([]api.Settlement, len(settlements))
	for i, s := range settlements {
		out[i] = api.Settlement{
			FromID:   s.FromID,
			FromName: s.FromName,
			ToID:     s.ToID,
			ToName:   s.ToName,
			Amount:   s.Amount,
		}
	}
	return out
}

func toAPISummary(summary calculator.BalanceSummary) *api.BalanceSummary {
	groups := make([]api.CombinationGroup, len(summary.CombinationBalances))
	for i, g := range summary.CombinationBalances {
		groups[i] = api.CombinationGroup{
			ParticipantIDs:   append([]string{}, g.ParticipantIDs...),
			ParticipantNames: append([]string{}, g.ParticipantNames...),
			Expenses:         toAPIExpenses(g.Expenses),
			Balances:         toAPIBalances(g.Balances),
			Settlements:      toAPISettlements(g.Settlements),
			TotalAmount:      g.TotalAmount,
		}
	}
	return &api.BalanceSummary{
		Balances:            toAPIBalances(summary.Balances),
		Settlements:         toAPISettlements(summary.Settlements),
		CombinationBalances: groups,
	}
}
