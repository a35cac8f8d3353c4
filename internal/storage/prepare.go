package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/tripsplit/internal/models"
	"github.com/mmynk/tripsplit/internal/roomcode"
)

// PrepareTrip fills in the generated fields of a new trip and its initial
// participants. The first participant becomes the creator when CreatedBy is
// empty. A room code is assigned separately, see NewRoomCode.
func PrepareTrip(trip *models.Trip, now time.Time) {
	if trip.ID == "" {
		trip.ID = uuid.New().String()
	}
	if trip.CreatedAt.IsZero() {
		trip.CreatedAt = now
	}
	trip.UpdatedAt = now
	for i := range trip.Participants {
		PrepareParticipant(&trip.Participants[i], now)
	}
	if trip.CreatedBy == "" && len(trip.Participants) > 0 {
		trip.CreatedBy = trip.Participants[0].ID
	}
	if trip.Participants == nil {
		trip.Participants = []models.Participant{}
	}
	if trip.Expenses == nil {
		trip.Expenses = []models.Expense{}
	}
}

// PrepareParticipant fills in the generated fields of a new participant.
func PrepareParticipant(p *models.Participant, now time.Time) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
}

// PrepareExpense fills in the generated fields of a new expense.
func PrepareExpense(tripID string, e *models.Expense, now time.Time) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.TripID = tripID
	if e.Currency == "" {
		e.Currency = models.DefaultCurrency
	}
	if e.Date.IsZero() {
		e.Date = now
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
}

// NewRoomCode returns the trip's requested room code on the first attempt,
// normalized, and a freshly generated one otherwise.
func NewRoomCode(requested string, attempt int) (string, error) {
	if requested != "" && attempt == 0 {
		return roomcode.Normalize(requested), nil
	}
	return roomcode.Generate()
}
