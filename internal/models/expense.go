package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultCurrency is recorded on every expense. Amounts are never converted.
const DefaultCurrency = "USD"

var (
	ErrNoParticipants = errors.New("expense must be split among at least one participant")
	ErrInvalidAmount  = errors.New("expense amount must be a positive number")
	ErrMissingPayer   = errors.New("expense must have a payer")
)

// Expense is one shared cost within a trip.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string `json:"id"`

	TripID      string `json:"tripId"`
	Description string `json:"description"`

	// Amount is the total paid. Always positive.
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`

	// PaidBy is the participant ID of whoever paid.
	// The payer does not have to be one of ParticipantIDs.
	PaidBy string `json:"paidBy"`

	// ParticipantIDs are the participants splitting the amount equally.
	ParticipantIDs []string `json:"participantIds"`

	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks the invariants every expense must hold before it reaches
// the balance calculator.
func (e *Expense) Validate() error {
	if math.IsNaN(e.Amount) || math.IsInf(e.Amount, 0) || e.Amount <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidAmount, e.Amount)
	}
	if e.PaidBy == "" {
		return ErrMissingPayer
	}
	if len(e.ParticipantIDs) == 0 {
		return ErrNoParticipants
	}
	return nil
}
