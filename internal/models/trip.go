package models

import "time"

// Trip is a group of participants sharing expenses.
// Participants join a trip through its RoomCode.
type Trip struct {
	// ID is the unique identifier for the trip (UUID format).
	ID string `json:"id"`

	// Name is the display name of the trip (e.g., "Lisbon 2026").
	Name string `json:"name"`

	// Description is optional free text.
	Description string `json:"description,omitempty"`

	// RoomCode is the 6-character code others use to join.
	RoomCode string `json:"roomCode"`

	// CreatedBy is the participant ID of the trip creator.
	CreatedBy string `json:"createdBy"`

	Participants []Participant `json:"participants"`
	Expenses     []Expense     `json:"expenses"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Participant is a member of a trip. IDs are unique within a trip.
type Participant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Participant returns the participant with the given ID.
func (t *Trip) Participant(id string) (Participant, bool) {
	for _, p := range t.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// HasParticipant reports whether id belongs to the trip.
func (t *Trip) HasParticipant(id string) bool {
	_, ok := t.Participant(id)
	return ok
}

// Expense returns the expense with the given ID.
func (t *Trip) Expense(id string) (Expense, bool) {
	for _, e := range t.Expenses {
		if e.ID == id {
			return e, true
		}
	}
	return Expense{}, false
}

// RemoveParticipant returns copies of the trip's participants and expenses with
// the participant removed. The participant's ID is stripped from every
// expense's split list. An expense left with nobody to split it is dropped
// only when the removed participant paid for it; otherwise it is kept so the
// payer's outlay is not silently lost.
func RemoveParticipant(trip Trip, participantID string) ([]Participant, []Expense) {
	participants := make([]Participant, 0, len(trip.Participants))
	for _, p := range trip.Participants {
		if p.ID != participantID {
			participants = append(participants, p)
		}
	}

	expenses := make([]Expense, 0, len(trip.Expenses))
	for _, e := range trip.Expenses {
		ids := make([]string, 0, len(e.ParticipantIDs))
		for _, id := range e.ParticipantIDs {
			if id != participantID {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 && e.PaidBy == participantID {
			continue
		}
		e.ParticipantIDs = ids
		expenses = append(expenses, e)
	}

	return participants, expenses
}
