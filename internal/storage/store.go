// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/tripsplit/internal/models"
)

var (
	// ErrNotFound is returned (wrapped) when a trip, participant, or expense does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRoomCodeTaken is returned when no free room code could be allocated.
	ErrRoomCodeTaken = errors.New("room code already in use")
)

// MaxRoomCodeAttempts bounds how many fresh room codes CreateTrip tries.
const MaxRoomCodeAttempts = 5

// Store defines the interface for trip storage operations.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL)
// without changing the service layer.
type Store interface {
	// CreateTrip persists a new trip together with its initial participants.
	// ID, RoomCode, CreatedAt and UpdatedAt are populated by the store when empty,
	// as are participant IDs and timestamps.
	CreateTrip(ctx context.Context, trip *models.Trip) error

	// GetTrip retrieves a trip with its participants and expenses.
	GetTrip(ctx context.Context, tripID string) (*models.Trip, error)

	// GetTripByRoomCode retrieves a trip by its room code.
	GetTripByRoomCode(ctx context.Context, roomCode string) (*models.Trip, error)

	// AddParticipant adds a participant to a trip. The participant's ID and
	// CreatedAt are populated by the store when empty.
	AddParticipant(ctx context.Context, tripID string, participant *models.Participant) error

	// RemoveParticipant removes a participant and rewrites the trip's expenses
	// as described by models.RemoveParticipant.
	RemoveParticipant(ctx context.Context, tripID, participantID string) error

	// AddExpense persists a new expense. ID, TripID, Currency, Date and
	// CreatedAt are populated by the store when empty.
	AddExpense(ctx context.Context, tripID string, expense *models.Expense) error

	// DeleteExpense removes an expense from a trip.
	DeleteExpense(ctx context.Context, tripID, expenseID string) error

	// Close releases any resources held by the store.
	Close() error
}
