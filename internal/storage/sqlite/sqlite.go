// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/tripsplit/internal/models"
	"github.com/mmynk/tripsplit/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateTrip persists a new trip, retrying with a fresh room code when the
// chosen one is already taken.
func (s *SQLiteStore) CreateTrip(ctx context.Context, trip *models.Trip) error {
	storage.PrepareTrip(trip, time.Now().UTC())

	requested := trip.RoomCode
	for attempt := 0; attempt < storage.MaxRoomCodeAttempts; attempt++ {
		code, err := storage.NewRoomCode(requested, attempt)
		if err != nil {
			return err
		}
		trip.RoomCode = code

		err = s.insertTrip(ctx, trip)
		if err == nil {
			return nil
		}
		if !isRoomCodeConflict(err) {
			return err
		}
		slog.Warn("Room code collision, retrying", "room_code", code, "attempt", attempt+1)
	}

	return fmt.Errorf("failed to create trip: %w", storage.ErrRoomCodeTaken)
}

func (s *SQLiteStore) insertTrip(ctx context.Context, trip *models.Trip) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO trips (id, name, description, room_code, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		trip.ID, trip.Name, trip.Description, trip.RoomCode, trip.CreatedBy,
		trip.CreatedAt.UnixMilli(), trip.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trip: %w", err)
	}

	for i := range trip.Participants {
		if err := insertParticipant(ctx, tx, trip.ID, &trip.Participants[i]); err != nil {
			return err
		}
	}

	for i := range trip.Expenses {
		e := &trip.Expenses[i]
		storage.PrepareExpense(trip.ID, e, trip.CreatedAt)
		if err := insertExpense(ctx, tx, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetTrip retrieves a trip by ID, including all participants and expenses.
func (s *SQLiteStore) GetTrip(ctx context.Context, tripID string) (*models.Trip, error) {
	return s.loadTrip(ctx, "id", tripID)
}

// GetTripByRoomCode retrieves a trip by its room code.
func (s *SQLiteStore) GetTripByRoomCode(ctx context.Context, roomCode string) (*models.Trip, error) {
	return s.loadTrip(ctx, "room_code", roomCode)
}

func (s *SQLiteStore) loadTrip(ctx context.Context, column, value string) (*models.Trip, error) {
	trip := &models.Trip{
		Participants: []models.Participant{},
		Expenses:     []models.Expense{},
	}
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, description, room_code, created_by, created_at, updated_at FROM trips WHERE "+column+" = ?",
		value,
	).Scan(&trip.ID, &trip.Name, &trip.Description, &trip.RoomCode, &trip.CreatedBy, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trip %s: %w", value, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	trip.CreatedAt = fromMillis(createdAt)
	trip.UpdatedAt = fromMillis(updatedAt)

	// Get participants in join order
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM participants WHERE trip_id = ? ORDER BY created_at, rowid",
		trip.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Participant
		var ts int64
		if err := rows.Scan(&p.ID, &p.Name, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		p.CreatedAt = fromMillis(ts)
		trip.Participants = append(trip.Participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}

	// Get the split lists for every expense in one pass
	splits := make(map[string][]string)
	splitRows, err := s.db.QueryContext(ctx,
		`SELECT ep.expense_id, ep.participant_id
		 FROM expense_participants ep JOIN expenses e ON e.id = ep.expense_id
		 WHERE e.trip_id = ? ORDER BY ep.expense_id, ep.position`,
		trip.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get expense participants: %w", err)
	}
	defer splitRows.Close()

	for splitRows.Next() {
		var expenseID, participantID string
		if err := splitRows.Scan(&expenseID, &participantID); err != nil {
			return nil, fmt.Errorf("failed to scan expense participant: %w", err)
		}
		splits[expenseID] = append(splits[expenseID], participantID)
	}
	if err := splitRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expense participants: %w", err)
	}

	expenseRows, err := s.db.QueryContext(ctx,
		`SELECT id, description, amount, currency, paid_by, date, created_at
		 FROM expenses WHERE trip_id = ? ORDER BY created_at, rowid`,
		trip.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get expenses: %w", err)
	}
	defer expenseRows.Close()

	for expenseRows.Next() {
		e := models.Expense{TripID: trip.ID}
		var date, ts int64
		if err := expenseRows.Scan(&e.ID, &e.Description, &e.Amount, &e.Currency, &e.PaidBy, &date, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		e.Date = fromMillis(date)
		e.CreatedAt = fromMillis(ts)
		e.ParticipantIDs = splits[e.ID]
		if e.ParticipantIDs == nil {
			e.ParticipantIDs = []string{}
		}
		trip.Expenses = append(trip.Expenses, e)
	}
	if err := expenseRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	return trip, nil
}

// AddParticipant adds a participant to an existing trip.
func (s *SQLiteStore) AddParticipant(ctx context.Context, tripID string, participant *models.Participant) error {
	now := time.Now().UTC()
	storage.PrepareParticipant(participant, now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := touchTrip(ctx, tx, tripID, now); err != nil {
		return err
	}
	if err := insertParticipant(ctx, tx, tripID, participant); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RemoveParticipant removes a participant and strips them from every expense split.
func (s *SQLiteStore) RemoveParticipant(ctx context.Context, tripID, participantID string) error {
	trip, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return err
	}
	if !trip.HasParticipant(participantID) {
		return fmt.Errorf("participant %s: %w", participantID, storage.ErrNotFound)
	}

	_, kept := models.RemoveParticipant(*trip, participantID)
	keptIDs := make(map[string]bool, len(kept))
	for _, e := range kept {
		keptIDs[e.ID] = true
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM participants WHERE id = ? AND trip_id = ?",
		participantID, tripID,
	); err != nil {
		return fmt.Errorf("failed to delete participant: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM expense_participants
		 WHERE participant_id = ? AND expense_id IN (SELECT id FROM expenses WHERE trip_id = ?)`,
		participantID, tripID,
	); err != nil {
		return fmt.Errorf("failed to delete expense participants: %w", err)
	}

	for _, e := range trip.Expenses {
		if keptIDs[e.ID] {
			continue
		}
		if err := deleteExpense(ctx, tx, tripID, e.ID); err != nil {
			return err
		}
	}

	if err := touchTrip(ctx, tx, tripID, time.Now().UTC()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AddExpense persists a new expense on an existing trip.
func (s *SQLiteStore) AddExpense(ctx context.Context, tripID string, expense *models.Expense) error {
	now := time.Now().UTC()
	storage.PrepareExpense(tripID, expense, now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := touchTrip(ctx, tx, tripID, now); err != nil {
		return err
	}
	if err := insertExpense(ctx, tx, expense); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteExpense removes an expense from a trip.
func (s *SQLiteStore) DeleteExpense(ctx context.Context, tripID, expenseID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteExpense(ctx, tx, tripID, expenseID); err != nil {
		return err
	}
	if err := touchTrip(ctx, tx, tripID, time.Now().UTC()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertParticipant(ctx context.Context, db execer, tripID string, p *models.Participant) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO participants (id, trip_id, name, created_at) VALUES (?, ?, ?, ?)",
		p.ID, tripID, p.Name, p.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert participant: %w", err)
	}
	return nil
}

func insertExpense(ctx context.Context, db execer, e *models.Expense) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO expenses (id, trip_id, description, amount, currency, paid_by, date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TripID, e.Description, e.Amount, e.Currency, e.PaidBy,
		e.Date.UnixMilli(), e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	for position, participantID := range e.ParticipantIDs {
		_, err = db.ExecContext(ctx,
			"INSERT INTO expense_participants (expense_id, participant_id, position) VALUES (?, ?, ?)",
			e.ID, participantID, position,
		)
		if err != nil {
			return fmt.Errorf("failed to insert expense participant: %w", err)
		}
	}
	return nil
}

func deleteExpense(ctx context.Context, db execer, tripID, expenseID string) error {
	if _, err := db.ExecContext(ctx,
		"DELETE FROM expense_participants WHERE expense_id IN (SELECT id FROM expenses WHERE id = ? AND trip_id = ?)",
		expenseID, tripID,
	); err != nil {
		return fmt.Errorf("failed to delete expense participants: %w", err)
	}

	res, err := db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ? AND trip_id = ?", expenseID, tripID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
	}
	return nil
}

// touchTrip bumps updated_at and doubles as an existence check.
func touchTrip(ctx context.Context, db execer, tripID string, now time.Time) error {
	res, err := db.ExecContext(ctx, "UPDATE trips SET updated_at = ? WHERE id = ?", now.UnixMilli(), tripID)
	if err != nil {
		return fmt.Errorf("failed to update trip: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update trip: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("trip %s: %w", tripID, storage.ErrNotFound)
	}
	return nil
}

func isRoomCodeConflict(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed: trips.room_code")
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
