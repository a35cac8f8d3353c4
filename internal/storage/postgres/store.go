package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mmynk/tripsplit/internal/models"
	"github.com/mmynk/tripsplit/internal/storage"
)

// Ensure PostgresStore implements storage.Store
var _ storage.Store = (*PostgresStore)(nil)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PostgresStore implements storage.Store on PostgreSQL. Expense splits are kept in a
// TEXT[] column, so a trip loads in three queries.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL, runs pending migrations and returns the store.
func New(ctx context.Context, cfg ClientConfig) (*PostgresStore, error) {
	pool, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// CreateTrip persists a new trip, retrying with a fresh room code when the
// chosen one is already taken.
func (s *PostgresStore) CreateTrip(ctx context.Context, trip *models.Trip) error {
	storage.PrepareTrip(trip, time.Now().UTC())

	requested := trip.RoomCode
	for attempt := 0; attempt < storage.MaxRoomCodeAttempts; attempt++ {
		code, err := storage.NewRoomCode(requested, attempt)
		if err != nil {
			return err
		}
		trip.RoomCode = code

		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			return insertTrip(ctx, tx, trip)
		})
		if err == nil {
			return nil
		}
		if !isRoomCodeConflict(err) {
			return err
		}
		slog.Warn("Room code collision, retrying", "room_code", code, "attempt", attempt+1)
	}

	return fmt.Errorf("postgres: create trip: %w", storage.ErrRoomCodeTaken)
}

func insertTrip(ctx context.Context, tx pgx.Tx, trip *models.Trip) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO trips (id, name, description, room_code, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		trip.ID, trip.Name, trip.Description, trip.RoomCode, trip.CreatedBy, trip.CreatedAt, trip.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trip: %w", err)
	}

	batch := &pgx.Batch{}
	for _, p := range trip.Participants {
		batch.Queue(
			"INSERT INTO participants (id, trip_id, name, created_at) VALUES ($1, $2, $3, $4)",
			p.ID, trip.ID, p.Name, p.CreatedAt,
		)
	}
	for i := range trip.Expenses {
		e := &trip.Expenses[i]
		storage.PrepareExpense(trip.ID, e, trip.CreatedAt)
		queueExpense(batch, e)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: insert trip members: %w", err)
	}
	return nil
}

// GetTrip retrieves a trip by ID, including all participants and expenses.
func (s *PostgresStore) GetTrip(ctx context.Context, tripID string) (*models.Trip, error) {
	return s.loadTrip(ctx, "id", tripID)
}

// GetTripByRoomCode retrieves a trip by its room code.
func (s *PostgresStore) GetTripByRoomCode(ctx context.Context, roomCode string) (*models.Trip, error) {
	return s.loadTrip(ctx, "room_code", roomCode)
}

func (s *PostgresStore) loadTrip(ctx context.Context, column, value string) (*models.Trip, error) {
	trip := &models.Trip{}
	err := s.pool.QueryRow(ctx,
		"SELECT id, name, description, room_code, created_by, created_at, updated_at FROM trips WHERE "+column+" = $1",
		value,
	).Scan(&trip.ID, &trip.Name, &trip.Description, &trip.RoomCode, &trip.CreatedBy, &trip.CreatedAt, &trip.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: trip %s: %w", value, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get trip: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		"SELECT id, name, created_at FROM participants WHERE trip_id = $1 ORDER BY seq",
		trip.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: get participants: %w", err)
	}
	trip.Participants, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Participant, error) {
		var p models.Participant
		err := row.Scan(&p.ID, &p.Name, &p.CreatedAt)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan participants: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		`SELECT id, trip_id, description, amount, currency, paid_by, participant_ids, date, created_at
		 FROM expenses WHERE trip_id = $1 ORDER BY seq`,
		trip.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: get expenses: %w", err)
	}
	trip.Expenses, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Expense, error) {
		var e models.Expense
		err := row.Scan(&e.ID, &e.TripID, &e.Description, &e.Amount, &e.Currency, &e.PaidBy,
			&e.ParticipantIDs, &e.Date, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan expenses: %w", err)
	}

	trip.CreatedAt = trip.CreatedAt.UTC()
	trip.UpdatedAt = trip.UpdatedAt.UTC()
	return trip, nil
}

// AddParticipant adds a participant to an existing trip.
func (s *PostgresStore) AddParticipant(ctx context.Context, tripID string, participant *models.Participant) error {
	now := time.Now().UTC()
	storage.PrepareParticipant(participant, now)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := touchTrip(ctx, tx, tripID, now); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			"INSERT INTO participants (id, trip_id, name, created_at) VALUES ($1, $2, $3, $4)",
			participant.ID, tripID, participant.Name, participant.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert participant: %w", err)
		}
		return nil
	})
}

// RemoveParticipant removes a participant and strips them from every expense
// split, dropping expenses they paid that nobody is left to split.
func (s *PostgresStore) RemoveParticipant(ctx context.Context, tripID, participantID string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			"DELETE FROM participants WHERE id = $1 AND trip_id = $2",
			participantID, tripID,
		)
		if err != nil {
			return fmt.Errorf("postgres: delete participant: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("postgres: participant %s: %w", participantID, storage.ErrNotFound)
		}

		if _, err := tx.Exec(ctx,
			"UPDATE expenses SET participant_ids = array_remove(participant_ids, $1) WHERE trip_id = $2",
			participantID, tripID,
		); err != nil {
			return fmt.Errorf("postgres: strip participant from expenses: %w", err)
		}

		if _, err := tx.Exec(ctx,
			"DELETE FROM expenses WHERE trip_id = $1 AND paid_by = $2 AND cardinality(participant_ids) = 0",
			tripID, participantID,
		); err != nil {
			return fmt.Errorf("postgres: delete orphaned expenses: %w", err)
		}

		return touchTrip(ctx, tx, tripID, time.Now().UTC())
	})
}

// AddExpense persists a new expense on an existing trip.
func (s *PostgresStore) AddExpense(ctx context.Context, tripID string, expense *models.Expense) error {
	now := time.Now().UTC()
	storage.PrepareExpense(tripID, expense, now)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := touchTrip(ctx, tx, tripID, now); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		queueExpense(batch, expense)
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: insert expense: %w", err)
		}
		return nil
	})
}

// DeleteExpense removes an expense from a trip.
func (s *PostgresStore) DeleteExpense(ctx context.Context, tripID, expenseID string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM expenses WHERE id = $1 AND trip_id = $2", expenseID, tripID)
		if err != nil {
			return fmt.Errorf("postgres: delete expense: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("postgres: expense %s: %w", expenseID, storage.ErrNotFound)
		}
		return touchTrip(ctx, tx, tripID, time.Now().UTC())
	})
}

func queueExpense(batch *pgx.Batch, e *models.Expense) {
	ids := e.ParticipantIDs
	if ids == nil {
		ids = []string{}
	}
	batch.Queue(
		`INSERT INTO expenses (id, trip_id, description, amount, currency, paid_by, participant_ids, date, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.TripID, e.Description, e.Amount, e.Currency, e.PaidBy, ids, e.Date, e.CreatedAt,
	)
}

// touchTrip bumps updated_at and doubles as an existence check.
func touchTrip(ctx context.Context, tx pgx.Tx, tripID string, now time.Time) error {
	tag, err := tx.Exec(ctx, "UPDATE trips SET updated_at = $1 WHERE id = $2", now, tripID)
	if err != nil {
		return fmt.Errorf("postgres: update trip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: trip %s: %w", tripID, storage.ErrNotFound)
	}
	return nil
}

func isRoomCodeConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "trips_room_code_key"
}
