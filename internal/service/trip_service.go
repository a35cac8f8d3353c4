package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/tripsplit/internal/auth"
	"github.com/mmynk/tripsplit/internal/calculator"
	"github.com/mmynk/tripsplit/internal/metrics"
	"github.com/mmynk/tripsplit/internal/middleware"
	"github.com/mmynk/tripsplit/internal/models"
	"github.com/mmynk/tripsplit/internal/roomcode"
	"github.com/mmynk/tripsplit/internal/storage"
	"github.com/mmynk/tripsplit/pkg/api"
	"github.com/mmynk/tripsplit/pkg/api/apiconnect"
)

var (
	errNotInTrip       = errors.New("session does not belong to this trip")
	errUnknownPayer    = errors.New("payer is not a participant of this trip")
	errUnknownSplitter = errors.New("expense is split with someone outside this trip")
)

// TripService implements the Connect TripService.
type TripService struct {
	apiconnect.UnimplementedTripServiceHandler
	store   storage.Store
	jwt     *auth.JWTManager
	metrics *metrics.Metrics
}

// Option configures a TripService.
type Option func(*TripService)

// WithMetrics records domain metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *TripService) { s.metrics = m }
}

// NewTripService creates a new TripService with the given storage backend.
// jwtManager issues the session tokens handed out by CreateTrip and JoinTrip.
func NewTripService(store storage.Store, jwtManager *auth.JWTManager, opts ...Option) *TripService {
	s := &TripService{store: store, jwt: jwtManager}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTrip creates a trip with its creator as the first participant.
func (s *TripService) CreateTrip(ctx context.Context, req *connect.Request[api.CreateTripRequest]) (*connect.Response[api.CreateTripResponse], error) {
	name := strings.TrimSpace(req.Msg.Name)
	creatorName := strings.TrimSpace(req.Msg.CreatorName)
	slog.Info("CreateTrip request received", "name", name, "creator", creatorName)

	if name == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("trip name required"))
	}
	if creatorName == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("creator name required"))
	}

	trip := &models.Trip{
		Name:         name,
		Description:  strings.TrimSpace(req.Msg.Description),
		Participants: []models.Participant{{Name: creatorName}},
	}
	if err := s.store.CreateTrip(ctx, trip); err != nil {
		slog.Error("CreateTrip failed", "error", err)
		return nil, toConnectError(err)
	}

	creator := trip.Participants[0]
	token, err := s.jwt.Generate(trip.ID, creator.ID)
	if err != nil {
		slog.Error("CreateTrip failed to issue token", "trip_id", trip.ID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	if s.metrics != nil {
		s.metrics.TripsCreated.Inc()
	}
	slog.Info("Trip created", "trip_id", trip.ID, "room_code", trip.RoomCode)

	return connect.NewResponse(&api.CreateTripResponse{
		Trip:          toAPITrip(trip),
		ParticipantID: creator.ID,
		Token:         token,
	}), nil
}

// JoinTrip adds a new participant to the trip with the given room code.
func (s *TripService) JoinTrip(ctx context.Context, req *connect.Request[api.JoinTripRequest]) (*connect.Response[api.JoinTripResponse], error) {
	code := roomcode.Normalize(req.Msg.RoomCode)
	name := strings.TrimSpace(req.Msg.Name)
	slog.Info("JoinTrip request received", "room_code", code, "name", name)

	if !roomcode.Valid(code) {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid room code %q", req.Msg.RoomCode))
	}
	if name == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("name required"))
	}

	trip, err := s.store.GetTripByRoomCode(ctx, code)
	if err != nil {
		slog.Error("JoinTrip failed - trip not found", "room_code", code, "error", err)
		return nil, toConnectError(err)
	}

	participant := &models.Participant{Name: name}
	if err := s.store.AddParticipant(ctx, trip.ID, participant); err != nil {
		slog.Error("JoinTrip failed", "trip_id", trip.ID, "error", err)
		return nil, toConnectError(err)
	}

	updated, err := s.store.GetTrip(ctx, trip.ID)
	if err != nil {
		slog.Error("Failed to fetch joined trip", "trip_id", trip.ID, "error", err)
		return nil, toConnectError(err)
	}

	token, err := s.jwt.Generate(trip.ID, participant.ID)
	if err != nil {
		slog.Error("JoinTrip failed to issue token", "trip_id", trip.ID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	slog.Info("Participant joined", "trip_id", trip.ID, "participant_id", participant.ID)

	p := toAPIParticipant(*participant)
	return connect.NewResponse(&api.JoinTripResponse{
		Trip:        toAPITrip(updated),
		Participant: &p,
		Token:       token,
	}), nil
}

// GetTrip returns a trip with its participants and expenses.
func (s *TripService) GetTrip(ctx context.Context, req *connect.Request[api.GetTripRequest]) (*connect.Response[api.GetTripResponse], error) {
	slog.Info("GetTrip request received", "trip_id", req.Msg.TripID)

	trip, err := s.loadAuthorized(ctx, req.Msg.TripID)
	if err != nil {
		return nil, err
	}

	slog.Info("GetTrip successful",
		"trip_id", trip.ID,
		"participants", len(trip.Participants),
		"expenses", len(trip.Expenses),
	)

	return connect.NewResponse(&api.GetTripResponse{Trip: toAPITrip(trip)}), nil
}

// RemoveParticipant removes a participant from the trip. Their ID is
// stripped from every expense split; expenses they paid that nobody else
// shared are dropped with them.
func (s *TripService) RemoveParticipant(ctx context.Context, req *connect.Request[api.RemoveParticipantRequest]) (*connect.Response[api.RemoveParticipantResponse], error) {
	tripID, participantID := req.Msg.TripID, req.Msg.ParticipantID
	slog.Info("RemoveParticipant request received",
		"trip_id", tripID,
		"participant_id", participantID,
		"by", middleware.GetParticipantID(ctx),
	)

	if participantID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("participant_id required"))
	}

	trip, err := s.loadAuthorized(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !trip.HasParticipant(participantID) {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("participant %s not in trip", participantID))
	}

	if err := s.store.RemoveParticipant(ctx, tripID, participantID); err != nil {
		slog.Error("RemoveParticipant failed", "trip_id", tripID, "error", err)
		return nil, toConnectError(err)
	}

	updated, err := s.store.GetTrip(ctx, tripID)
	if err != nil {
		slog.Error("Failed to fetch updated trip", "trip_id", tripID, "error", err)
		return nil, toConnectError(err)
	}

	slog.Info("Participant removed", "trip_id", tripID, "participant_id", participantID)

	return connect.NewResponse(&api.RemoveParticipantResponse{Trip: toAPITrip(updated)}), nil
}

// AddExpense records an expense on the trip.
func (s *TripService) AddExpense(ctx context.Context, req *connect.Request[api.AddExpenseRequest]) (*connect.Response[api.AddExpenseResponse], error) {
	slog.Info("AddExpense request received",
		"trip_id", req.Msg.TripID,
		"amount", req.Msg.Amount,
		"paid_by", req.Msg.PaidBy,
		"participants_count", len(req.Msg.ParticipantIDs),
	)

	expense := &models.Expense{
		Description:    strings.TrimSpace(req.Msg.Description),
		Amount:         req.Msg.Amount,
		Currency:       req.Msg.Currency,
		PaidBy:         req.Msg.PaidBy,
		ParticipantIDs: req.Msg.ParticipantIDs,
		Date:           fromMillis(req.Msg.Date),
	}
	if err := expense.Validate(); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	trip, err := s.loadAuthorized(ctx, req.Msg.TripID)
	if err != nil {
		return nil, err
	}
	if err := validateMembers(trip, expense); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	if err := s.store.AddExpense(ctx, trip.ID, expense); err != nil {
		slog.Error("AddExpense failed", "trip_id", trip.ID, "error", err)
		return nil, toConnectError(err)
	}

	if s.metrics != nil {
		s.metrics.ExpensesAdded.Inc()
	}
	slog.Info("Expense added", "trip_id", trip.ID, "expense_id", expense.ID)

	e := toAPIExpense(*expense)
	return connect.NewResponse(&api.AddExpenseResponse{Expense: &e}), nil
}

// DeleteExpense removes an expense from the trip.
func (s *TripService) DeleteExpense(ctx context.Context, req *connect.Request[api.DeleteExpenseRequest]) (*connect.Response[api.DeleteExpenseResponse], error) {
	slog.Info("DeleteExpense request received", "trip_id", req.Msg.TripID, "expense_id", req.Msg.ExpenseID)

	if req.Msg.ExpenseID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("expense_id required"))
	}
	if _, err := s.loadAuthorized(ctx, req.Msg.TripID); err != nil {
		return nil, err
	}

	if err := s.store.DeleteExpense(ctx, req.Msg.TripID, req.Msg.ExpenseID); err != nil {
		slog.Error("DeleteExpense failed", "trip_id", req.Msg.TripID, "error", err)
		return nil, toConnectError(err)
	}

	slog.Info("Expense deleted", "trip_id", req.Msg.TripID, "expense_id", req.Msg.ExpenseID)

	return connect.NewResponse(&api.DeleteExpenseResponse{}), nil
}

// GetBalances computes balances, settlements and per-combination breakdowns
// for the trip.
func (s *TripService) GetBalances(ctx context.Context, req *connect.Request[api.GetBalancesRequest]) (*connect.Response[api.GetBalancesResponse], error) {
	slog.Info("GetBalances request received", "trip_id", req.Msg.TripID)

	trip, err := s.loadAuthorized(ctx, req.Msg.TripID)
	if err != nil {
		return nil, err
	}

	summary, err := calculator.Summarize(*trip)
	if err != nil {
		slog.Warn("GetBalances failed - trip holds an invalid expense", "trip_id", trip.ID, "error", err)
		return nil, connect.NewError(connect.CodeFailedPrecondition, err)
	}

	if s.metrics != nil {
		s.metrics.Settlements.Observe(float64(len(summary.Settlements)))
	}
	slog.Info("GetBalances successful",
		"trip_id", trip.ID,
		"participants", len(summary.Balances),
		"settlements", len(summary.Settlements),
		"combinations", len(summary.CombinationBalances),
	)

	return connect.NewResponse(&api.GetBalancesResponse{Summary: toAPISummary(summary)}), nil
}

// authorize checks that the caller's session belongs to tripID.
func authorize(ctx context.Context, tripID string) error {
	if tripID == "" {
		return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("trip_id required"))
	}
	sessionTrip := middleware.GetTripID(ctx)
	if sessionTrip == "" {
		return connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
	}
	if sessionTrip != tripID {
		return connect.NewError(connect.CodePermissionDenied, errNotInTrip)
	}
	return nil
}

// loadAuthorized loads the trip and checks the caller is still one of its
// participants.
func (s *TripService) loadAuthorized(ctx context.Context, tripID string) (*models.Trip, error) {
	if err := authorize(ctx, tripID); err != nil {
		return nil, err
	}

	trip, err := s.store.GetTrip(ctx, tripID)
	if err != nil {
		slog.Error("Failed to load trip", "trip_id", tripID, "error", err)
		return nil, toConnectError(err)
	}

	if !trip.HasParticipant(middleware.GetParticipantID(ctx)) {
		return nil, connect.NewError(connect.CodePermissionDenied, errNotInTrip)
	}
	return trip, nil
}

// validateMembers checks the payer and every splitter belong to the trip.
func validateMembers(trip *models.Trip, expense *models.Expense) error {
	if !trip.HasParticipant(expense.PaidBy) {
		return fmt.Errorf("%w: %s", errUnknownPayer, expense.PaidBy)
	}
	for _, id := range expense.ParticipantIDs {
		if !trip.HasParticipant(id) {
			return fmt.Errorf("%w: %s", errUnknownSplitter, id)
		}
	}
	return nil
}

// toConnectError maps storage errors to Connect codes.
func toConnectError(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
