package service

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mmynk/tripsplit/internal/auth"
	"github.com/mmynk/tripsplit/internal/metrics"
	"github.com/mmynk/tripsplit/internal/middleware"
	"github.com/mmynk/tripsplit/internal/models"
	"github.com/mmynk/tripsplit/internal/storage/sqlite"
	"github.com/mmynk/tripsplit/pkg/api"
	"github.com/mmynk/tripsplit/pkg/api/apiconnect"
)

type testEnv struct {
	client  apiconnect.TripServiceClient
	store   *sqlite.SQLiteStore
	jwt     *auth.JWTManager
	metrics *metrics.Metrics
}

// setupTestServer serves TripService over a temp SQLite database with the
// same interceptor chain as the server binary.
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	m := metrics.New()

	path, handler := apiconnect.NewTripServiceHandler(
		NewTripService(store, jwtManager, WithMetrics(m)),
		connect.WithInterceptors(
			middleware.MetricsInterceptor(m),
			middleware.RequireSession(jwtManager, apiconnect.PublicProcedures...),
			middleware.LoggingInterceptor(),
		),
	)
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		store.Close()
	})

	return &testEnv{
		client:  apiconnect.NewTripServiceClient(http.DefaultClient, server.URL),
		store:   store,
		jwt:     jwtManager,
		metrics: m,
	}
}

func authed[T any](msg *T, token string) *connect.Request[T] {
	req := connect.NewRequest(msg)
	req.Header().Set("Authorization", "Bearer "+token)
	return req
}

func assertCode(t *testing.T, err error, want connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", want)
	}
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		t.Fatalf("expected connect.Error, got %T", err)
	}
	if connectErr.Code() != want {
		t.Errorf("expected %v, got %v (%s)", want, connectErr.Code(), connectErr.Message())
	}
}

type member struct {
	id    string
	token string
}

// newTrip creates a trip as the first name and joins the rest.
func newTrip(t *testing.T, env *testEnv, names ...string) (*api.Trip, []member) {
	t.Helper()
	ctx := context.Background()

	createResp, err := env.client.CreateTrip(ctx, connect.NewRequest(&api.CreateTripRequest{
		Name:        "Lisbon",
		CreatorName: names[0],
	}))
	if err != nil {
		t.Fatalf("CreateTrip failed: %v", err)
	}

	trip := createResp.Msg.Trip
	members := []member{{id: createResp.Msg.ParticipantID, token: createResp.Msg.Token}}
	for _, name := range names[1:] {
		joinResp, err := env.client.JoinTrip(ctx, connect.NewRequest(&api.JoinTripRequest{
			RoomCode: trip.RoomCode,
			Name:     name,
		}))
		if err != nil {
			t.Fatalf("JoinTrip(%s) failed: %v", name, err)
		}
		trip = joinResp.Msg.Trip
		members = append(members, member{id: joinResp.Msg.Participant.ID, token: joinResp.Msg.Token})
	}
	return trip, members
}

func addExpense(t *testing.T, env *testEnv, tripID, token string, amount float64, paidBy string, split ...string) *api.Expense {
	t.Helper()

	resp, err := env.client.AddExpense(context.Background(), authed(&api.AddExpenseRequest{
		TripID:         tripID,
		Description:    "expense",
		Amount:         amount,
		PaidBy:         paidBy,
		ParticipantIDs: split,
	}, token))
	if err != nil {
		t.Fatalf("AddExpense failed: %v", err)
	}
	return resp.Msg.Expense
}

func TestCreateTrip(t *testing.T) {
	env := setupTestServer(t)

	resp, err := env.client.CreateTrip(context.Background(), connect.NewRequest(&api.CreateTripRequest{
		Name:        "  Lisbon  ",
		Description: "Spring break",
		CreatorName: "Alice",
	}))
	if err != nil {
		t.Fatalf("CreateTrip failed: %v", err)
	}

	trip := resp.Msg.Trip
	if trip.ID == "" {
		t.Error("expected non-empty trip ID")
	}
	if trip.Name != "Lisbon" {
		t.Errorf("name: expected 'Lisbon', got '%s'", trip.Name)
	}
	if len(trip.RoomCode) != 6 {
		t.Errorf("room code: expected 6 characters, got %q", trip.RoomCode)
	}
	if len(trip.Participants) != 1 || trip.Participants[0].Name != "Alice" {
		t.Fatalf("participants: expected only Alice, got %+v", trip.Participants)
	}
	if trip.CreatedBy != resp.Msg.ParticipantID {
		t.Errorf("createdBy: expected %s, got %s", resp.Msg.ParticipantID, trip.CreatedBy)
	}
	if trip.CreatedAt == 0 {
		t.Error("expected non-zero CreatedAt")
	}

	claims, err := env.jwt.Validate(resp.Msg.Token)
	if err != nil {
		t.Fatalf("issued token invalid: %v", err)
	}
	if claims.TripID != trip.ID || claims.ParticipantID != resp.Msg.ParticipantID {
		t.Errorf("claims mismatch: %+v", claims)
	}

	if got := testutil.ToFloat64(env.metrics.TripsCreated); got != 1 {
		t.Errorf("trips_created_total: expected 1, got %v", got)
	}
}

func TestCreateTrip_Validation(t *testing.T) {
	env := setupTestServer(t)

	tests := []struct {
		name string
		req  *api.CreateTripRequest
	}{
		{"missing name", &api.CreateTripRequest{CreatorName: "Alice"}},
		{"blank name", &api.CreateTripRequest{Name: "   ", CreatorName: "Alice"}},
		{"missing creator", &api.CreateTripRequest{Name: "Lisbon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.client.CreateTrip(context.Background(), connect.NewRequest(tt.req))
			assertCode(t, err, connect.CodeInvalidArgument)
		})
	}
}

func TestJoinTrip(t *testing.T) {
	env := setupTestServer(t)
	trip, _ := newTrip(t, env, "Alice")

	resp, err := env.client.JoinTrip(context.Background(), connect.NewRequest(&api.JoinTripRequest{
		RoomCode: " " + strings.ToLower(trip.RoomCode) + " ",
		Name:     "Bob",
	}))
	if err != nil {
		t.Fatalf("JoinTrip failed: %v", err)
	}

	if resp.Msg.Trip.ID != trip.ID {
		t.Errorf("trip: expected %s, got %s", trip.ID, resp.Msg.Trip.ID)
	}
	if len(resp.Msg.Trip.Participants) != 2 {
		t.Fatalf("participants: expected 2, got %d", len(resp.Msg.Trip.Participants))
	}
	if resp.Msg.Trip.Participants[1].ID != resp.Msg.Participant.ID {
		t.Errorf("expected joiner appended last, got %+v", resp.Msg.Trip.Participants)
	}
	if resp.Msg.Token == "" {
		t.Error("expected session token")
	}
}

func TestJoinTrip_Errors(t *testing.T) {
	env := setupTestServer(t)
	trip, _ := newTrip(t, env, "Alice")
	ctx := context.Background()

	_, err := env.client.JoinTrip(ctx, connect.NewRequest(&api.JoinTripRequest{RoomCode: "ABC", Name: "Bob"}))
	assertCode(t, err, connect.CodeInvalidArgument)

	_, err = env.client.JoinTrip(ctx, connect.NewRequest(&api.JoinTripRequest{RoomCode: trip.RoomCode}))
	assertCode(t, err, connect.CodeInvalidArgument)

	unused := "ZZZZZZ"
	if trip.RoomCode == unused {
		unused = "YYYYYY"
	}
	_, err = env.client.JoinTrip(ctx, connect.NewRequest(&api.JoinTripRequest{RoomCode: unused, Name: "Bob"}))
	assertCode(t, err, connect.CodeNotFound)
}

func TestGetTrip_Authorization(t *testing.T) {
	env := setupTestServer(t)
	trip, members := newTrip(t, env, "Alice", "Bob")
	_, outsiders := newTrip(t, env, "Mallory")
	ctx := context.Background()

	t.Run("member", func(t *testing.T) {
		resp, err := env.client.GetTrip(ctx, authed(&api.GetTripRequest{TripID: trip.ID}, members[1].token))
		if err != nil {
			t.Fatalf("GetTrip failed: %v", err)
		}
		if len(resp.Msg.Trip.Participants) != 2 {
			t.Errorf("participants: expected 2, got %d", len(resp.Msg.Trip.Participants))
		}
	})

	t.Run("no token", func(t *testing.T) {
		_, err := env.client.GetTrip(ctx, connect.NewRequest(&api.GetTripRequest{TripID: trip.ID}))
		assertCode(t, err, connect.CodeUnauthenticated)
	})

	t.Run("other trip's token", func(t *testing.T) {
		_, err := env.client.GetTrip(ctx, authed(&api.GetTripRequest{TripID: trip.ID}, outsiders[0].token))
		assertCode(t, err, connect.CodePermissionDenied)
	})

	t.Run("missing trip id", func(t *testing.T) {
		_, err := env.client.GetTrip(ctx, authed(&api.GetTripRequest{}, members[0].token))
		assertCode(t, err, connect.CodeInvalidArgument)
	})

	t.Run("valid token for deleted trip", func(t *testing.T) {
		token, err := env.jwt.Generate("gone", "p-1")
		if err != nil {
			t.Fatal(err)
		}
		_, err = env.client.GetTrip(ctx, authed(&api.GetTripRequest{TripID: "gone"}, token))
		assertCode(t, err, connect.CodeNotFound)
	})
}

func TestAddExpense(t *testing.T) {
	env := setupTestServer(t)
	trip, m := newTrip(t, env, "Alice", "Bob")

	expense := addExpense(t, env, trip.ID, m[1].token, 42.5, m[0].id, m[0].id, m[1].id)
	if expense.ID == "" {
		t.Error("expected non-empty expense ID")
	}
	if expense.Currency != models.DefaultCurrency {
		t.Errorf("currency: expected %s, got %s", models.DefaultCurrency, expense.Currency)
	}
	if expense.Date == 0 {
		t.Error("expected date to default to now")
	}

	resp, err := env.client.GetTrip(context.Background(), authed(&api.GetTripRequest{TripID: trip.ID}, m[0].token))
	if err != nil {
		t.Fatalf("GetTrip failed: %v", err)
	}
	if len(resp.Msg.Trip.Expenses) != 1 || resp.Msg.Trip.Expenses[0].ID != expense.ID {
		t.Errorf("expenses: expected the added one, got %+v", resp.Msg.Trip.Expenses)
	}
	if got := testutil.ToFloat64(env.metrics.ExpensesAdded); got != 1 {
		t.Errorf("expenses_added_total: expected 1, got %v", got)
	}
}

func TestAddExpense_Validation(t *testing.T) {
	env := setupTestServer(t)
	trip, m := newTrip(t, env, "Alice", "Bob")
	alice, bob := m[0].id, m[1].id

	tests := []struct {
		name string
		req  *api.AddExpenseRequest
	}{
		{"zero amount", &api.AddExpenseRequest{Amount: 0, PaidBy: alice, ParticipantIDs: []string{bob}}},
		{"negative amount", &api.AddExpenseRequest{Amount: -5, PaidBy: alice, ParticipantIDs: []string{bob}}},
		{"missing payer", &api.AddExpenseRequest{Amount: 5, ParticipantIDs: []string{bob}}},
		{"no splitters", &api.AddExpenseRequest{Amount: 5, PaidBy: alice}},
		{"unknown payer", &api.AddExpenseRequest{Amount: 5, PaidBy: "ghost", ParticipantIDs: []string{bob}}},
		{"unknown splitter", &api.AddExpenseRequest{Amount: 5, PaidBy: alice, ParticipantIDs: []string{bob, "ghost"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.TripID = trip.ID
			_, err := env.client.AddExpense(context.Background(), authed(tt.req, m[0].token))
			assertCode(t, err, connect.CodeInvalidArgument)
		})
	}
}

func TestDeleteExpense(t *testing.T) {
	env := setupTestServer(t)
	trip, m := newTrip(t, env, "Alice")
	ctx := context.Background()

	expense := addExpense(t, env, trip.ID, m[0].token, 10, m[0].id, m[0].id)

	_, err := env.client.DeleteExpense(ctx, authed(&api.DeleteExpenseRequest{TripID: trip.ID, ExpenseID: expense.ID}, m[0].token))
	if err != nil {
		t.Fatalf("DeleteExpense failed: %v", err)
	}

	_, err = env.client.DeleteExpense(ctx, authed(&api.DeleteExpenseRequest{TripID: trip.ID, ExpenseID: expense.ID}, m[0].token))
	assertCode(t, err, connect.CodeNotFound)

	_, err = env.client.DeleteExpense(ctx, authed(&api.DeleteExpenseRequest{TripID: trip.ID}, m[0].token))
	assertCode(t, err, connect.CodeInvalidArgument)
}

func TestRemoveParticipant(t *testing.T) {
	env := setupTestServer(t)
	trip, m := newTrip(t, env, "Alice", "Bob", "Carol")
	alice, bob, carol := m[0].id, m[1].id, m[2].id
	ctx := context.Background()

	shared := addExpense(t, env, trip.ID, m[0].token, 30, alice, alice, bob, carol)
	addExpense(t, env, trip.ID, m[1].token, 8, bob, bob)

	resp, err := env.client.RemoveParticipant(ctx, authed(&api.RemoveParticipantRequest{TripID: trip.ID, ParticipantID: bob}, m[0].token))
	if err != nil {
		t.Fatalf("RemoveParticipant failed: %v", err)
	}

	got := resp.Msg.Trip
	if len(got.Participants) != 2 {
		t.Errorf("participants: expected 2, got %d", len(got.Participants))
	}
	if len(got.Expenses) != 1 || got.Expenses[0].ID != shared.ID {
		t.Fatalf("expenses: expected only the shared one, got %+v", got.Expenses)
	}
	if ids := got.Expenses[0].ParticipantIDs; len(ids) != 2 || ids[0] != alice || ids[1] != carol {
		t.Errorf("split: expected [alice carol], got %v", ids)
	}

	// Bob's session no longer grants access.
	_, err = env.client.GetTrip(ctx, authed(&api.GetTripRequest{TripID: trip.ID}, m[1].token))
	assertCode(t, err, connect.CodePermissionDenied)

	_, err = env.client.RemoveParticipant(ctx, authed(&api.RemoveParticipantRequest{TripID: trip.ID, ParticipantID: bob}, m[0].token))
	assertCode(t, err, connect.CodeNotFound)
}

func TestGetBalances(t *testing.T) {
	env := setupTestServer(t)
	trip, m := newTrip(t, env, "Alice", "Bob", "Carol")
	alice, bob, carol := m[0].id, m[1].id, m[2].id

	addExpense(t, env, trip.ID, m[0].token, 90, alice, alice, bob, carol)
	addExpense(t, env, trip.ID, m[1].token, 20, bob, alice, bob)

	resp, err := env.client.GetBalances(context.Background(), authed(&api.GetBalancesRequest{TripID: trip.ID}, m[2].token))
	if err != nil {
		t.Fatalf("GetBalances failed: %v", err)
	}

	summary := resp.Msg.Summary
	want := map[string]float64{alice: 50, bob: -20, carol: -30}
	if len(summary.Balances) != 3 {
		t.Fatalf("balances: expected 3, got %d", len(summary.Balances))
	}
	for _, b := range summary.Balances {
		if math.Abs(b.NetBalance-want[b.ParticipantID]) > 1e-9 {
			t.Errorf("%s net: expected %v, got %v", b.ParticipantName, want[b.ParticipantID], b.NetBalance)
		}
	}

	if len(summary.Settlements) != 2 {
		t.Fatalf("settlements: expected 2, got %+v", summary.Settlements)
	}
	first := summary.Settlements[0]
	if first.FromID != carol || first.ToID != alice || first.Amount != 30 {
		t.Errorf("first settlement: expected Carol->Alice 30, got %+v", first)
	}
	second := summary.Settlements[1]
	if second.FromID != bob || second.ToID != alice || second.Amount != 20 {
		t.Errorf("second settlement: expected Bob->Alice 20, got %+v", second)
	}

	if len(summary.CombinationBalances) != 2 {
		t.Fatalf("combinations: expected 2, got %d", len(summary.CombinationBalances))
	}
	if summary.CombinationBalances[0].TotalAmount != 90 {
		t.Errorf("largest combination: expected 90, got %v", summary.CombinationBalances[0].TotalAmount)
	}

	if got := testutil.CollectAndCount(env.metrics.Settlements); got != 1 {
		t.Errorf("settlement histogram: expected 1 series, got %d", got)
	}
}

func TestGetBalances_EmptyTrip(t *testing.T) {
	env := setupTestServer(t)
	trip, m := newTrip(t, env, "Alice")

	resp, err := env.client.GetBalances(context.Background(), authed(&api.GetBalancesRequest{TripID: trip.ID}, m[0].token))
	if err != nil {
		t.Fatalf("GetBalances failed: %v", err)
	}
	if resp.Msg.Summary.Settlements == nil {
		t.Error("expected empty, non-nil settlements")
	}
	if len(resp.Msg.Summary.Balances) != 1 || resp.Msg.Summary.Balances[0].NetBalance != 0 {
		t.Errorf("balances: expected one zero balance, got %+v", resp.Msg.Summary.Balances)
	}
}

func TestGetBalances_OrphanedExpense(t *testing.T) {
	env := setupTestServer(t)
	trip, m := newTrip(t, env, "Alice", "Bob")
	alice, bob := m[0].id, m[1].id
	ctx := context.Background()

	// Alice paid for something only Bob used; removing Bob leaves it unsplit.
	orphan := addExpense(t, env, trip.ID, m[0].token, 15, alice, bob)
	if _, err := env.client.RemoveParticipant(ctx, authed(&api.RemoveParticipantRequest{TripID: trip.ID, ParticipantID: bob}, m[0].token)); err != nil {
		t.Fatalf("RemoveParticipant failed: %v", err)
	}

	_, err := env.client.GetBalances(ctx, authed(&api.GetBalancesRequest{TripID: trip.ID}, m[0].token))
	assertCode(t, err, connect.CodeFailedPrecondition)

	if _, err := env.client.DeleteExpense(ctx, authed(&api.DeleteExpenseRequest{TripID: trip.ID, ExpenseID: orphan.ID}, m[0].token)); err != nil {
		t.Fatalf("DeleteExpense failed: %v", err)
	}
	if _, err := env.client.GetBalances(ctx, authed(&api.GetBalancesRequest{TripID: trip.ID}, m[0].token)); err != nil {
		t.Errorf("GetBalances after cleanup failed: %v", err)
	}
}
