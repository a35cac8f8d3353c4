// Package apiconnect wires the api messages to Connect handlers and clients
// for tripsplit.v1.TripService.
package apiconnect

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/tripsplit/pkg/api"
)

// TripServiceName is the fully-qualified name of the TripService service.
const TripServiceName = "tripsplit.v1.TripService"

// Procedure paths, as they appear in URLs and in connect.Spec.Procedure.
const (
	TripServiceCreateTripProcedure        = "/tripsplit.v1.TripService/CreateTrip"
	TripServiceJoinTripProcedure          = "/tripsplit.v1.TripService/JoinTrip"
	TripServiceGetTripProcedure           = "/tripsplit.v1.TripService/GetTrip"
	TripServiceRemoveParticipantProcedure = "/tripsplit.v1.TripService/RemoveParticipant"
	TripServiceAddExpenseProcedure        = "/tripsplit.v1.TripService/AddExpense"
	TripServiceDeleteExpenseProcedure     = "/tripsplit.v1.TripService/DeleteExpense"
	TripServiceGetBalancesProcedure       = "/tripsplit.v1.TripService/GetBalances"
)

// PublicProcedures need no session: they are how a caller obtains one.
var PublicProcedures = []string{
	TripServiceCreateTripProcedure,
	TripServiceJoinTripProcedure,
}

// TripServiceClient is a client for the tripsplit.v1.TripService service.
type TripServiceClient interface {
	CreateTrip(context.Context, *connect.Request[api.CreateTripRequest]) (*connect.Response[api.CreateTripResponse], error)
	JoinTrip(context.Context, *connect.Request[api.JoinTripRequest]) (*connect.Response[api.JoinTripResponse], error)
	GetTrip(context.Context, *connect.Request[api.GetTripRequest]) (*connect.Response[api.GetTripResponse], error)
	RemoveParticipant(context.Context, *connect.Request[api.RemoveParticipantRequest]) (*connect.Response[api.RemoveParticipantResponse], error)
	AddExpense(context.Context, *connect.Request[api.AddExpenseRequest]) (*connect.Response[api.AddExpenseResponse], error)
	DeleteExpense(context.Context, *connect.Request[api.DeleteExpenseRequest]) (*connect.Response[api.DeleteExpenseResponse], error)
	GetBalances(context.Context, *connect.Request[api.GetBalancesRequest]) (*connect.Response[api.GetBalancesResponse], error)
}

// NewTripServiceClient constructs a client for the tripsplit.v1.TripService
// service. Requests use the api JSON codec; baseURL is the server root, for
// example http://localhost:8080.
func NewTripServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) TripServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(api.Codec{})}, opts...)
	return &tripServiceClient{
		createTrip:        connect.NewClient[api.CreateTripRequest, api.CreateTripResponse](httpClient, baseURL+TripServiceCreateTripProcedure, opts...),
		joinTrip:          connect.NewClient[api.JoinTripRequest, api.JoinTripResponse](httpClient, baseURL+TripServiceJoinTripProcedure, opts...),
		getTrip:           connect.NewClient[api.GetTripRequest, api.GetTripResponse](httpClient, baseURL+TripServiceGetTripProcedure, opts...),
		removeParticipant: connect.NewClient[api.RemoveParticipantRequest, api.RemoveParticipantResponse](httpClient, baseURL+TripServiceRemoveParticipantProcedure, opts...),
		addExpense:        connect.NewClient[api.AddExpenseRequest, api.AddExpenseResponse](httpClient, baseURL+TripServiceAddExpenseProcedure, opts...),
		deleteExpense:     connect.NewClient[api.DeleteExpenseRequest, api.DeleteExpenseResponse](httpClient, baseURL+TripServiceDeleteExpenseProcedure, opts...),
		getBalances:       connect.NewClient[api.GetBalancesRequest, api.GetBalancesResponse](httpClient, baseURL+TripServiceGetBalancesProcedure, opts...),
	}
}

type tripServiceClient struct {
	createTrip        *connect.Client[api.CreateTripRequest, api.CreateTripResponse]
	joinTrip          *connect.Client[api.JoinTripRequest, api.JoinTripResponse]
	getTrip           *connect.Client[api.GetTripRequest, api.GetTripResponse]
	removeParticipant *connect.Client[api.RemoveParticipantRequest, api.RemoveParticipantResponse]
	addExpense        *connect.Client[api.AddExpenseRequest, api.AddExpenseResponse]
	deleteExpense     *connect.Client[api.DeleteExpenseRequest, api.DeleteExpenseResponse]
	getBalances       *connect.Client[api.GetBalancesRequest, api.GetBalancesResponse]
}

func (c *tripServiceClient) CreateTrip(ctx context.Context, req *connect.Request[api.CreateTripRequest]) (*connect.Response[api.CreateTripResponse], error) {
	return c.createTrip.CallUnary(ctx, req)
}

func (c *tripServiceClient) JoinTrip(ctx context.Context, req *connect.Request[api.JoinTripRequest]) (*connect.Response[api.JoinTripResponse], error) {
	return c.joinTrip.CallUnary(ctx, req)
}

func (c *tripServiceClient) GetTrip(ctx context.Context, req *connect.Request[api.GetTripRequest]) (*connect.Response[api.GetTripResponse], error) {
	return c.getTrip.CallUnary(ctx, req)
}

func (c *tripServiceClient) RemoveParticipant(ctx context.Context, req *connect.Request[api.RemoveParticipantRequest]) (*connect.Response[api.RemoveParticipantResponse], error) {
	return c.removeParticipant.CallUnary(ctx, req)
}

func (c *tripServiceClient) AddExpense(ctx context.Context, req *connect.Request[api.AddExpenseRequest]) (*connect.Response[api.AddExpenseResponse], error) {
	return c.addExpense.CallUnary(ctx, req)
}

func (c *tripServiceClient) DeleteExpense(ctx context.Context, req *connect.Request[api.DeleteExpenseRequest]) (*connect.Response[api.DeleteExpenseResponse], error) {
	return c.deleteExpense.CallUnary(ctx, req)
}

func (c *tripServiceClient) GetBalances(ctx context.Context, req *connect.Request[api.GetBalancesRequest]) (*connect.Response[api.GetBalancesResponse], error) {
	return c.getBalances.CallUnary(ctx, req)
}

// TripServiceHandler is implemented by the server side of
// tripsplit.v1.TripService.
type TripServiceHandler interface {
	CreateTrip(context.Context, *connect.Request[api.CreateTripRequest]) (*connect.Response[api.CreateTripResponse], error)
	JoinTrip(context.Context, *connect.Request[api.JoinTripRequest]) (*connect.Response[api.JoinTripResponse], error)
	GetTrip(context.Context, *connect.Request[api.GetTripRequest]) (*connect.Response[api.GetTripResponse], error)
	RemoveParticipant(context.Context, *connect.Request[api.RemoveParticipantRequest]) (*connect.Response[api.RemoveParticipantResponse], error)
	AddExpense(context.Context, *connect.Request[api.AddExpenseRequest]) (*connect.Response[api.AddExpenseResponse], error)
	DeleteExpense(context.Context, *connect.Request[api.DeleteExpenseRequest]) (*connect.Response[api.DeleteExpenseResponse], error)
	GetBalances(context.Context, *connect.Request[api.GetBalancesRequest]) (*connect.Response[api.GetBalancesResponse], error)
}

// NewTripServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewTripServiceHandler(svc TripServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(api.Codec{})}, opts...)

	handlers := map[string]http.Handler{
		TripServiceCreateTripProcedure:        connect.NewUnaryHandler(TripServiceCreateTripProcedure, svc.CreateTrip, opts...),
		TripServiceJoinTripProcedure:          connect.NewUnaryHandler(TripServiceJoinTripProcedure, svc.JoinTrip, opts...),
		TripServiceGetTripProcedure:           connect.NewUnaryHandler(TripServiceGetTripProcedure, svc.GetTrip, opts...),
		TripServiceRemoveParticipantProcedure: connect.NewUnaryHandler(TripServiceRemoveParticipantProcedure, svc.RemoveParticipant, opts...),
		TripServiceAddExpenseProcedure:        connect.NewUnaryHandler(TripServiceAddExpenseProcedure, svc.AddExpense, opts...),
		TripServiceDeleteExpenseProcedure:     connect.NewUnaryHandler(TripServiceDeleteExpenseProcedure, svc.DeleteExpense, opts...),
		TripServiceGetBalancesProcedure:       connect.NewUnaryHandler(TripServiceGetBalancesProcedure, svc.GetBalances, opts...),
	}

	return "/" + TripServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// UnimplementedTripServiceHandler returns CodeUnimplemented from all methods.
type UnimplementedTripServiceHandler struct{}

var errUnimplemented = errors.New("not implemented")

func unimplemented(procedure string) error {
	return connect.NewError(connect.CodeUnimplemented, errors.Join(errUnimplemented, errors.New(procedure)))
}

func (UnimplementedTripServiceHandler) CreateTrip(context.Context, *connect.Request[api.CreateTripRequest]) (*connect.Response[api.CreateTripResponse], error) {
	return nil, unimplemented(TripServiceCreateTripProcedure)
}

func (UnimplementedTripServiceHandler) JoinTrip(context.Context, *connect.Request[api.JoinTripRequest]) (*connect.Response[api.JoinTripResponse], error) {
	return nil, unimplemented(TripServiceJoinTripProcedure)
}

func (UnimplementedTripServiceHandler) GetTrip(context.Context, *connect.Request[api.GetTripRequest]) (*connect.Response[api.GetTripResponse], error) {
	return nil, unimplemented(TripServiceGetTripProcedure)
}

func (UnimplementedTripServiceHandler) RemoveParticipant(context.Context, *connect.Request[api.RemoveParticipantRequest]) (*connect.Response[api.RemoveParticipantResponse], error) {
	return nil, unimplemented(TripServiceRemoveParticipantProcedure)
}

func (UnimplementedTripServiceHandler) AddExpense(context.Context, *connect.Request[api.AddExpenseRequest]) (*connect.Response[api.AddExpenseResponse], error) {
	return nil, unimplemented(TripServiceAddExpenseProcedure)
}

func (UnimplementedTripServiceHandler) DeleteExpense(context.Context, *connect.Request[api.DeleteExpenseRequest]) (*connect.Response[api.DeleteExpenseResponse], error) {
	return nil, unimplemented(TripServiceDeleteExpenseProcedure)
}

func (UnimplementedTripServiceHandler) GetBalances(context.Context, *connect.Request[api.GetBalancesRequest]) (*connect.Response[api.GetBalancesResponse], error) {
	return nil, unimplemented(TripServiceGetBalancesProcedure)
}
