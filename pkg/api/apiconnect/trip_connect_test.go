package apiconnect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/tripsplit/pkg/api"
)

type echoTrips struct {
	UnimplementedTripServiceHandler
}

func (echoTrips) GetTrip(_ context.Context, req *connect.Request[api.GetTripRequest]) (*connect.Response[api.GetTripResponse], error) {
	return connect.NewResponse(&api.GetTripResponse{Trip: &api.Trip{ID: req.Msg.TripID, Name: "echo"}}), nil
}

func newTestClient(t *testing.T) TripServiceClient {
	t.Helper()

	path, handler := NewTripServiceHandler(echoTrips{})
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return NewTripServiceClient(http.DefaultClient, server.URL+"/")
}

func TestTripServiceRoundTrip(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.GetTrip(context.Background(), connect.NewRequest(&api.GetTripRequest{TripID: "trip-1"}))
	require.NoError(t, err)
	require.NotNil(t, resp.Msg.Trip)
	assert.Equal(t, "trip-1", resp.Msg.Trip.ID)
	assert.Equal(t, "echo", resp.Msg.Trip.Name)
}

func TestTripServiceUnimplemented(t *testing.T) {
	client := newTestClient(t)

	_, err := client.GetBalances(context.Background(), connect.NewRequest(&api.GetBalancesRequest{TripID: "trip-1"}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnimplemented, connect.CodeOf(err))
}

func TestTripServiceUnknownPath(t *testing.T) {
	path, handler := NewTripServiceHandler(echoTrips{})
	assert.Equal(t, "/tripsplit.v1.TripService/", path)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tripsplit.v1.TripService/Nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
