package middleware

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/tripsplit/internal/auth"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// TripIDKey is the context key for the trip the session belongs to.
	TripIDKey contextKey = "trip_id"
	// ParticipantIDKey is the context key for the calling participant.
	ParticipantIDKey contextKey = "participant_id"
)

// GetTripID extracts the session trip ID from the context.
// Returns empty string if not found.
func GetTripID(ctx context.Context) string {
	tripID, _ := ctx.Value(TripIDKey).(string)
	return tripID
}

// GetParticipantID extracts the session participant ID from the context.
// Returns empty string if not found.
func GetParticipantID(ctx context.Context) string {
	participantID, _ := ctx.Value(ParticipantIDKey).(string)
	return participantID
}

// WithSession returns a copy of ctx carrying the given session.
func WithSession(ctx context.Context, tripID, participantID string) context.Context {
	ctx = context.WithValue(ctx, TripIDKey, tripID)
	return context.WithValue(ctx, ParticipantIDKey, participantID)
}

// RequireSession returns an interceptor that validates the bearer token and
// puts the session's trip and participant into the request context.
// Procedures listed in public skip the check; they are how sessions start.
func RequireSession(jwtManager *auth.JWTManager, public ...string) connect.UnaryInterceptorFunc {
	open := make(map[string]bool, len(public))
	for _, procedure := range public {
		open[procedure] = true
	}

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if open[req.Spec().Procedure] {
				return next(ctx, req)
			}

			authHeader := req.Header().Get("Authorization")
			if authHeader == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidToken)
			}

			claims, err := jwtManager.Validate(token)
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}

			return next(WithSession(ctx, claims.TripID, claims.ParticipantID), req)
		}
	}
}
