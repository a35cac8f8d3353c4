// Package api defines the wire messages of tripsplit.v1.TripService.
// Timestamps are Unix milliseconds.
package api

// Participant is a member of a trip.
type Participant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt"`
}

// Expense is a payment made by one participant and split equally between
// the listed participants.
type Expense struct {
	ID             string   `json:"id"`
	TripID         string   `json:"tripId"`
	Description    string   `json:"description"`
	Amount         float64  `json:"amount"`
	Currency       string   `json:"currency"`
	PaidBy         string   `json:"paidBy"`
	ParticipantIDs []string `json:"participantIds"`
	Date           int64    `json:"date"`
	CreatedAt      int64    `json:"createdAt"`
}

type Trip struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	RoomCode     string        `json:"roomCode"`
	CreatedBy    string        `json:"createdBy"`
	Participants []Participant `json:"participants"`
	Expenses     []Expense     `json:"expenses"`
	CreatedAt    int64         `json:"createdAt"`
	UpdatedAt    int64         `json:"updatedAt"`
}

type Balance struct {
	ParticipantID   string  `json:"participantId"`
	ParticipantName string  `json:"participantName"`
	TotalPaid       float64 `json:"totalPaid"`
	TotalOwed       float64 `json:"totalOwed"`
	NetBalance      float64 `json:"netBalance"`
}

// Settlement is one payment that moves a debtor towards zero.
type Settlement struct {
	FromID   string  `json:"fromId"`
	FromName string  `json:"fromName"`
	ToID     string  `json:"toId"`
	ToName   string  `json:"toName"`
	Amount   float64 `json:"amount"`
}

// CombinationGroup holds the expenses shared by exactly one set of
// participants, with balances and settlements computed inside that set.
type CombinationGroup struct {
	ParticipantIDs   []string     `json:"participantIds"`
	ParticipantNames []string     `json:"participantNames"`
	Expenses         []Expense    `json:"expenses"`
	Balances         []Balance    `json:"balances"`
	Settlements      []Settlement `json:"settlements"`
	TotalAmount      float64      `json:"totalAmount"`
}

type BalanceSummary struct {
	Balances            []Balance          `json:"balances"`
	Settlements         []Settlement       `json:"settlements"`
	CombinationBalances []CombinationGroup `json:"combinationBalances"`
}

type CreateTripRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatorName string `json:"creatorName"`
}

type CreateTripResponse struct {
	Trip          *Trip  `json:"trip"`
	ParticipantID string `json:"participantId"`
	Token         string `json:"token"`
}

type JoinTripRequest struct {
	RoomCode string `json:"roomCode"`
	Name     string `json:"name"`
}

type JoinTripResponse struct {
	Trip        *Trip        `json:"trip"`
	Participant *Participant `json:"participant"`
	Token       string       `json:"token"`
}

type GetTripRequest struct {
	TripID string `json:"tripId"`
}

type GetTripResponse struct {
	Trip *Trip `json:"trip"`
}

// RemoveParticipantRequest removes a participant from a trip. A participant
// removing themselves is leaving the trip.
type RemoveParticipantRequest struct {
	TripID        string `json:"tripId"`
	ParticipantID string `json:"participantId"`
}

type RemoveParticipantResponse struct {
	Trip *Trip `json:"trip"`
}

type AddExpenseRequest struct {
	TripID         string   `json:"tripId"`
	Description    string   `json:"description"`
	Amount         float64  `json:"amount"`
	Currency       string   `json:"currency,omitempty"`
	PaidBy         string   `json:"paidBy"`
	ParticipantIDs []string `json:"participantIds"`
	// Date defaults to now when zero.
	Date int64 `json:"date,omitempty"`
}

type AddExpenseResponse struct {
	Expense *Expense `json:"expense"`
}

type DeleteExpenseRequest struct {
	TripID    string `json:"tripId"`
	ExpenseID string `json:"expenseId"`
}

type DeleteExpenseResponse struct{}

type GetBalancesRequest struct {
	TripID string `json:"tripId"`
}

type GetBalancesResponse struct {
	Summary *BalanceSummary `json:"summary"`
}
