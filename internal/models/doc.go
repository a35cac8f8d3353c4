// Package models defines the core domain models for tripsplit.
//
// A Trip is the aggregate everything hangs off: it owns its participants and
// its expenses, and is persisted as a unit by the storage layer. Balances and
// settlements are never stored here; they are derived on demand by the
// calculator package from a Trip snapshot.
//
// Relationships between models use ID strings rather than pointers, so a Trip
// can be copied and serialized freely.
package models
