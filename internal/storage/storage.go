package storage

import (
	"context"
	"errors"
	"time"

	"reserved/internal/models"
)

// Errors shared by all Storage implementations. Callers branch on
// these with errors.Is; anything else is an opaque store failure.
var (
	ErrMemberExists  = errors.New("member already exists")
	ErrMemberUnknown = errors.New("member not found")
	ErrSlotExists    = errors.New("time slot already reserved")
)

// Storage defines the interface for the durable reservation store
type Storage interface {
	// Member operations
	CreateMember(ctx context.Context, cardNumber, credential string) error
	GetMember(ctx context.Context, cardNumber string) (models.Member, error)

	// Reservation operations

	// InsertReservation binds slot to cardNumber. It fails with
	// ErrSlotExists when any member already holds the slot; two
	// concurrent calls for the same slot result in exactly one
	// surviving binding.
	InsertReservation(ctx context.Context, slot time.Time, cardNumber string, createdAt time.Time) error

	// GetReservation returns the binding for slot; found is false when
	// the slot is unbound.
	GetReservation(ctx context.Context, slot time.Time) (models.Reservation, bool, error)

	// DeleteReservation removes the binding only when it is owned by
	// cardNumber, and reports whether a row was removed.
	DeleteReservation(ctx context.Context, slot time.Time, cardNumber string) (bool, error)

	// ListMemberReservations returns the member's reservations with
	// slots at or after from, chronologically ascending.
	ListMemberReservations(ctx context.Context, cardNumber string, from time.Time) ([]models.Reservation, error)

	// CountActiveReservations counts the member's reservations whose
	// slot has not yet passed.
	CountActiveReservations(ctx context.Context, cardNumber string, now time.Time) (int, error)

	// DeleteExpired removes every reservation whose slot is strictly
	// before now and returns the number removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}
