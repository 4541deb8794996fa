// Package ledger is the authoritative mapping of computer time slots
// to library members. It owns reservation lifecycle: create, cancel
// and the expiry sweep. Slot legality comes from the schedule package
// and durability from the injected storage; the ledger itself reads
// no clock, every temporal check receives now from the caller.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"reserved/internal/models"
	"reserved/internal/schedule"
	"reserved/internal/storage"
)

// MaxActiveReservations is the quota of concurrent non-expired
// reservations one member may hold. The fourth attempt is rejected.
const MaxActiveReservations = 3

var (
	ErrInvalidFormat = errors.New("time slot must match MM/DD/YY HH:00")
	ErrClosed        = errors.New("the library is closed at that time")
	ErrPastSlot      = errors.New("time slot is in the past")
	ErrQuotaExceeded = errors.New("member already holds the maximum number of reservations")
	ErrSlotTaken     = errors.New("time slot is already reserved")
	ErrNotFound      = errors.New("no such reservation for this member")
)

type Ledger struct {
	db     storage.Storage
	logger *zap.Logger
}

func New(db storage.Storage, logger *zap.Logger) *Ledger {
	return &Ledger{db: db, logger: logger}
}

// Reserve validates slotText against the schedule policy and the
// member's quota, then atomically binds the slot. Checks run in a
// fixed order: format, past, open hours, quota, exclusivity. A lost
// race surfaces as ErrSlotTaken; it is never retried here.
func (l *Ledger) Reserve(ctx context.Context, cardNumber, slotText string, now time.Time) (models.Reservation, error) {
	slot, err := schedule.ParseSlot(slotText)
	if err != nil {
		return models.Reservation{}, ErrInvalidFormat
	}
	if schedule.IsPast(slot, now) {
		return models.Reservation{}, ErrPastSlot
	}
	if !schedule.IsOpen(slot) {
		return models.Reservation{}, ErrClosed
	}

	active, err := l.db.CountActiveReservations(ctx, cardNumber, now)
	if err != nil {
		return models.Reservation{}, fmt.Errorf("failed to count active reservations: %w", err)
	}
	if active >= MaxActiveReservations {
		return models.Reservation{}, ErrQuotaExceeded
	}

	if err := l.db.InsertReservation(ctx, slot, cardNumber, now); err != nil {
		if errors.Is(err, storage.ErrSlotExists) {
			return models.Reservation{}, ErrSlotTaken
		}
		return models.Reservation{}, fmt.Errorf("failed to insert reservation: %w", err)
	}

	l.logger.Info("reservation created",
		zap.String("card_number", cardNumber),
		zap.String("time_slot", schedule.FormatSlot(slot)),
	)
	return models.Reservation{Slot: slot, CardNumber: cardNumber, CreatedAt: now}, nil
}

// Cancel removes the member's binding for slotText. Cancelling a slot
// that does not exist or that another member owns fails with
// ErrNotFound and changes nothing.
func (l *Ledger) Cancel(ctx context.Context, cardNumber, slotText string) error {
	slot, err := schedule.ParseSlot(slotText)
	if err != nil {
		return ErrInvalidFormat
	}

	removed, err := l.db.DeleteReservation(ctx, slot, cardNumber)
	if err != nil {
		return fmt.Errorf("failed to delete reservation: %w", err)
	}
	if !removed {
		return ErrNotFound
	}

	l.logger.Info("reservation cancelled",
		zap.String("card_number", cardNumber),
		zap.String("time_slot", schedule.FormatSlot(slot)),
	)
	return nil
}

// ListReservations returns the member's non-expired slots in
// chronological order. The result is empty, never nil, when the
// member holds nothing.
func (l *Ledger) ListReservations(ctx context.Context, cardNumber string, now time.Time) ([]time.Time, error) {
	reservations, err := l.db.ListMemberReservations(ctx, cardNumber, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}

	slots := make([]time.Time, 0, len(reservations))
	for _, res := range reservations {
		slots = append(slots, res.Slot)
	}
	return slots, nil
}

// ExpirePast removes every reservation whose slot is strictly before
// now and returns the number removed. Running it twice with the same
// now removes nothing the second time.
func (l *Ledger) ExpirePast(ctx context.Context, now time.Time) (int, error) {
	removed, err := l.db.DeleteExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire reservations: %w", err)
	}
	if removed > 0 {
		l.logger.Info("expired reservations removed", zap.Int("count", removed))
	}
	return removed, nil
}
