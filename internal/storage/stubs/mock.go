package stubs

import (
	"context"
	"sort"
	"sync"
	"time"

	"reserved/internal/models"
	"reserved/internal/storage"
)

// MockDB is an in-memory implementation of the Storage interface for
// tests and local development. The write lock makes the conditional
// insert in InsertReservation atomic, matching the exclusivity the
// durable store provides.
type MockDB struct {
	mu           sync.RWMutex
	members      map[string]models.Member
	reservations map[int64]models.Reservation // keyed by slot unix seconds
}

// NewMockDB creates a new in-memory store
func NewMockDB() *MockDB {
	return &MockDB{
		members:      make(map[string]models.Member),
		reservations: make(map[int64]models.Reservation),
	}
}

// Initialize does nothing; the maps are ready on construction
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// CreateMember registers a member, failing if the card number is taken
func (m *MockDB) CreateMember(ctx context.Context, cardNumber, credential string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.members[cardNumber]; exists {
		return storage.ErrMemberExists
	}
	m.members[cardNumber] = models.Member{
		CardNumber: cardNumber,
		Credential: credential,
	}
	return nil
}

// GetMember looks up a member by card number
func (m *MockDB) GetMember(ctx context.Context, cardNumber string) (models.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	member, exists := m.members[cardNumber]
	if !exists {
		return models.Member{}, storage.ErrMemberUnknown
	}
	return member, nil
}

// InsertReservation binds slot to cardNumber unless the slot is taken
func (m *MockDB) InsertReservation(ctx context.Context, slot time.Time, cardNumber string, createdAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := slot.Unix()
	if _, taken := m.reservations[key]; taken {
		return storage.ErrSlotExists
	}
	m.reservations[key] = models.Reservation{
		Slot:       slot,
		CardNumber: cardNumber,
		CreatedAt:  createdAt,
	}
	return nil
}

// GetReservation returns the binding for slot, if any
func (m *MockDB) GetReservation(ctx context.Context, slot time.Time) (models.Reservation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res, found := m.reservations[slot.Unix()]
	return res, found, nil
}

// DeleteReservation removes the binding if cardNumber owns it
func (m *MockDB) DeleteReservation(ctx context.Context, slot time.Time, cardNumber string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := slot.Unix()
	res, found := m.reservations[key]
	if !found || res.CardNumber != cardNumber {
		return false, nil
	}
	delete(m.reservations, key)
	return true, nil
}

// ListMemberReservations returns the member's upcoming reservations,
// chronologically ascending
func (m *MockDB) ListMemberReservations(ctx context.Context, cardNumber string, from time.Time) ([]models.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Reservation
	for _, res := range m.reservations {
		if res.CardNumber == cardNumber && !res.Slot.Before(from) {
			out = append(out, res)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Slot.Before(out[j].Slot)
	})

	return out, nil
}

// CountActiveReservations counts the member's reservations whose slot
// has not yet passed
func (m *MockDB) CountActiveReservations(ctx context.Context, cardNumber string, now time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, res := range m.reservations {
		if res.CardNumber == cardNumber && !res.Slot.Before(now) {
			count++
		}
	}
	return count, nil
}

// DeleteExpired removes reservations with slots strictly before now
func (m *MockDB) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, res := range m.reservations {
		if res.Slot.Before(now) {
			delete(m.reservations, key)
			removed++
		}
	}
	return removed, nil
}

// Close does nothing for the in-memory store
func (m *MockDB) Close() error {
	return nil
}
