package ch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"reserved/internal/models"
	"reserved/internal/storage"
)

type ClickHouseDB struct {
	conn clickhouse.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(host string, port int, database, user, password string, useTLS bool) (*ClickHouseDB, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	}

	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Initialize is a no-op - tables are managed via migrations
func (db *ClickHouseDB) Initialize(ctx context.Context) error {
	return nil
}

// CreateMember registers a member, failing if the card number is taken
func (db *ClickHouseDB) CreateMember(ctx context.Context, cardNumber, credential string) error {
	_, err := db.GetMember(ctx, cardNumber)
	if err == nil {
		return storage.ErrMemberExists
	}
	if !errors.Is(err, storage.ErrMemberUnknown) {
		return err
	}

	err = db.conn.Exec(ctx, `
		INSERT INTO members (library_card_number, credential)
		SELECT ?, ? FROM system.one
		WHERE NOT EXISTS (SELECT 1 FROM members WHERE library_card_number = ?)`,
		cardNumber, credential, cardNumber)
	if err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

// GetMember looks up a member by card number
func (db *ClickHouseDB) GetMember(ctx context.Context, cardNumber string) (models.Member, error) {
	rows, err := db.conn.Query(ctx, `
		SELECT library_card_number, credential FROM members
		WHERE library_card_number = ? LIMIT 1`, cardNumber)
	if err != nil {
		return models.Member{}, fmt.Errorf("failed to get member: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return models.Member{}, storage.ErrMemberUnknown
	}
	var member models.Member
	if err := rows.Scan(&member.CardNumber, &member.Credential); err != nil {
		return models.Member{}, fmt.Errorf("failed to scan member: %w", err)
	}
	return member, nil
}

// InsertReservation binds slot to cardNumber unless the slot is taken.
//
// MergeTree has no unique constraint, so exclusivity is first-writer-
// wins: a conditional insert narrows the race window, then the writer
// re-reads the slot's winning row. A loser deletes its own row and
// reports the slot as taken, so concurrent writers converge on exactly
// one surviving binding.
func (db *ClickHouseDB) InsertReservation(ctx context.Context, slot time.Time, cardNumber string, createdAt time.Time) error {
	err := db.conn.Exec(ctx, `
		INSERT INTO reservations (time_slot, library_card_number, created_at)
		SELECT ?, ?, ? FROM system.one
		WHERE NOT EXISTS (SELECT 1 FROM reservations WHERE time_slot = ?)`,
		slot, cardNumber, createdAt, slot)
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", err)
	}

	winner, found, err := db.GetReservation(ctx, slot)
	if err != nil {
		return err
	}
	if !found {
		// Guard fired against an existing row that a concurrent sweep
		// removed before the re-read; treat as taken so the caller
		// retries deliberately.
		return storage.ErrSlotExists
	}
	if winner.CardNumber != cardNumber || !winner.CreatedAt.Equal(createdAt) {
		derr := db.conn.Exec(ctx, `
			DELETE FROM reservations
			WHERE time_slot = ? AND library_card_number = ? AND created_at = ?`,
			slot, cardNumber, createdAt)
		if derr != nil {
			return fmt.Errorf("failed to roll back losing insert: %w", derr)
		}
		return storage.ErrSlotExists
	}
	return nil
}

// GetReservation returns the winning binding for slot, if any
func (db *ClickHouseDB) GetReservation(ctx context.Context, slot time.Time) (models.Reservation, bool, error) {
	rows, err := db.conn.Query(ctx, `
		SELECT time_slot, library_card_number, created_at FROM reservations
		WHERE time_slot = ?
		ORDER BY created_at ASC, library_card_number ASC
		LIMIT 1`, slot)
	if err != nil {
		return models.Reservation{}, false, fmt.Errorf("failed to get reservation: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return models.Reservation{}, false, nil
	}
	var res models.Reservation
	if err := rows.Scan(&res.Slot, &res.CardNumber, &res.CreatedAt); err != nil {
		return models.Reservation{}, false, fmt.Errorf("failed to scan reservation: %w", err)
	}
	return res, true, nil
}

// DeleteReservation removes the binding if cardNumber owns it
func (db *ClickHouseDB) DeleteReservation(ctx context.Context, slot time.Time, cardNumber string) (bool, error) {
	res, found, err := db.GetReservation(ctx, slot)
	if err != nil {
		return false, err
	}
	if !found || res.CardNumber != cardNumber {
		return false, nil
	}

	err = db.conn.Exec(ctx, `
		DELETE FROM reservations
		WHERE time_slot = ? AND library_card_number = ?`, slot, cardNumber)
	if err != nil {
		return false, fmt.Errorf("failed to delete reservation: %w", err)
	}
	return true, nil
}

// ListMemberReservations returns the member's upcoming reservations,
// chronologically ascending
func (db *ClickHouseDB) ListMemberReservations(ctx context.Context, cardNumber string, from time.Time) ([]models.Reservation, error) {
	rows, err := db.conn.Query(ctx, `
		SELECT time_slot, library_card_number, created_at FROM reservations
		WHERE library_card_number = ? AND time_slot >= ?
		ORDER BY time_slot ASC`, cardNumber, from)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer rows.Close()

	var reservations []models.Reservation
	for rows.Next() {
		var res models.Reservation
		if err := rows.Scan(&res.Slot, &res.CardNumber, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, res)
	}
	return reservations, nil
}

// CountActiveReservations counts the member's reservations whose slot
// has not yet passed
func (db *ClickHouseDB) CountActiveReservations(ctx context.Context, cardNumber string, now time.Time) (int, error) {
	row := db.conn.QueryRow(ctx, `
		SELECT count() FROM reservations
		WHERE library_card_number = ? AND time_slot >= ?`, cardNumber, now)

	var count uint64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count reservations: %w", err)
	}
	return int(count), nil
}

// DeleteExpired removes reservations with slots strictly before now
func (db *ClickHouseDB) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	row := db.conn.QueryRow(ctx, `SELECT count() FROM reservations WHERE time_slot < ?`, now)
	var count uint64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count expired reservations: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	err := db.conn.Exec(ctx, `DELETE FROM reservations WHERE time_slot < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired reservations: %w", err)
	}
	return int(count), nil
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
