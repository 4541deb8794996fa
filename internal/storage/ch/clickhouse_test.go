package ch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clickhouseTC "github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"reserved/internal/storage"
)

// runMigrations applies the reservation schema directly; goose owns
// the same DDL in migrations/ for real deployments.
func runMigrations(ctx context.Context, db *ClickHouseDB) error {
	_ = db.conn.Exec(ctx, "DROP TABLE IF EXISTS reservations")
	_ = db.conn.Exec(ctx, "DROP TABLE IF EXISTS members")

	err := db.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS members (
			library_card_number String,
			credential String
		) ENGINE = MergeTree()
		ORDER BY library_card_number
	`)
	if err != nil {
		return err
	}

	return db.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS reservations (
			time_slot DateTime('UTC'),
			library_card_number String,
			created_at DateTime64(6, 'UTC')
		) ENGINE = MergeTree()
		ORDER BY time_slot
	`)
}

// setupTestDB creates a test ClickHouse instance using testcontainers
func setupTestDB(t *testing.T) (*ClickHouseDB, func()) {
	ctx := context.Background()

	clickhouseContainer, err := clickhouseTC.Run(ctx,
		"clickhouse/clickhouse-server:24.3.3.102-alpine",
		clickhouseTC.WithUsername("default"),
		clickhouseTC.WithPassword(""),
		clickhouseTC.WithDatabase("default"),
	)
	require.NoError(t, err, "Failed to start ClickHouse container")

	host, err := clickhouseContainer.Host(ctx)
	require.NoError(t, err)

	port, err := clickhouseContainer.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)

	db, err := NewClickHouseDB(host, port.Int(), "default", "default", "", false)
	require.NoError(t, err, "Failed to connect to ClickHouse")

	err = runMigrations(ctx, db)
	require.NoError(t, err, "Failed to run migrations")

	cleanup := func() {
		db.Close()
		clickhouseContainer.Terminate(ctx)
	}

	return db, cleanup
}

func TestClickHouseDB_Members(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	err := db.CreateMember(ctx, "11111111111111", "hash-1")
	require.NoError(t, err)

	member, err := db.GetMember(ctx, "11111111111111")
	require.NoError(t, err)
	assert.Equal(t, "11111111111111", member.CardNumber)
	assert.Equal(t, "hash-1", member.Credential)

	// Duplicate registration fails
	err = db.CreateMember(ctx, "11111111111111", "hash-2")
	assert.ErrorIs(t, err, storage.ErrMemberExists)

	// Unknown member
	_, err = db.GetMember(ctx, "99999999999999")
	assert.ErrorIs(t, err, storage.ErrMemberUnknown)
}

func TestClickHouseDB_InsertReservation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	slot := time.Date(2030, 12, 9, 10, 0, 0, 0, time.UTC)
	now := time.Date(2030, 12, 9, 9, 0, 0, 0, time.UTC)

	err := db.InsertReservation(ctx, slot, "card-a", now)
	require.NoError(t, err)

	// A second member cannot take the same slot
	err = db.InsertReservation(ctx, slot, "card-b", now.Add(time.Second))
	assert.ErrorIs(t, err, storage.ErrSlotExists)

	// The winner's binding survives
	res, found, err := db.GetReservation(ctx, slot)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "card-a", res.CardNumber)
	assert.True(t, res.Slot.Equal(slot))

	// The loser holds nothing
	list, err := db.ListMemberReservations(ctx, "card-b", now)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestClickHouseDB_DeleteReservation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	slot := time.Date(2030, 12, 9, 10, 0, 0, 0, time.UTC)
	now := time.Date(2030, 12, 9, 9, 0, 0, 0, time.UTC)

	err := db.InsertReservation(ctx, slot, "card-a", now)
	require.NoError(t, err)

	// Non-owner removes nothing
	removed, err := db.DeleteReservation(ctx, slot, "card-b")
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = db.DeleteReservation(ctx, slot, "card-a")
	require.NoError(t, err)
	assert.True(t, removed)

	_, found, err := db.GetReservation(ctx, slot)
	require.NoError(t, err)
	assert.False(t, found)

	// Slot is reservable again after deletion
	err = db.InsertReservation(ctx, slot, "card-b", now.Add(time.Minute))
	require.NoError(t, err)
}

func TestClickHouseDB_ListMemberReservations(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Date(2030, 12, 9, 9, 0, 0, 0, time.UTC)

	// Insert out of chronological order
	slots := []time.Time{
		time.Date(2030, 12, 9, 15, 0, 0, 0, time.UTC),
		time.Date(2030, 12, 9, 10, 0, 0, 0, time.UTC),
		time.Date(2030, 12, 9, 12, 0, 0, 0, time.UTC),
	}
	for i, slot := range slots {
		err := db.InsertReservation(ctx, slot, "card-a", now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	err := db.InsertReservation(ctx, time.Date(2030, 12, 9, 11, 0, 0, 0, time.UTC), "card-b", now)
	require.NoError(t, err)

	list, err := db.ListMemberReservations(ctx, "card-a", now)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 10, list[0].Slot.Hour())
	assert.Equal(t, 12, list[1].Slot.Hour())
	assert.Equal(t, 15, list[2].Slot.Hour())
}

func TestClickHouseDB_CountActiveReservations(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	created := time.Date(2030, 12, 1, 9, 0, 0, 0, time.UTC)
	now := time.Date(2030, 12, 9, 9, 0, 0, 0, time.UTC)

	// One expired, two active
	slots := []time.Time{
		time.Date(2030, 12, 2, 10, 0, 0, 0, time.UTC),
		time.Date(2030, 12, 9, 10, 0, 0, 0, time.UTC),
		time.Date(2030, 12, 9, 11, 0, 0, 0, time.UTC),
	}
	for _, slot := range slots {
		err := db.InsertReservation(ctx, slot, "card-a", created)
		require.NoError(t, err)
	}

	count, err := db.CountActiveReservations(ctx, "card-a", now)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestClickHouseDB_DeleteExpired(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	created := time.Date(2030, 12, 1, 9, 0, 0, 0, time.UTC)
	now := time.Date(2030, 12, 9, 9, 0, 0, 0, time.UTC)

	slots := []time.Time{
		time.Date(2030, 12, 2, 10, 0, 0, 0, time.UTC), // expired
		time.Date(2030, 12, 2, 11, 0, 0, 0, time.UTC), // expired
		time.Date(2030, 12, 9, 10, 0, 0, 0, time.UTC), // active
	}
	for _, slot := range slots {
		err := db.InsertReservation(ctx, slot, "card-a", created)
		require.NoError(t, err)
	}

	removed, err := db.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	// Idempotent
	removed, err = db.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	list, err := db.ListMemberReservations(ctx, "card-a", created)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 9, list[0].Slot.Day())
}

func TestClickHouseDB_Close(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	err := db.Close()
	assert.NoError(t, err)

	// Second close should not panic
	err = db.Close()
	assert.NoError(t, err)
}
