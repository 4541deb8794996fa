package main

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"reserved/internal/config"
	"reserved/internal/identity"
	"reserved/internal/storage"
	"reserved/internal/storage/ch"
)

// Seeds five test members: card numbers are a digit 0–4 repeated 14
// times, all with PIN 0000. Existing members are skipped.
func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.UseMockDB {
		log.Fatal("Seeding the in-memory store is pointless; unset USE_MOCK_DB")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	db, err := ch.NewClickHouseDB(
		cfg.ClickHouseHost,
		cfg.ClickHousePort,
		cfg.ClickHouseDatabase,
		cfg.ClickHouseUser,
		cfg.ClickHousePassword,
		cfg.ClickHouseUseTLS,
	)
	if err != nil {
		log.Fatalf("Failed to connect to ClickHouse: %v", err)
	}
	defer db.Close()

	seedMembers(context.Background(), db, logger)
	log.Println("Seeded test members: card numbers 0–4 repeated 14 times, PIN 0000")
}

func seedMembers(ctx context.Context, db storage.Storage, logger *zap.Logger) {
	members := identity.NewService(db, logger)
	for _, digit := range []string{"0", "1", "2", "3", "4"} {
		cardNumber := strings.Repeat(digit, 14)
		err := members.Register(ctx, cardNumber, "0000")
		if errors.Is(err, identity.ErrMemberExists) {
			continue
		}
		if err != nil {
			log.Fatalf("Failed to seed member %s: %v", cardNumber, err)
		}
	}
}
