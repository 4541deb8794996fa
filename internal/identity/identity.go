// Package identity owns member registration and credential
// verification. The ledger only ever sees card numbers that passed
// Authenticate; it never creates members itself.
package identity

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"reserved/internal/storage"
)

var (
	ErrMemberExists       = errors.New("card number is already registered")
	ErrMemberUnknown      = errors.New("no member with that card number")
	ErrCredentialMismatch = errors.New("wrong PIN")
	ErrEmptyField         = errors.New("card number and PIN must not be empty")
)

type Service struct {
	db     storage.Storage
	logger *zap.Logger
}

func NewService(db storage.Storage, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Register creates a member with a bcrypt-hashed PIN. Registration is
// always explicit; looking up a member never creates one.
func (s *Service) Register(ctx context.Context, cardNumber, pin string) error {
	if cardNumber == "" || pin == "" {
		return ErrEmptyField
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash PIN: %w", err)
	}

	if err := s.db.CreateMember(ctx, cardNumber, string(hash)); err != nil {
		if errors.Is(err, storage.ErrMemberExists) {
			return ErrMemberExists
		}
		return fmt.Errorf("failed to create member: %w", err)
	}

	s.logger.Info("member registered", zap.String("card_number", cardNumber))
	return nil
}

// Authenticate verifies the PIN for a card number and returns the
// member identifier. An unknown card and a wrong PIN stay
// distinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, cardNumber, pin string) (string, error) {
	member, err := s.db.GetMember(ctx, cardNumber)
	if err != nil {
		if errors.Is(err, storage.ErrMemberUnknown) {
			return "", ErrMemberUnknown
		}
		return "", fmt.Errorf("failed to look up member: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(member.Credential), []byte(pin)) != nil {
		return "", ErrCredentialMismatch
	}
	return member.CardNumber, nil
}
