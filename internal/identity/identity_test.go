package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reserved/internal/storage/stubs"
)

func newTestService() *Service {
	return NewService(stubs.NewMockDB(), zap.NewNop())
}

func TestRegisterAndAuthenticate(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	err := s.Register(ctx, "00000000000000", "0000")
	require.NoError(t, err)

	cardNumber, err := s.Authenticate(ctx, "00000000000000", "0000")
	require.NoError(t, err)
	assert.Equal(t, "00000000000000", cardNumber)
}

func TestRegisterDuplicate(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	err := s.Register(ctx, "00000000000000", "0000")
	require.NoError(t, err)

	err = s.Register(ctx, "00000000000000", "1234")
	assert.ErrorIs(t, err, ErrMemberExists)
}

func TestRegisterEmptyFields(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	assert.ErrorIs(t, s.Register(ctx, "", "0000"), ErrEmptyField)
	assert.ErrorIs(t, s.Register(ctx, "00000000000000", ""), ErrEmptyField)
}

func TestAuthenticateUnknownMember(t *testing.T) {
	s := newTestService()

	_, err := s.Authenticate(context.Background(), "99999999999999", "0000")
	assert.ErrorIs(t, err, ErrMemberUnknown)
}

func TestAuthenticateWrongPIN(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	err := s.Register(ctx, "00000000000000", "0000")
	require.NoError(t, err)

	_, err = s.Authenticate(ctx, "00000000000000", "1234")
	assert.ErrorIs(t, err, ErrCredentialMismatch)

	// Wrong PIN and unknown member stay distinguishable
	_, err = s.Authenticate(ctx, "11111111111111", "0000")
	assert.ErrorIs(t, err, ErrMemberUnknown)
}

func TestCredentialIsHashed(t *testing.T) {
	db := stubs.NewMockDB()
	s := NewService(db, zap.NewNop())
	ctx := context.Background()

	err := s.Register(ctx, "00000000000000", "0000")
	require.NoError(t, err)

	member, err := db.GetMember(ctx, "00000000000000")
	require.NoError(t, err)
	assert.NotEqual(t, "0000", member.Credential)
}
