package session

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/p2pcore/internal/identity"
	"github.com/congo-pay/p2pcore/internal/logging"
)

type stubAuth struct {
	user identity.User
	err  error
}

func (a stubAuth) Authenticate(context.Context, identity.Credentials) (identity.User, error) {
	return a.user, a.err
}

func TestManagerLoginResolveLogout(t *testing.T) {
	m := NewManager(NewMemoryStore(), stubAuth{user: identity.User{ID: "u-1", Phone: "555"}}, time.Hour, logging.Discard())
	ctx := context.Background()

	s, err := m.Login(ctx, identity.Credentials{Phone: "555", Password: "x"})
	require.NoError(t, err)
	assert.True(t, s.Active())
	assert.Equal(t, "u-1", s.UserID)

	resolved, err := m.Resolve(ctx, s.Token)
	require.NoError(t, err)
	assert.Same(t, s, resolved)

	require.NoError(t, m.Logout(ctx, s.Token))
	assert.False(t, s.Active())
	select {
	case <-s.Done():
	default:
		t.Fatal("done must be closed on logout")
	}

	_, err = m.Resolve(ctx, s.Token)
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestManagerLoginFailure(t *testing.T) {
	m := NewManager(NewMemoryStore(), stubAuth{err: identity.ErrInvalidCredentials}, time.Hour, logging.Discard())

	_, err := m.Login(context.Background(), identity.Credentials{})
	assert.True(t, errors.Is(err, identity.ErrInvalidCredentials))
}

func TestRedisStoreRehydrates(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	auth := stubAuth{user: identity.User{ID: "u-2", Phone: "777"}}
	first := NewManager(NewRedisStore(client), auth, time.Minute, logging.Discard())
	second := NewManager(NewRedisStore(client), auth, time.Minute, logging.Discard())
	ctx := context.Background()

	s, err := first.Login(ctx, identity.Credentials{})
	require.NoError(t, err)

	other, err := second.Resolve(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, "u-2", other.UserID)
	assert.NotSame(t, s, other)

	mr.FastForward(2 * time.Minute)
	_, err = second.Resolve(ctx, s.Token)
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.False(t, other.Active(), "expired session must be closed")
}

func TestSessionCloseIdempotent(t *testing.T) {
	s := New("u-3")
	s.Close()
	s.Close()
	assert.False(t, s.Active())
}
