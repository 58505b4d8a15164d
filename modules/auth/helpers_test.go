package auth_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/guarzo/substream/modules/auth"
)

var epoch = time.UnixMilli(1_700_000_000_000)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type mockAuth struct {
	calls       atomic.Int32
	refreshFunc func(ctx context.Context, refreshToken string) (*auth.TokenResponse, error)
}

func (m *mockAuth) RefreshToken(ctx context.Context, refreshToken string) (*auth.TokenResponse, error) {
	m.calls.Add(1)
	if m.refreshFunc != nil {
		return m.refreshFunc(ctx, refreshToken)
	}
	return nil, errors.New("mockAuth called refresh, but no func set")
}

func grant(access string, expiresIn int) func(context.Context, string) (*auth.TokenResponse, error) {
	return func(context.Context, string) (*auth.TokenResponse, error) {
		return &auth.TokenResponse{AccessToken: access, ExpiresIn: expiresIn, TokenType: "bearer"}, nil
	}
}

// failingStorage wraps MemoryStorage and fails writes on demand.
type failingStorage struct {
	*auth.MemoryStorage
	failWrites atomic.Bool
}

func (f *failingStorage) Save(ctx context.Context, ns string, rec auth.Record) error {
	if f.failWrites.Load() {
		return errors.New("disk full")
	}
	return f.MemoryStorage.Save(ctx, ns, rec)
}

func newStore(t *testing.T, clock *fakeClock, bootstrap string) (*auth.Store, *auth.MemoryStorage) {
	t.Helper()
	storage := auth.NewMemoryStorage()
	store := auth.NewStore(auth.StoreOptions{BootstrapRefreshToken: bootstrap, Now: clock.Now})
	require.NoError(t, store.Initialize(context.Background(), storage))
	return store, storage
}
