package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guarzo/substream/modules/auth"
)

func TestStore_PanicsBeforeInitialize(t *testing.T) {
	store := auth.NewStore(auth.StoreOptions{})

	assert.PanicsWithValue(t, auth.ErrStoreNotInitialized, func() { store.IsValid() })
	assert.PanicsWithValue(t, auth.ErrStoreNotInitialized, func() { store.AccessToken() })
	assert.PanicsWithValue(t, auth.ErrStoreNotInitialized, func() {
		_ = store.Update(context.Background(), "A", "", time.Hour)
	})
	assert.PanicsWithValue(t, auth.ErrStoreNotInitialized, func() { _ = store.Clear(context.Background()) })
}

func TestStore_InitializeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(epoch)
	store, _ := newStore(t, clock, "R0")
	require.NoError(t, store.Update(ctx, "A", "", time.Hour))

	other := auth.NewMemoryStorage()
	require.NoError(t, store.Initialize(ctx, other))

	access, ok := store.AccessToken()
	assert.True(t, ok)
	assert.Equal(t, "A", access)
	_, found, _ := other.Load(ctx, auth.DefaultNamespace)
	assert.False(t, found, "second Initialize must not rebind storage")
}

func TestStore_SeedsBootstrapRefreshToken(t *testing.T) {
	ctx := context.Background()
	store, storage := newStore(t, newFakeClock(epoch), "R0")

	refresh, ok := store.RefreshToken()
	assert.True(t, ok)
	assert.Equal(t, "R0", refresh)
	_, ok = store.AccessToken()
	assert.False(t, ok)
	assert.False(t, store.IsValid())

	rec, found, err := storage.Load(ctx, auth.DefaultNamespace)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, auth.Record{RefreshToken: "R0"}, rec)
}

func TestStore_PersistedSessionWinsOverBootstrap(t *testing.T) {
	ctx := context.Background()
	storage := auth.NewMemoryStorage()
	require.NoError(t, storage.Save(ctx, "custom", auth.Record{AccessToken: "A", RefreshToken: "B", ExpiresAtMillis: epoch.Add(time.Hour).UnixMilli()}))

	clock := newFakeClock(epoch)
	store := auth.NewStore(auth.StoreOptions{Namespace: "custom", BootstrapRefreshToken: "R0", Now: clock.Now})
	require.NoError(t, store.Initialize(ctx, storage))

	refresh, _ := store.RefreshToken()
	assert.Equal(t, "B", refresh)
	assert.True(t, store.IsValid())
}

func TestStore_NoBootstrapLeavesSessionEmpty(t *testing.T) {
	store, storage := newStore(t, newFakeClock(epoch), "")

	_, ok := store.RefreshToken()
	assert.False(t, ok)
	_, found, _ := storage.Load(context.Background(), auth.DefaultNamespace)
	assert.False(t, found)
}

func TestStore_ValidityBoundary(t *testing.T) {
	clock := newFakeClock(epoch)
	store, _ := newStore(t, clock, "R0")
	require.NoError(t, store.Update(context.Background(), "A", "", time.Hour))

	expiresAt := store.Expiry()
	assert.Equal(t, epoch.Add(time.Hour), expiresAt)

	clock.Set(expiresAt.Add(-time.Millisecond))
	assert.True(t, store.IsValid())

	clock.Set(expiresAt)
	assert.False(t, store.IsValid())
}

func TestStore_EmptyAccessTokenIsNeverValid(t *testing.T) {
	clock := newFakeClock(epoch)
	store, _ := newStore(t, clock, "R0")
	require.NoError(t, store.Update(context.Background(), "", "", time.Hour))
	assert.False(t, store.IsValid())
}

func TestStore_RefreshTokenRotationIsOptional(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t, newFakeClock(epoch), "R0")

	require.NoError(t, store.Update(ctx, "A", "B", time.Hour))
	require.NoError(t, store.Update(ctx, "A2", "", time.Hour))

	refresh, ok := store.RefreshToken()
	assert.True(t, ok)
	assert.Equal(t, "B", refresh)
	access, _ := store.AccessToken()
	assert.Equal(t, "A2", access)
}

func TestStore_UpdatePersistsAllFields(t *testing.T) {
	ctx := context.Background()
	store, storage := newStore(t, newFakeClock(epoch), "R0")

	require.NoError(t, store.Update(ctx, "A", "B", 3600*time.Second))

	rec, found, err := storage.Load(ctx, auth.DefaultNamespace)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, auth.Record{
		AccessToken:     "A",
		RefreshToken:    "B",
		ExpiresAtMillis: epoch.Add(time.Hour).UnixMilli(),
	}, rec)
}

func TestStore_FailedPersistLeavesSnapshot(t *testing.T) {
	ctx := context.Background()
	storage := &failingStorage{MemoryStorage: auth.NewMemoryStorage()}
	store := auth.NewStore(auth.StoreOptions{BootstrapRefreshToken: "R0", Now: newFakeClock(epoch).Now})
	require.NoError(t, store.Initialize(ctx, storage))
	before := store.Snapshot()

	storage.failWrites.Store(true)
	require.Error(t, store.Update(ctx, "A", "B", time.Hour))

	assert.Equal(t, before, store.Snapshot())
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	store, storage := newStore(t, newFakeClock(epoch), "R0")
	require.NoError(t, store.Update(ctx, "A", "B", time.Hour))

	require.NoError(t, store.Clear(ctx))

	_, ok := store.AccessToken()
	assert.False(t, ok)
	_, ok = store.RefreshToken()
	assert.False(t, ok)
	assert.True(t, store.Expiry().IsZero())
	_, found, _ := storage.Load(ctx, auth.DefaultNamespace)
	assert.False(t, found)
}

func TestStore_ConcurrentReadersSeeAtomicUpdates(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(epoch)
	store, _ := newStore(t, clock, "R0")
	require.NoError(t, store.Update(ctx, "old", "", time.Minute))
	oldExpiry := store.Expiry()
	newExpiry := epoch.Add(3600 * time.Second)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	torn := make(chan string, 16)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := store.Snapshot()
				if snap.AccessToken == "A" && !snap.ExpiresAt.Equal(newExpiry) {
					torn <- "new token with old expiry"
					return
				}
				if snap.AccessToken == "old" && !snap.ExpiresAt.Equal(oldExpiry) {
					torn <- "old token with new expiry"
					return
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		require.NoError(t, store.Update(ctx, "A", "B", 3600*time.Second))
		require.NoError(t, store.Update(ctx, "old", "", time.Minute))
	}
	close(stop)
	wg.Wait()
	close(torn)

	for kind := range torn {
		t.Fatalf("observed torn session: %s", kind)
	}
}

func TestSession_Token(t *testing.T) {
	s := auth.Session{AccessToken: "A", RefreshToken: "B", ExpiresAt: epoch}
	tok := s.Token()

	assert.Equal(t, "A", tok.AccessToken)
	assert.Equal(t, "B", tok.RefreshToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, epoch, tok.Expiry)
}
