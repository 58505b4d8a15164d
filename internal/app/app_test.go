package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guarzo/substream/internal/app"
	"github.com/guarzo/substream/internal/config"
)

type fakeReddit struct {
	tokenCalls    atomic.Int32
	resourceCalls atomic.Int32
	token         *httptest.Server
	api           *httptest.Server
}

func newFakeReddit(t *testing.T) *fakeReddit {
	t.Helper()
	f := &fakeReddit{}
	f.token = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		_ = r.ParseForm()
		if r.PostForm.Get("refresh_token") != "R0" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"A1","token_type":"bearer","expires_in":3600,"scope":"read"}`))
	}))
	f.api = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.resourceCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer A1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"after":null,"children":[{"kind":"t5","data":{"display_name":"golang"}}]}}`))
	}))
	t.Cleanup(func() {
		f.token.Close()
		f.api.Close()
	})
	return f
}

func testConfig(f *fakeReddit) config.Config {
	return config.Config{
		UserAgent:             "SubStream-Test/1.0",
		APIBaseURL:            f.api.URL,
		AuthBaseURL:           f.token.URL,
		ClientID:              "id",
		BootstrapRefreshToken: "R0",
		RefreshTimeout:        time.Second,
		SessionBackend:        config.BackendMemory,
		SessionNamespace:      "reddit_session",
		CacheTTL:              time.Minute,
	}
}

func TestApp_MemoryBackendEndToEnd(t *testing.T) {
	f := newFakeReddit(t)
	ctx := context.Background()

	a, err := app.New(ctx, testConfig(f), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	page, err := a.Reddit.PopularSubreddits(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "golang", page.Items[0].DisplayName)
	assert.Equal(t, int32(1), f.tokenCalls.Load())
	assert.True(t, a.Store.IsValid())

	_, err = a.Reddit.PopularSubreddits(ctx, 10, "")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.resourceCalls.Load(), "second call is served from cache")
}

func TestApp_FileBackendPersists(t *testing.T) {
	f := newFakeReddit(t)
	ctx := context.Background()
	cfg := testConfig(f)
	cfg.SessionBackend = config.BackendFile
	cfg.SessionDir = t.TempDir()

	first, err := app.New(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	out := first.Refresher.RefreshIfNeeded(ctx)
	require.NoError(t, out.Err)
	require.NoError(t, first.Close())

	second, err := app.New(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer second.Close()

	access, ok := second.Store.AccessToken()
	assert.True(t, ok)
	assert.Equal(t, "A1", access)
	assert.Equal(t, int32(1), f.tokenCalls.Load())
}

func TestApp_RedisBackendPersists(t *testing.T) {
	mr := miniredis.RunT(t)
	f := newFakeReddit(t)
	ctx := context.Background()
	cfg := testConfig(f)
	cfg.SessionBackend = config.BackendRedis
	cfg.RedisAddr = mr.Addr()
	cfg.RedisKeyPrefix = "test:"

	first, err := app.New(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, first.Refresher.RefreshIfNeeded(ctx).Err)
	require.NoError(t, first.Close())

	assert.Equal(t, "A1", mr.HGet("test:session:reddit_session", "access_token"))

	second, err := app.New(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer second.Close()
	assert.True(t, second.Store.IsValid())
}

func TestApp_RedisUnavailable(t *testing.T) {
	f := newFakeReddit(t)
	cfg := testConfig(f)
	cfg.SessionBackend = config.BackendRedis
	cfg.RedisAddr = "127.0.0.1:1"

	_, err := app.New(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
}

func TestApp_UnknownBackend(t *testing.T) {
	f := newFakeReddit(t)
	cfg := testConfig(f)
	cfg.SessionBackend = "etcd"

	_, err := app.New(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
}
