// Package app assembles the session store, refresh coordinator, authorized
// transport and listing service from a Config.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/guarzo/substream/common"
	"github.com/guarzo/substream/internal/config"
	"github.com/guarzo/substream/modules/auth"
	"github.com/guarzo/substream/modules/auth/redisstore"
	"github.com/guarzo/substream/modules/reddit"
)

// App holds the wired components. Every field shares the one Store.
type App struct {
	Config    config.Config
	Log       zerolog.Logger
	Store     *auth.Store
	Refresher *auth.Refresher
	Bearer    *auth.BearerInterceptor
	Reddit    reddit.RedditService

	authHTTP     common.HttpClient
	resourceHTTP common.HttpClient
	closers      []func() error
}

// New builds and initializes an App. Close releases what it opened.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	storage, err := a.openStorage(cfg)
	if err != nil {
		return nil, err
	}

	a.Store = auth.NewStore(auth.StoreOptions{
		Namespace:             cfg.SessionNamespace,
		BootstrapRefreshToken: cfg.BootstrapRefreshToken,
		Logger:                &log,
	})
	if err := a.Store.Initialize(ctx, storage); err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize session store: %w", err)
	}

	timeouts := common.Timeouts{
		Connect: cfg.ConnectTimeout,
		Read:    cfg.ReadTimeout,
		Request: cfg.RequestTimeout,
	}

	// The token endpoint gets a plain client so a 401 there can never
	// re-enter the refresh path.
	a.authHTTP = common.NewRedditHttpClient(cfg.UserAgent, &http.Client{}, timeouts)
	authClient := auth.NewAuthClient(auth.ClientConfig{
		BaseURL:      cfg.AuthBaseURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}, a.authHTTP, log)

	a.Refresher = auth.NewRefresher(a.Store, authClient, auth.RefresherOptions{
		Timeout: cfg.RefreshTimeout,
		Logger:  &log,
	})
	a.Bearer = auth.NewBearerInterceptor(a.Store, a.Refresher, log)

	authorized := auth.NewClient(&http.Client{Transport: common.NewTransport(timeouts)}, a.Bearer, log)
	a.resourceHTTP = common.NewRedditHttpClient(cfg.UserAgent, authorized, timeouts)

	var opts []reddit.ClientOption
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		opts = append(opts, reddit.WithRateLimiter(rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RateLimit)), burst)))
	}
	client := reddit.NewRedditClient(cfg.APIBaseURL, a.resourceHTTP, common.NewCacheStore(cfg.CacheTTL), cfg.CacheTTL, log, opts...)
	a.Reddit = reddit.NewRedditService(client, log)

	log.Debug().
		Str("backend", cfg.SessionBackend).
		Str("namespace", cfg.SessionNamespace).
		Bool("session_valid", a.Store.IsValid()).
		Msg("client ready")
	return a, nil
}

func (a *App) openStorage(cfg config.Config) (auth.Storage, error) {
	switch cfg.SessionBackend {
	case config.BackendMemory:
		return auth.NewMemoryStorage(), nil
	case config.BackendFile:
		return auth.NewFileStorage(cfg.SessionDir), nil
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		s, err := redisstore.New(redisstore.Config{Client: rdb, KeyPrefix: cfg.RedisKeyPrefix})
		if err != nil {
			rdb.Close()
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	}
	return nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
}

// TokenSource exposes the managed session to oauth2-aware code. Tokens it
// returns are refreshed through the same Refresher as API calls.
func (a *App) TokenSource() oauth2.TokenSource {
	return a.Bearer
}

// Close drops idle connections and closes the session backend.
func (a *App) Close() error {
	if a.authHTTP != nil {
		a.authHTTP.CloseIdleConnections()
	}
	if a.resourceHTTP != nil {
		a.resourceHTTP.CloseIdleConnections()
	}
	var firstErr error
	for _, c := range a.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
