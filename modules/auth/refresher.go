package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/guarzo/substream/common"
)

// DefaultRefreshTimeout bounds one refresh exchange.
const DefaultRefreshTimeout = 30 * time.Second

// RefreshOutcome is what every caller sharing a refresh observes.
// StatusCode is the token endpoint's status on failure, TransportFailure when
// it never answered, and 0 otherwise.
type RefreshOutcome struct {
	Session    Session
	StatusCode int
	Err        error
}

func (o RefreshOutcome) Success() bool { return o.Err == nil }

// RefresherOptions tunes a Refresher.
type RefresherOptions struct {
	Timeout time.Duration
	Logger  *zerolog.Logger
}

// Refresher guarantees at most one refresh exchange in flight per process.
// Callers replacing the same stale token share a single call and its outcome;
// calls for different tokens queue on mu and re-read the store first.
type Refresher struct {
	store   *Store
	auth    AuthClient
	timeout time.Duration
	log     zerolog.Logger

	mu    sync.Mutex
	group singleflight.Group
}

func NewRefresher(store *Store, auth AuthClient, opts RefresherOptions) *Refresher {
	r := &Refresher{
		store:   store,
		auth:    auth,
		timeout: opts.Timeout,
		log:     zerolog.Nop(),
	}
	if r.timeout <= 0 {
		r.timeout = DefaultRefreshTimeout
	}
	if opts.Logger != nil {
		r.log = opts.Logger.With().Str("component", "refresher").Logger()
	}
	return r
}

// RefreshIfNeeded refreshes unless the stored access token is still valid.
func (r *Refresher) RefreshIfNeeded(ctx context.Context) RefreshOutcome {
	current := r.store.Snapshot()
	if current.Valid(r.store.now()) {
		return RefreshOutcome{Session: current}
	}
	return r.refresh(ctx, "expired:"+current.AccessToken, func(s Session) bool {
		return s.Valid(r.store.now())
	})
}

// RefreshAfterRejection refreshes because the resource server refused
// rejected. If another caller already replaced it, the stored session is
// returned without a network call.
func (r *Refresher) RefreshAfterRejection(ctx context.Context, rejected string) RefreshOutcome {
	return r.refresh(ctx, "rejected:"+rejected, func(s Session) bool {
		return s.AccessToken != rejected && s.Valid(r.store.now())
	})
}

func (r *Refresher) refresh(ctx context.Context, key string, fresh func(Session) bool) RefreshOutcome {
	// The exchange outlives any single caller: others may be waiting on it.
	detached := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (interface{}, error) {
		return r.exchange(detached, fresh), nil
	})

	select {
	case res := <-ch:
		return res.Val.(RefreshOutcome)
	case <-ctx.Done():
		return RefreshOutcome{Err: ctx.Err()}
	}
}

func (r *Refresher) exchange(ctx context.Context, fresh func(Session) bool) (out RefreshOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Interface("panic", p).Msg("refresh panicked")
			out = RefreshOutcome{Err: fmt.Errorf("auth: refresh panicked: %v", p)}
		}
	}()

	current := r.store.Snapshot()
	if fresh(current) {
		r.log.Debug().Msg("session already refreshed by an earlier caller")
		return RefreshOutcome{Session: current}
	}
	if current.RefreshToken == "" {
		r.log.Warn().Msg("refresh needed but no refresh token is stored")
		return RefreshOutcome{Err: ErrNoRefreshToken}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.log.Debug().Str("refresh_token", common.Redact(current.RefreshToken)).Msg("refreshing access token")
	tr, err := r.auth.RefreshToken(ctx, current.RefreshToken)
	if err != nil {
		return r.failed(ctx, err)
	}

	if err := r.store.Update(ctx, tr.AccessToken, tr.RefreshToken, time.Duration(tr.ExpiresIn)*time.Second); err != nil {
		r.log.Error().Err(err).Msg("refreshed token could not be persisted")
		return RefreshOutcome{Err: err}
	}
	r.log.Info().Int("expires_in", tr.ExpiresIn).Msg("access token refreshed")
	return RefreshOutcome{Session: r.store.Snapshot()}
}

func (r *Refresher) failed(ctx context.Context, err error) RefreshOutcome {
	var authErr *AuthError
	var malformed *MalformedResponseError

	switch {
	case errors.As(err, &authErr) && authErr.Rejected():
		r.log.Error().Int("status", authErr.StatusCode).Msg("refresh token rejected; clearing session")
		if clearErr := r.store.Clear(ctx); clearErr != nil {
			r.log.Error().Err(clearErr).Msg("session could not be cleared")
		}
		return RefreshOutcome{StatusCode: authErr.StatusCode, Err: err}
	case errors.As(err, &authErr):
		r.log.Warn().Err(err).Int("status", authErr.StatusCode).Msg("refresh failed; session kept")
		return RefreshOutcome{StatusCode: authErr.StatusCode, Err: err}
	case errors.As(err, &malformed):
		r.log.Warn().Err(err).Msg("refresh response unusable; session kept")
		return RefreshOutcome{StatusCode: http.StatusOK, Err: err}
	default:
		r.log.Warn().Err(err).Msg("refresh failed; session kept")
		return RefreshOutcome{StatusCode: TransportFailure, Err: err}
	}
}
