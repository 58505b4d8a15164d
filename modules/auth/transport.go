package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// Interceptor is the authorization hook of Transport.
//
// BeforeSend decorates an outbound request, refreshing first when it knows
// the credentials are stale; a non-nil error aborts the request.
// OnUnauthorized runs after a 401 and reports whether the request should be
// rebuilt and sent once more.
type Interceptor interface {
	BeforeSend(ctx context.Context, req *http.Request) error
	OnUnauthorized(ctx context.Context, req *http.Request, resp *http.Response) bool
}

// Transport is an http.RoundTripper that authorizes each request and retries
// it exactly once after a 401, when the interceptor says the credentials
// changed. Any other status, and the retry's response, is returned as is.
type Transport struct {
	base        http.RoundTripper
	interceptor Interceptor
	log         zerolog.Logger
}

var _ http.RoundTripper = (*Transport)(nil)

// NewTransport wraps base; a nil base uses http.DefaultTransport.
func NewTransport(base http.RoundTripper, interceptor Interceptor, log zerolog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:        base,
		interceptor: interceptor,
		log:         log.With().Str("component", "auth_transport").Logger(),
	}
}

// NewClient returns a copy of base whose transport authorizes every request.
// base itself is left untouched.
func NewClient(base *http.Client, interceptor Interceptor, log zerolog.Logger) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	c := *base
	c.Transport = NewTransport(base.Transport, interceptor, log)
	return &c
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	log := t.log.With().
		Str("request_id", uuid.NewString()).
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Logger()

	first, err := t.authorize(ctx, req, false)
	if err != nil {
		closeBody(req)
		return nil, err
	}
	resp, err := t.base.RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	if !rewindable(req) {
		log.Warn().Msg("401 on a request whose body cannot be replayed; not retrying")
		return resp, nil
	}
	if !t.interceptor.OnUnauthorized(ctx, first, resp) {
		log.Warn().Msg("401 and credentials could not be refreshed")
		return resp, nil
	}
	drain(resp)

	log.Debug().Msg("retrying with refreshed credentials")
	second, err := t.authorize(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return t.base.RoundTrip(second)
}

func (t *Transport) authorize(ctx context.Context, req *http.Request, replay bool) (*http.Request, error) {
	clone := req.Clone(ctx)
	if replay && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	if err := t.interceptor.BeforeSend(ctx, clone); err != nil {
		if replay {
			closeBody(clone)
		}
		return nil, err
	}
	return clone, nil
}

func rewindable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		req.Body.Close()
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

// BearerInterceptor authorizes requests with the session's access token:
// proactive refresh when the token is missing or expired, reactive refresh
// after a 401.
type BearerInterceptor struct {
	store     *Store
	refresher *Refresher
	log       zerolog.Logger
}

var (
	_ Interceptor        = (*BearerInterceptor)(nil)
	_ oauth2.TokenSource = (*BearerInterceptor)(nil)
)

func NewBearerInterceptor(store *Store, refresher *Refresher, log zerolog.Logger) *BearerInterceptor {
	return &BearerInterceptor{
		store:     store,
		refresher: refresher,
		log:       log.With().Str("component", "bearer").Logger(),
	}
}

// BeforeSend sets "Authorization: Bearer <token>". The token may be empty
// when a proactive refresh failed; the server's 401 then drives the retry.
// Only a session with no token of either kind is refused outright.
func (b *BearerInterceptor) BeforeSend(ctx context.Context, req *http.Request) error {
	sess, err := b.validSession(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	return nil
}

// OnUnauthorized refreshes past the token the rejected request carried.
func (b *BearerInterceptor) OnUnauthorized(ctx context.Context, req *http.Request, _ *http.Response) bool {
	rejected := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
	out := b.refresher.RefreshAfterRejection(ctx, rejected)
	if !out.Success() {
		b.log.Warn().Err(out.Err).Int("status", out.StatusCode).Msg("refresh after 401 failed")
		return false
	}
	return true
}

// Token implements oauth2.TokenSource on top of the same session.
func (b *BearerInterceptor) Token() (*oauth2.Token, error) {
	ctx := context.Background()
	sess := b.store.Snapshot()
	if !sess.Valid(b.store.now()) {
		out := b.refresher.RefreshIfNeeded(ctx)
		if !out.Success() {
			return nil, out.Err
		}
		sess = out.Session
	}
	return sess.Token(), nil
}

func (b *BearerInterceptor) validSession(ctx context.Context) (Session, error) {
	sess := b.store.Snapshot()
	if sess.Valid(b.store.now()) {
		return sess, nil
	}

	out := b.refresher.RefreshIfNeeded(ctx)
	if out.Success() {
		return out.Session, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Session{}, ctxErr
	}

	sess = b.store.Snapshot()
	if errors.Is(out.Err, ErrNoRefreshToken) && sess.AccessToken == "" {
		return Session{}, ErrNoCredentials
	}
	b.log.Warn().Err(out.Err).Int("status", out.StatusCode).Msg("proactive refresh failed; sending current token")
	return sess, nil
}
