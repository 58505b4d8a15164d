// Package auth owns the Reddit OAuth session: persisted tokens, the
// refresh_token grant, single-flight refresh and the bearer transport.
package auth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/guarzo/substream/common"
)

// DefaultNamespace is the storage key used when StoreOptions leaves it empty.
const DefaultNamespace = "reddit_session"

// Session is an immutable snapshot of the three persisted fields.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Valid is true iff the access token is present and now is strictly before ExpiresAt.
func (s Session) Valid(now time.Time) bool {
	return s.AccessToken != "" && now.Before(s.ExpiresAt)
}

// Token converts the snapshot for code written against golang.org/x/oauth2.
func (s Session) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken,
		Expiry:       s.ExpiresAt,
	}
}

func (s Session) record() Record {
	r := Record{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}
	if !s.ExpiresAt.IsZero() {
		r.ExpiresAtMillis = s.ExpiresAt.UnixMilli()
	}
	return r
}

func sessionFromRecord(r Record) Session {
	s := Session{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
	if r.ExpiresAtMillis != 0 {
		s.ExpiresAt = time.UnixMilli(r.ExpiresAtMillis)
	}
	return s
}

// StoreOptions configures a Store.
type StoreOptions struct {
	Namespace string
	// BootstrapRefreshToken seeds storage that has never held a session.
	BootstrapRefreshToken string
	Now                   func() time.Time
	Logger                *zerolog.Logger
}

// Store is the process-wide session. Reads are wait-free loads of one
// snapshot; writes are serialized and persisted before they become visible.
type Store struct {
	namespace string
	bootstrap string
	now       func() time.Time
	log       zerolog.Logger

	writeMu sync.Mutex
	storage Storage
	ready   atomic.Bool
	current atomic.Pointer[Session]
}

// NewStore returns a Store that must be bound with Initialize before use.
func NewStore(opts StoreOptions) *Store {
	s := &Store{
		namespace: opts.Namespace,
		bootstrap: opts.BootstrapRefreshToken,
		now:       opts.Now,
		log:       zerolog.Nop(),
	}
	if s.namespace == "" {
		s.namespace = DefaultNamespace
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.Logger != nil {
		s.log = opts.Logger.With().Str("component", "session_store").Logger()
	}
	return s
}

// Initialize binds the store to storage and loads the persisted session.
// Calling it again is a no-op.
func (s *Store) Initialize(ctx context.Context, storage Storage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.ready.Load() {
		return nil
	}

	rec, found, err := storage.Load(ctx, s.namespace)
	if err != nil {
		return fmt.Errorf("session: load %q: %w", s.namespace, err)
	}
	if !found && s.bootstrap != "" {
		rec = Record{RefreshToken: s.bootstrap}
		if err := storage.Save(ctx, s.namespace, rec); err != nil {
			return fmt.Errorf("session: seed %q: %w", s.namespace, err)
		}
		s.log.Info().Str("namespace", s.namespace).Msg("seeded session with bootstrap refresh token")
	}

	sess := sessionFromRecord(rec)
	s.current.Store(&sess)
	s.storage = storage
	s.ready.Store(true)

	s.log.Debug().
		Str("namespace", s.namespace).
		Bool("has_access_token", sess.AccessToken != "").
		Bool("has_refresh_token", sess.RefreshToken != "").
		Time("expires_at", sess.ExpiresAt).
		Msg("session loaded")
	return nil
}

func (s *Store) mustBeReady() {
	if !s.ready.Load() {
		panic(ErrStoreNotInitialized)
	}
}

// Snapshot returns the current session as one consistent value.
func (s *Store) Snapshot() Session {
	s.mustBeReady()
	return *s.current.Load()
}

// AccessToken returns the current access token, if any.
func (s *Store) AccessToken() (string, bool) {
	t := s.Snapshot().AccessToken
	return t, t != ""
}

// RefreshToken returns the current refresh token, if any.
func (s *Store) RefreshToken() (string, bool) {
	t := s.Snapshot().RefreshToken
	return t, t != ""
}

// Expiry returns the instant after which the access token must not be trusted.
func (s *Store) Expiry() time.Time {
	return s.Snapshot().ExpiresAt
}

// IsValid reports whether the current access token can be sent as is.
func (s *Store) IsValid() bool {
	return s.Snapshot().Valid(s.now())
}

// Update installs a freshly minted access token. An empty refreshToken keeps
// the current one; the server only sends a new one when it rotates it.
func (s *Store) Update(ctx context.Context, accessToken, refreshToken string, expiresIn time.Duration) error {
	s.mustBeReady()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := Session{
		AccessToken:  accessToken,
		RefreshToken: s.current.Load().RefreshToken,
		ExpiresAt:    time.UnixMilli(s.now().Add(expiresIn).UnixMilli()),
	}
	if refreshToken != "" {
		next.RefreshToken = refreshToken
	}

	if err := s.storage.Save(ctx, s.namespace, next.record()); err != nil {
		return fmt.Errorf("session: persist %q: %w", s.namespace, err)
	}
	s.current.Store(&next)

	s.log.Debug().
		Str("access_token", common.Redact(accessToken)).
		Bool("rotated_refresh_token", refreshToken != "").
		Time("expires_at", next.ExpiresAt).
		Msg("session updated")
	return nil
}

// Clear removes all three fields. Used when the refresh token is rejected.
func (s *Store) Clear(ctx context.Context) error {
	s.mustBeReady()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.storage.Delete(ctx, s.namespace); err != nil {
		return fmt.Errorf("session: clear %q: %w", s.namespace, err)
	}
	s.current.Store(&Session{})

	s.log.Info().Str("namespace", s.namespace).Msg("session cleared")
	return nil
}
