package auth

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrStoreNotInitialized is the panic value of a Store used before Initialize.
	ErrStoreNotInitialized = errors.New("auth: session store used before Initialize")
	// ErrNoRefreshToken means there is nothing to trade for a new access token.
	ErrNoRefreshToken = errors.New("auth: no refresh token available")
	// ErrNoCredentials is returned by the pipeline when neither token exists.
	ErrNoCredentials = errors.New("auth: no credentials available")
)

// TransportFailure is the status recorded when the token endpoint never answered.
const TransportFailure = -1

// AuthError is a failed refresh_token grant. StatusCode is the endpoint's
// status, or TransportFailure when no response was received.
type AuthError struct {
	StatusCode int
	Body       []byte
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode == TransportFailure {
		return fmt.Sprintf("auth: token request failed: %v", e.Err)
	}
	return fmt.Sprintf("auth: token endpoint returned %d: %s", e.StatusCode, string(e.Body))
}

func (e *AuthError) Unwrap() error { return e.Err }

// Rejected reports whether the grant itself was refused. The refresh token is
// then unusable and the session must be discarded.
func (e *AuthError) Rejected() bool {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

// MalformedResponseError is a 200 from the token endpoint that carried no
// usable access token. It says nothing about the refresh token's validity.
type MalformedResponseError struct {
	Body []byte
	Err  error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: malformed token response: %v", e.Err)
	}
	return "auth: malformed token response"
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
