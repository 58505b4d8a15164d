package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/guarzo/substream/common"
)

const (
	// TokenPath is the authorization endpoint relative to the auth host.
	TokenPath = "/api/v1/access_token"
	// DefaultExpiresIn applies when expires_in is missing or unusable.
	DefaultExpiresIn = 3600
	// MaxExpiresIn is the largest lifetime, in seconds, a time.Duration can hold.
	MaxExpiresIn = math.MaxInt64 / int64(time.Second)

	maxTokenBody = 1 << 20
)

// AuthClient trades a refresh token for a new access token.
type AuthClient interface {
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// TokenResponse is one successful refresh_token grant. RefreshToken is empty
// unless the server rotated it.
type TokenResponse struct {
	AccessToken  string
	TokenType    string
	Scope        string
	RefreshToken string
	ExpiresIn    int
}

// ClientConfig identifies the installed app to the authorization server.
type ClientConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
}

// Client performs the refresh_token grant. Its HttpClient must not be the
// authorized transport, or a 401 during refresh would recurse.
type Client struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   common.HttpClient
	log          zerolog.Logger
}

var _ AuthClient = (*Client)(nil)

func NewAuthClient(cfg ClientConfig, httpClient common.HttpClient, log zerolog.Logger) *Client {
	return &Client{
		tokenURL:     strings.TrimRight(cfg.BaseURL, "/") + TokenPath,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   httpClient,
		log:          log.With().Str("component", "auth_client").Logger(),
	}
}

// RefreshToken posts grant_type=refresh_token and decodes the answer.
// Errors are *AuthError (status or transport) or *MalformedResponseError.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthError{StatusCode: TransportFailure, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Msg("token request failed")
		return nil, &AuthError{StatusCode: TransportFailure, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBody))
	if resp.StatusCode != http.StatusOK {
		c.log.Warn().Int("status", resp.StatusCode).Msg("token endpoint refused grant")
		return nil, &AuthError{StatusCode: resp.StatusCode, Body: body}
	}
	if err != nil {
		return nil, &AuthError{StatusCode: TransportFailure, Err: fmt.Errorf("read token response: %w", err)}
	}

	tr, err := parseTokenResponse(body)
	if err != nil {
		c.log.Warn().Err(err).Msg("token endpoint returned an unusable body")
		return nil, err
	}
	c.log.Debug().
		Str("access_token", common.Redact(tr.AccessToken)).
		Int("expires_in", tr.ExpiresIn).
		Bool("rotated_refresh_token", tr.RefreshToken != "").
		Msg("access token refreshed")
	return tr, nil
}

type tokenBody struct {
	AccessToken  string          `json:"access_token"`
	TokenType    string          `json:"token_type"`
	Scope        string          `json:"scope"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresIn    json.RawMessage `json:"expires_in"`
	Error        string          `json:"error"`
}

func parseTokenResponse(body []byte) (*TokenResponse, error) {
	var tb tokenBody
	if err := json.Unmarshal(body, &tb); err != nil {
		return nil, &MalformedResponseError{Body: body, Err: err}
	}
	if tb.AccessToken == "" {
		err := errors.New("missing access_token")
		if tb.Error != "" {
			err = fmt.Errorf("missing access_token (error %q)", tb.Error)
		}
		return nil, &MalformedResponseError{Body: body, Err: err}
	}
	return &TokenResponse{
		AccessToken:  tb.AccessToken,
		TokenType:    tb.TokenType,
		Scope:        tb.Scope,
		RefreshToken: tb.RefreshToken,
		ExpiresIn:    parseExpiresIn(tb.ExpiresIn),
	}, nil
}

// parseExpiresIn accepts 3600 or "3600". Lifetimes beyond MaxExpiresIn are
// capped there.
func parseExpiresIn(raw json.RawMessage) int {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	n, err := strconv.ParseInt(s, 10, 64)
	if errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(s, "-") {
		return int(MaxExpiresIn)
	}
	if err != nil || n <= 0 {
		return DefaultExpiresIn
	}
	if n > MaxExpiresIn {
		n = MaxExpiresIn
	}
	return int(n)
}
