package reddit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/guarzo/substream/common"
	"github.com/guarzo/substream/common/model"
)

// DefaultBaseURL is the OAuth API host; the public www host rejects bearer tokens.
const DefaultBaseURL = "https://oauth.reddit.com"

// RedditClient defines lower-level HTTP operations for the listing API:
// GET with caching and backoff, plus a raw request escape hatch.
// Authorization is the transport's job; nothing here sees a token.
type RedditClient interface {
	GetJSON(ctx context.Context, endpoint string, entity interface{}, params map[string]string) error
	GetBytes(ctx context.Context, endpoint string, params map[string]string) ([]byte, error)
	DoRequest(ctx context.Context, method, urlStr string, body io.Reader, expectedStatus ...int) ([]byte, error)
}

type redditClient struct {
	baseURL    string
	httpClient common.HttpClient
	cache      common.CacheRepository
	cacheTTL   time.Duration
	limiter    *rate.Limiter
	log        zerolog.Logger
}

// ClientOption customizes a RedditClient.
type ClientOption func(*redditClient)

// WithRateLimiter makes every request wait for a token from l.
func WithRateLimiter(l *rate.Limiter) ClientOption {
	return func(c *redditClient) { c.limiter = l }
}

// Request counters, exposed through Stats.
var (
	totalCalls   int64
	successCount int64
	failCount    int64
)

// Stats reports process-wide request counts.
func Stats() (total, success, failed int64) {
	return atomic.LoadInt64(&totalCalls), atomic.LoadInt64(&successCount), atomic.LoadInt64(&failCount)
}

// NewRedditClient creates a RedditClient. httpClient is expected to carry
// the authorizing transport. A nil cache disables response caching.
func NewRedditClient(baseURL string, httpClient common.HttpClient, cache common.CacheRepository, cacheTTL time.Duration, log zerolog.Logger, opts ...ClientOption) RedditClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	c := &redditClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		cache:      cache,
		cacheTTL:   cacheTTL,
		log:        log.With().Str("component", "reddit_client").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON retrieves JSON from a listing endpoint and unmarshals into entity.
func (c *redditClient) GetJSON(ctx context.Context, endpoint string, entity interface{}, params map[string]string) error {
	data, err := c.GetBytes(ctx, endpoint, params)
	if err != nil {
		return err
	}
	if err := model.JSONUnmarshal(data, entity); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

// GetBytes retrieves raw bytes from an endpoint, served from cache when present.
func (c *redditClient) GetBytes(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	if params == nil {
		params = map[string]string{}
	}
	// raw_json=1 stops Reddit from HTML-escaping URLs in the payload
	if _, found := params["raw_json"]; !found {
		params["raw_json"] = "1"
	}

	cacheKey := buildCacheKey(endpoint, params)
	if c.cache != nil {
		if cached, found := c.cache.Get(cacheKey); found {
			c.log.Debug().Str("endpoint", endpoint).Msg("cache hit")
			return cached, nil
		}
	}

	urlStr, err := c.buildURL(endpoint, params)
	if err != nil {
		return nil, err
	}

	operation := func() (interface{}, error) {
		data, err := c.DoRequest(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			c.cache.Set(cacheKey, data, c.cacheTTL)
		}
		return data, nil
	}

	result, err := c.httpClient.RetryWithExponentialBackoff(ctx, operation)
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// DoRequest performs one HTTP request and returns the body when the status
// is one of expectedStatus (200 by default).
func (c *redditClient) DoRequest(ctx context.Context, method, urlStr string, body io.Reader, expectedStatus ...int) ([]byte, error) {
	if len(expectedStatus) == 0 {
		expectedStatus = []int{http.StatusOK}
	}

	// buffer the body so the transport can replay it after a refresh
	var reqBody io.Reader
	if body != nil {
		b, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	atomic.AddInt64(&totalCalls, 1)
	if err != nil {
		atomic.AddInt64(&failCount, 1)
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if !statusMatches(resp.StatusCode, expectedStatus) {
		atomic.AddInt64(&failCount, 1)
		c.log.Warn().Str("method", method).Int("status", resp.StatusCode).Str("url", redactQuery(urlStr)).Msg("unexpected status")
		return nil, &common.HTTPError{StatusCode: resp.StatusCode, Body: data}
	}
	atomic.AddInt64(&successCount, 1)
	return data, nil
}

// buildURL merges baseURL + endpoint + params
func (c *redditClient) buildURL(endpoint string, params map[string]string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	path, err := url.Parse(strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}

	fullURL := base.ResolveReference(path)
	q := fullURL.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	fullURL.RawQuery = q.Encode()
	return fullURL.String(), nil
}

func buildCacheKey(endpoint string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "&%s=%s", k, params[k])
	}
	return fmt.Sprintf("reddit:%s:%s", strings.TrimLeft(endpoint, "/"), sb.String())
}

func statusMatches(statusCode int, expected []int) bool {
	for _, s := range expected {
		if statusCode == s {
			return true
		}
	}
	return false
}

func redactQuery(urlStr string) string {
	if i := strings.IndexByte(urlStr, '?'); i >= 0 {
		return urlStr[:i]
	}
	return urlStr
}
