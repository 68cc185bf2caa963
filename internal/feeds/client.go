package feeds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"
)

// Custom Error Types
var (
	ErrRateLimited  = errors.New("feed rate limit exceeded")
	ErrUnauthorized = errors.New("feed request unauthorized")
	ErrNotFound     = errors.New("feed not found")
	ErrServerError  = errors.New("feed server error")
)

const (
	userAgent      = "seedkeeper"
	maxFeedSize    = 8 << 20
	defaultTimeout = 30 * time.Second
	defaultRetries = 3
)

// NewHTTPClient returns a client that retries rate limited and failed
// requests with backoff. A nil transport uses the default one.
func NewHTTPClient(transport http.RoundTripper, retries int) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retries
	rc.RetryWaitMin = 2 * time.Second
	rc.RetryWaitMax = 30 * time.Second
	rc.Logger = retryLogger{}
	// hand the last response back so its status can be reported
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.HTTPClient.Timeout = defaultTimeout
	if transport != nil {
		rc.HTTPClient.Transport = transport
	}
	return rc.StandardClient()
}

// retryLogger sends retryablehttp's messages to logrus.
type retryLogger struct{}

func fieldsOf(keysAndValues []interface{}) log.Fields {
	f := log.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}

func (retryLogger) Error(msg string, kv ...interface{}) { log.WithFields(fieldsOf(kv)).Warn(msg) }
func (retryLogger) Info(msg string, kv ...interface{})  { log.WithFields(fieldsOf(kv)).Debug(msg) }
func (retryLogger) Debug(msg string, kv ...interface{}) { log.WithFields(fieldsOf(kv)).Trace(msg) }
func (retryLogger) Warn(msg string, kv ...interface{})  { log.WithFields(fieldsOf(kv)).Warn(msg) }

// Client fetches feeds.
type Client struct {
	HttpClient *http.Client
}

// NewClient creates a new feed client
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(nil, defaultRetries)
	}
	return &Client{HttpClient: httpClient}
}

// statusError maps a non-200 response to one of the error kinds.
func statusError(code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrUnauthorized
	case code == http.StatusNotFound:
		return ErrNotFound
	case code >= 500:
		return fmt.Errorf("%w (status code %d)", ErrServerError, code)
	default:
		return fmt.Errorf("feed request failed with status %d", code)
	}
}

// Fetch downloads and parses the feed at url.
func (c *Client) Fetch(ctx context.Context, url string) (*Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, */*;q=0.5")

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode)
	}

	feed, err := Parse(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", url, err)
	}
	log.WithField("feed", url).Debugf("Fetched %d items", len(feed.Items))
	return feed, nil
}
