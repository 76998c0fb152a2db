package hypersync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// Client talks to one archive. It is safe for concurrent use and cheap to
// share: all fields are read-only after construction and the HTTP client
// pools connections internally.
type Client struct {
	httpClient     *http.Client
	url            *url.URL
	bearerToken    string
	maxNumRetries  int
	retryBaseMs    uint64
	retryBackoffMs uint64
	retryCeilingMs uint64
	limiter        *rate.Limiter
}

// NewClient creates a new archive client, applying defaults for any zero
// config field.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("parse url %q: %v", cfg.URL, err)}
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, &ConfigError{Msg: fmt.Sprintf("url %q must be absolute", cfg.URL)}
	}

	if cfg.HTTPReqTimeoutMillis == 0 {
		cfg.HTTPReqTimeoutMillis = defaultHTTPReqTimeoutMillis
	}
	if cfg.MaxNumRetries == 0 {
		cfg.MaxNumRetries = defaultMaxNumRetries
	}
	if cfg.RetryBaseMs == 0 {
		cfg.RetryBaseMs = defaultRetryBaseMs
	}
	if cfg.RetryBackoffMs == 0 {
		cfg.RetryBackoffMs = defaultRetryBackoffMs
	}
	if cfg.RetryCeilingMs == 0 {
		cfg.RetryCeilingMs = defaultRetryCeilingMs
	}

	var limiter *rate.Limiter
	if cfg.MaxRequestsPerSecond > 0 {
		burst := int(cfg.MaxRequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSecond), burst)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.HTTPReqTimeoutMillis) * time.Millisecond,
		},
		url:            u,
		bearerToken:    cfg.BearerToken,
		maxNumRetries:  cfg.MaxNumRetries,
		retryBaseMs:    cfg.RetryBaseMs,
		retryBackoffMs: cfg.RetryBackoffMs,
		retryCeilingMs: cfg.RetryCeilingMs,
		limiter:        limiter,
	}, nil
}

// withRetry runs fn up to maxNumRetries times with additive backoff and
// uniform jitter. Every failure is retryable at this layer; the returned
// error joins all attempt errors.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	base := c.retryBaseMs
	var errs []error

	for attempt := 0; attempt < c.maxNumRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				errs = append(errs, err)
				return errors.Join(errs...)
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		errs = append(errs, err)

		if attempt == c.maxNumRetries-1 {
			break
		}
		log.Printf("[client] %s failed (attempt %d/%d), retrying: %v", op, attempt+1, c.maxNumRetries, err)

		delay := retryDelay(base, c.retryBackoffMs)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
			return errors.Join(errs...)
		}
		base = min(base+c.retryBackoffMs, c.retryCeilingMs)
	}

	return errors.Join(errs...)
}

// retryDelay is base plus a uniform jitter in [0, backoff) milliseconds.
func retryDelay(baseMs, backoffMs uint64) time.Duration {
	jitter := uint64(0)
	if backoffMs > 0 {
		jitter = rand.Uint64N(backoffMs)
	}
	return time.Duration(baseMs+jitter) * time.Millisecond
}

// GetHeight returns the archive's current highest available block, or 0 if
// the archive reports none.
func (c *Client) GetHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := c.withRetry(ctx, "get height", func() error {
		h, err := c.getHeightOnce(ctx)
		if err != nil {
			return err
		}
		height = h
		return nil
	})
	return height, err
}

func (c *Client) getHeightOnce(ctx context.Context) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url.JoinPath("height").String(), nil)
	if err != nil {
		return 0, &TransportError{Err: err}
	}
	c.setHeaders(req)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &TransportError{Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(res.Body)
		return 0, &TransportError{Status: res.StatusCode, Body: string(body)}
	}

	var height ArchiveHeight
	if err := json.NewDecoder(res.Body).Decode(&height); err != nil {
		return 0, &DecodeError{Err: err}
	}
	if height.Height == nil {
		return 0, nil
	}
	return *height.Height, nil
}

// GetArrow runs one non-streaming query against the archive. The query's
// block range is sent as given; no partitioning happens. Retried per the
// client's retry policy.
func (c *Client) GetArrow(ctx context.Context, query *Query) (*ArrowResponse, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}
	resp, _, err := c.getArrowSized(ctx, query)
	return resp, err
}

// getArrowSized additionally reports the raw response body size, which the
// stream layer feeds into adaptive batch sizing.
func (c *Client) getArrowSized(ctx context.Context, query *Query) (*ArrowResponse, uint64, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, 0, &ConfigError{Msg: fmt.Sprintf("serialize query: %v", err)}
	}

	var resp *ArrowResponse
	var size uint64
	err = c.withRetry(ctx, "run query", func() error {
		r, n, err := c.getArrowOnce(ctx, body)
		if err != nil {
			return err
		}
		resp = r
		size = n
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return resp, size, nil
}

func (c *Client) getArrowOnce(ctx context.Context, body []byte) (*ArrowResponse, uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url.JoinPath("query", "arrow-ipc").String(), bytes.NewReader(body))
	if err != nil {
		return nil, 0, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &TransportError{Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		text, _ := io.ReadAll(res.Body)
		return nil, 0, &TransportError{Status: res.StatusCode, Body: string(text)}
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, 0, &TransportError{Err: err}
	}

	resp, err := parseQueryResponse(raw)
	if err != nil {
		return nil, 0, err
	}
	return resp, uint64(len(raw)), nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
}

// Get runs one non-streaming query and decodes the result into typed rows.
func (c *Client) Get(ctx context.Context, query *Query) (*QueryResponse, error) {
	arrowResponse, err := c.GetArrow(ctx, query)
	if err != nil {
		return nil, err
	}
	defer arrowResponse.Release()
	return queryResponseFromArrow(arrowResponse), nil
}

// GetEvents runs one non-streaming query and joins logs to their
// transactions and blocks. The field selection is augmented with the join
// columns first.
func (c *Client) GetEvents(ctx context.Context, query *Query) (*EventResponse, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}
	q := *query
	addEventJoinFields(&q)
	arrowResponse, err := c.GetArrow(ctx, &q)
	if err != nil {
		return nil, err
	}
	defer arrowResponse.Release()
	return eventResponseFromArrow(arrowResponse), nil
}
