package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bhtaylor94/apex/internal/pkg/apperrors"
	"github.com/bhtaylor94/apex/internal/pkg/logger"
	"github.com/bhtaylor94/apex/internal/pkg/metrics"
)

const (
	// All REST paths are relative to this versioned prefix. Signatures are
	// computed over the full prefixed path.
	apiPrefix = "/trade-api/v2"

	requestTimeout = 30 * time.Second
	maxAttempts    = 3
)

var defaultBackoff = 500 * time.Millisecond

// ClientConfig configures an exchange client. Credential may be nil for a
// public-data-only client.
type ClientConfig struct {
	BaseURL    string
	Credential *Credential

	// Tokens per second for the read and write operation classes.
	// Zero values fall back to the exchange basic tier (20/10).
	ReadRate  float64
	WriteRate float64
}

// Client talks to the exchange REST API. It is the only component that
// touches the network: signing, rate limiting, retry and pagination all
// live behind it.
type Client struct {
	baseURL string
	cred    *Credential
	http    *http.Client
	limits  *rateLimiters

	baseBackoff time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	readRate := cfg.ReadRate
	if readRate <= 0 {
		readRate = 20
	}
	writeRate := cfg.WriteRate
	if writeRate <= 0 {
		writeRate = 10
	}
	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		cred:        cfg.Credential,
		http:        &http.Client{Timeout: requestTimeout},
		limits:      newRateLimiters(readRate, writeRate),
		baseBackoff: defaultBackoff,
	}
}

// Credential exposes the client's credential for components that sign
// outside the REST transport (the websocket stream).
func (c *Client) Credential() *Credential {
	return c.cred
}

type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// execute runs one API call: rate-limit token, signed headers, HTTP round
// trip, and a bounded retry loop. 429 and transport-level failures are
// retried with exponential backoff; each retry re-signs because the
// timestamp has moved on. Any other status >= 400 fails immediately.
func (c *Client) execute(ctx context.Context, method, path string, params url.Values, body any, authenticated bool) (json.RawMessage, error) {
	if err := c.limits.wait(ctx, method); err != nil {
		return nil, err
	}

	reqURL := c.baseURL + apiPrefix + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, apperrors.New(apperrors.ErrInvalidRequest, "encode request body", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var reader io.Reader
		if bodyBytes != nil {
			reader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
		if err != nil {
			return nil, apperrors.New(apperrors.ErrInvalidRequest, "build request", err)
		}

		if authenticated && c.cred != nil {
			headers, err := c.cred.AuthHeaders(method, apiPrefix+path)
			if err != nil {
				return nil, err
			}
			for k, v := range headers {
				req.Header.Set(k, v)
			}
		} else {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = apperrors.NewNetwork("request failed", err)
			metrics.APIRetries.WithLabelValues("network").Inc()
			logger.Warn("connection error, backing off",
				"method", method, "path", path, "attempt", attempt, "error", err)
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		metrics.APIRequests.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusTooManyRequests {
			metrics.APIRetries.WithLabelValues("rate_limited").Inc()
			logger.Warn("rate limited by exchange, backing off",
				"method", method, "path", path, "attempt", attempt)
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		if readErr != nil {
			lastErr = apperrors.NewNetwork("read response body", readErr)
			metrics.APIRetries.WithLabelValues("network").Inc()
			logger.Warn("response read error, backing off",
				"method", method, "path", path, "attempt", attempt, "error", readErr)
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode >= 400 {
			// Client-side fault (bad params, auth, insufficient funds):
			// retrying will not help.
			var parsed apiErrorBody
			_ = json.Unmarshal(raw, &parsed)
			msg := parsed.Message
			if msg == "" {
				msg = truncate(string(raw), 200)
			}
			return nil, apperrors.NewAPIError(resp.StatusCode, msg, string(raw))
		}

		if resp.StatusCode == http.StatusNoContent {
			return nil, nil
		}
		return raw, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, apperrors.NewNetwork(fmt.Sprintf("max retries exceeded (%d attempts)", maxAttempts), nil)
}

// backoff sleeps base * 2^attempt, honoring cancellation.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	timer := time.NewTimer(c.baseBackoff * (1 << attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) get(ctx context.Context, path string, params url.Values, authenticated bool, out any) error {
	raw, err := c.execute(ctx, http.MethodGet, path, params, nil, authenticated)
	if err != nil {
		return err
	}
	return decode(raw, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	raw, err := c.execute(ctx, http.MethodPost, path, nil, body, true)
	if err != nil {
		return err
	}
	return decode(raw, out)
}

func (c *Client) delete(ctx context.Context, path string, out any) error {
	raw, err := c.execute(ctx, http.MethodDelete, path, nil, nil, true)
	if err != nil {
		return err
	}
	return decode(raw, out)
}

func decode(raw json.RawMessage, out any) error {
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.New(apperrors.ErrAPI, "decode response", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
