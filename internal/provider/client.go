package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// httpClient performs GET requests against a provider REST API, retrying
// transient failures (network errors, 502/503/504) with exponential
// backoff. The whole call, retries included, is bounded by timeout.
type httpClient struct {
	client   *http.Client
	timeout  time.Duration
	maxRetry uint64
	decorate func(*http.Request) // provider-specific auth headers
}

func newHTTPClient(timeout time.Duration, decorate func(*http.Request)) *httpClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpClient{
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
		maxRetry: 2,
		decorate: decorate,
	}
}

type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.code, e.url)
}

// get returns the response body of a successful GET.
func (c *httpClient) get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetry), ctx)

	return backoff.RetryWithData(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if c.decorate != nil {
			c.decorate(req)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusBadGateway,
			resp.StatusCode == http.StatusServiceUnavailable,
			resp.StatusCode == http.StatusGatewayTimeout:
			return nil, &statusError{code: resp.StatusCode, url: url}
		default:
			return nil, backoff.Permanent(&statusError{code: resp.StatusCode, url: url})
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return body, nil
	}, policy)
}

// getJSON decodes a successful GET response into out.
func (c *httpClient) getJSON(ctx context.Context, url string, out any) error {
	body, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
