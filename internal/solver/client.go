package solver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"

	"github.com/chronoplan/scheduler/internal/model"
)

// HTTPClient submits solve requests to the external solver over HTTP. The
// solver acknowledges synchronously and delivers results out of band to the
// callback endpoint.
type HTTPClient struct {
	client      *resty.Client
	maxAttempts uint64
}

// NewHTTPClient constructs a client against baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second)
	return &HTTPClient{client: c, maxAttempts: 3}
}

// Submit posts the request, retrying transient failures with exponential
// backoff. A 2xx acknowledgement means only that the solver accepted the
// work, not that a solution exists.
func (c *HTTPClient) Submit(ctx context.Context, req *model.SolveRequest) error {
	op := func() error {
		resp, err := c.client.R().
			SetContext(ctx).
			SetBody(req).
			Post("/api/solve")
		if err != nil {
			return err
		}
		code := resp.StatusCode()
		switch {
		case code < 300:
			return nil
		case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500:
			return fmt.Errorf("solver HTTP %d", code)
		default:
			return backoff.Permanent(fmt.Errorf("solver rejected request: HTTP %d: %s", code, resp.String()))
		}
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxAttempts-1), ctx)
	return backoff.Retry(op, bo)
}
