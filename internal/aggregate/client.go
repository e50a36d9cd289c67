package aggregate

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/common"
	"github.com/droverhq/drover/internal/interfaces"
	"github.com/droverhq/drover/internal/models"
)

// Client talks to the UI aggregate service over HTTP. Transient
// failures (transport errors, 5xx) are retried with bounded exponential
// backoff and jitter; 404 and 401/403 surface immediately without
// retry. Every call carries bearer auth.
type Client struct {
	http        *resty.Client
	maxAttempts int
	logger      arbor.ILogger
}

// NewClient creates an aggregate client from configuration
func NewClient(config *common.AggregateConfig, logger arbor.ILogger) *Client {
	httpClient := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout.Std()).
		SetAuthToken(config.BearerToken).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(config.MaxAttempts - 1).
		SetRetryWaitTime(config.RetryWaitMin.Std()).
		SetRetryMaxWaitTime(config.RetryWaitMax.Std()).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{
		http:        httpClient,
		maxAttempts: config.MaxAttempts,
		logger:      logger,
	}
}

// classify maps a completed response to the error taxonomy. A nil
// return means the call succeeded.
func (c *Client) classify(resp *resty.Response, err error, endpoint string) error {
	if err != nil {
		return &interfaces.TransientFetchError{
			Endpoint: endpoint,
			Attempts: c.maxAttempts,
			Err:      err,
		}
	}

	code := resp.StatusCode()
	switch {
	case code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &interfaces.AuthenticationError{StatusCode: code, Endpoint: endpoint}
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", interfaces.ErrAggregateNotFound, endpoint)
	case code >= http.StatusInternalServerError:
		// Retries are exhausted by the time we see this
		return &interfaces.TransientFetchError{
			StatusCode: code,
			Endpoint:   endpoint,
			Attempts:   c.maxAttempts,
			Err:        fmt.Errorf("server error: %s", resp.Status()),
		}
	default:
		return fmt.Errorf("unexpected status %d from %s: %s", code, endpoint, resp.String())
	}
}

// FetchAggregate returns the entity list and task options for one
// (kind, task_id).
func (c *Client) FetchAggregate(ctx context.Context, kind string, taskID int) (*models.Aggregate, error) {
	endpoint := fmt.Sprintf("/api/%s/%d/aggregate", kind, taskID)

	var agg models.Aggregate
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&agg).
		Get(endpoint)

	if cerr := c.classify(resp, err, endpoint); cerr != nil {
		return nil, cerr
	}

	c.logger.Debug().
		Str("kind", kind).
		Int("task_id", taskID).
		Int("entities", len(agg.Entities)).
		Msg("Fetched aggregate")

	return &agg, nil
}

// PushStatus updates task-level status/log
func (c *Client) PushStatus(ctx context.Context, kind string, taskID int, update interfaces.StatusUpdate) error {
	endpoint := fmt.Sprintf("/api/%s/%d/status", kind, taskID)

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(update).
		Post(endpoint)

	return c.classify(resp, err, endpoint)
}

// PushEntityStatus updates one entity's status/log
func (c *Client) PushEntityStatus(ctx context.Context, kind string, entityTaskID int, update interfaces.EntityStatusUpdate) error {
	endpoint := fmt.Sprintf("/api/%s/accounts/%d/status", kind, entityTaskID)

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(update).
		Post(endpoint)

	return c.classify(resp, err, endpoint)
}

// PushEntityCounters sends additive numeric deltas for one entity. Each
// logical send carries one idempotency key, reused verbatim across
// retry attempts, so a retried request after a lost ack cannot
// double-count on the server.
func (c *Client) PushEntityCounters(ctx context.Context, kind string, entityTaskID int, deltas map[string]int) error {
	if len(deltas) == 0 {
		return nil
	}
	endpoint := fmt.Sprintf("/api/%s/accounts/%d/counters", kind, entityTaskID)

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Idempotency-Key", uuid.New().String()).
		SetBody(deltas).
		Post(endpoint)

	return c.classify(resp, err, endpoint)
}

// DownloadMedia streams a media object by reference
func (c *Client) DownloadMedia(ctx context.Context, mediaRef string) ([]byte, error) {
	endpoint := fmt.Sprintf("/api/media/%s/download", mediaRef)

	resp, err := c.http.R().
		SetContext(ctx).
		Get(endpoint)

	if cerr := c.classify(resp, err, endpoint); cerr != nil {
		return nil, cerr
	}

	return resp.Body(), nil
}
