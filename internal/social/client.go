// internal/social/client.go
package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Client fetches engagement metrics from the external social-media API.
// Every request passes through a local rate budget, a circuit breaker and
// bounded retries for transient upstream failures. Rate-limit responses are
// surfaced as ErrRateLimited and never retried in a tight loop.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Entry
}

// NewClient creates a social API client. requestsPerHour caps outbound
// calls to stay inside the externally imposed window.
func NewClient(baseURL, token string, requestsPerHour int, logger *logrus.Entry) *Client {
	if requestsPerHour <= 0 {
		requestsPerHour = 120
	}
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
		token:      token,
		limiter:    rate.NewLimiter(rate.Every(time.Hour/time.Duration(requestsPerHour)), requestsPerHour/10+1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "social-api",
			Timeout: 2 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("social api circuit breaker state changed")
			},
		}),
		logger: logger,
	}
}

// Fetch returns the current engagement snapshot for a post.
func (c *Client) Fetch(ctx context.Context, postID string) (*Engagement, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate budget: %w", err)
	}

	result, err := c.breaker.Execute(func() (any, error) {
		var eng *Engagement
		err := retry.Do(
			func() error {
				var fetchErr error
				eng, fetchErr = c.fetchOnce(ctx, postID)
				if fetchErr != nil {
					// Rate limits and deleted posts are terminal for
					// this call; only transient failures retry.
					if errors.Is(fetchErr, ErrRateLimited) || errors.Is(fetchErr, ErrPostGone) {
						return retry.Unrecoverable(fetchErr)
					}
					return fetchErr
				}
				return nil
			},
			retry.Attempts(3),
			retry.Delay(500*time.Millisecond),
			retry.MaxJitter(250*time.Millisecond),
			retry.Context(ctx),
			retry.OnRetry(func(n uint, retryErr error) {
				c.logger.WithFields(logrus.Fields{
					"post_id": postID,
					"attempt": n,
					"error":   retryErr.Error(),
				}).Info("retrying engagement fetch")
			}),
		)
		return eng, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("social api circuit open: %w", err)
		}
		return nil, err
	}
	return result.(*Engagement), nil
}

func (c *Client) fetchOnce(ctx context.Context, postID string) (*Engagement, error) {
	url := fmt.Sprintf("%s/v2/posts/%s/engagement", c.baseURL, postID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch engagement: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrPostGone
	case http.StatusTooManyRequests:
		if reset := resp.Header.Get("Retry-After"); reset != "" {
			return nil, fmt.Errorf("%w: retry after %ss", ErrRateLimited, reset)
		}
		return nil, ErrRateLimited
	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var eng Engagement
	if err := json.NewDecoder(resp.Body).Decode(&eng); err != nil {
		return nil, fmt.Errorf("decode engagement: %w", err)
	}
	eng.PostID = postID
	return &eng, nil
}
