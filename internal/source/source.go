// Package source talks to the external computation network's stats API.
// Only the interface matters to the rest of the system; the HTTP client
// here is a minimal implementation with a bounded timeout and rate
// limiting, and every failure surfaces as a typed connectivity error.
package source

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/teamfold/teamfold-server/internal/domain"
	apperrors "github.com/teamfold/teamfold-server/internal/errors"
)

// StatsSource returns a user's current cumulative totals on the external
// computation network.
type StatsSource interface {
	// GetTotalStats fetches the lifetime points and completed units for
	// the user's remote identity. Fails with an EXTERNAL_UNAVAILABLE
	// error when the network cannot be reached in time.
	GetTotalStats(ctx context.Context, user domain.User) (domain.UserStats, error)
}

const (
	defaultRPS   = 4.0
	defaultBurst = 8

	defaultTimeout = 10 * time.Second
)

// Client is a rate-limited HTTP client for the external stats API.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	baseURL string
	logger  *slog.Logger
}

// Options tunes the client. Zero values fall back to defaults.
type Options struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// NewClient creates a stats source client for the given API base URL.
func NewClient(baseURL string, logger *slog.Logger, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = defaultRPS
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}

	return &Client{
		http: &http.Client{
			Timeout: opts.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		baseURL: baseURL,
		logger:  logger,
	}
}

// userStatsResponse is the wire shape of the external stats endpoint.
type userStatsResponse struct {
	EarnedPoints int64 `json:"earnedPoints"`
	EarnedUnits  int64 `json:"earnedUnits"`
}

// GetTotalStats implements StatsSource.
func (c *Client) GetTotalStats(ctx context.Context, user domain.User) (domain.UserStats, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.UserStats{}, fmt.Errorf("rate limit wait: %w", err)
	}

	endpoint := fmt.Sprintf("%s/user/%s/stats?passkey=%s",
		c.baseURL, url.PathEscape(user.FoldingName), url.QueryEscape(user.Passkey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "TeamFold/1.0")

	c.logger.Debug("stats source request", "user", user.FoldingName)

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.UserStats{}, apperrors.ExternalUnavailable(c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.UserStats{}, apperrors.ExternalUnavailable(c.baseURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		return domain.UserStats{}, apperrors.ExternalUnavailable(c.baseURL,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body))
	}

	var parsed userStatsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.UserStats{}, apperrors.ExternalUnavailable(c.baseURL,
			fmt.Errorf("malformed response: %w", err))
	}

	return domain.UserStats{
		UserID:    user.ID,
		Timestamp: time.Now().UTC(),
		Points:    parsed.EarnedPoints,
		Units:     parsed.EarnedUnits,
	}, nil
}
