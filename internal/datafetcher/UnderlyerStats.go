package datafetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arcvault/yielder/internal/logger"
	"github.com/arcvault/yielder/internal/types"
)

var statsLogger = logger.GetForComponent("underlyer_stats_fetcher")
var ErrStatsAPIResponse = errors.New("stats API response validation failed")

const (
	STATS_API_ROUTE = "/stats/current"
	STATS_TIMEOUT   = 30 * time.Second
)

// UnderlyerStatsProvider supplies pool-level reserve/fee data from the
// external DEX/LST stats aggregator. The payload is passed through into the
// calculator output untouched.
type UnderlyerStatsProvider interface {
	Current(ctx context.Context) (types.UnderlyerStats, error)
}

// HTTPUnderlyerStats fetches underlyer stats over the aggregator's HTTP API.
type HTTPUnderlyerStats struct {
	baseURL string
	client  *http.Client
}

// NewHTTPUnderlyerStats creates a provider bound to the aggregator base URL.
func NewHTTPUnderlyerStats(baseURL string) (*HTTPUnderlyerStats, error) {
	if baseURL == "" {
		return nil, errors.New("stats API base URL cannot be empty")
	}
	return &HTTPUnderlyerStats{
		baseURL: baseURL,
		client:  &http.Client{Timeout: STATS_TIMEOUT},
	}, nil
}

// Current fetches the latest underlyer stats payload with strict validation.
func (p *HTTPUnderlyerStats) Current(ctx context.Context) (types.UnderlyerStats, error) {
	url := p.baseURL + STATS_API_ROUTE

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build stats request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		statsLogger.Error().Err(err).Str("url", url).Msg("HTTP request failed for underlyer stats")
		return nil, fmt.Errorf("underlyer stats request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statsLogger.Error().Int("statusCode", resp.StatusCode).Str("url", url).Msg("Unexpected status from stats API")
		return nil, fmt.Errorf("%w: status %d", ErrStatsAPIResponse, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read underlyer stats response: %w", err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty response body", ErrStatsAPIResponse)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: response is not valid JSON", ErrStatsAPIResponse)
	}

	statsLogger.Debug().Int("bytes", len(body)).Msg("Fetched underlyer stats payload")
	return types.UnderlyerStats(body), nil
}
