package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/wonny/stockleague/backend/internal/contracts"
	"github.com/wonny/stockleague/backend/pkg/config"
	"github.com/wonny/stockleague/backend/pkg/httputil"
	"github.com/wonny/stockleague/backend/pkg/logger"
	"github.com/wonny/stockleague/backend/pkg/redis"
)

// Series response keys and per-bar field names (Alpha-Vantage-shaped)
const (
	keyMonthlySeries = "Monthly Adjusted Time Series"
	keyDailySeries   = "Time Series (Daily)"

	fieldOpen  = "1. open"
	fieldClose = "4. close"
	fieldSplit = "8. split coefficient"
)

// Client is the rate-limited market-data client.
// ⭐ SSOT: all provider HTTP calls go through this client, and every
// call is charged against the shared budget before it is issued.
type Client struct {
	cfg        config.ProviderConfig
	httpClient *httputil.Client
	budget     *Budget
	logger     *logger.Logger
	profiles   *redis.Cache // optional overview side cache
}

// NewClient creates a new provider client
func NewClient(cfg config.ProviderConfig, log *logger.Logger, budget *Budget) *Client {
	httpClient := httputil.New(log, cfg.CallTimeout)
	// Retrying inside the call would double-charge the budget; refusals
	// and retries are handled by the refresh path instead.
	httpClient.DisableRetry()

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		budget:     budget,
		logger:     log,
	}
}

// Budget exposes the shared budget for callers that only need to probe it
func (c *Client) Budget() *Budget {
	return c.budget
}

// Fetch retrieves a raw price series for the ticker. The call is
// refused locally, without contacting the provider, when the budget or
// cooldown disallows it.
func (c *Client) Fetch(ctx context.Context, ticker string, kind contracts.SeriesKind) (*contracts.RawSeries, error) {
	if err := c.budget.TryAcquire(); err != nil {
		return nil, err
	}

	function := "TIME_SERIES_MONTHLY_ADJUSTED"
	seriesKey := keyMonthlySeries
	if kind == contracts.SeriesDaily {
		function = "TIME_SERIES_DAILY"
		seriesKey = keyDailySeries
	}

	body, err := c.call(ctx, url.Values{
		"function": {function},
		"symbol":   {ticker},
	})
	if err != nil {
		return nil, err
	}

	points, err := c.parseSeries(body, seriesKey)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"ticker": ticker,
		"kind":   string(kind),
		"count":  len(points),
	}).Debug("Fetched series")

	return &contracts.RawSeries{
		Ticker: ticker,
		Kind:   kind,
		Points: points,
	}, nil
}

// call issues one budgeted GET and checks the body for rate-limit text
func (c *Client) call(ctx context.Context, params url.Values) ([]byte, error) {
	params.Set("apikey", c.cfg.APIKey)
	fullURL := c.cfg.BaseURL + "?" + params.Encode()

	resp, err := c.httpClient.Get(ctx, fullURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.budget.ReportProviderLimit(0, 0)
		return nil, fmt.Errorf("%w: HTTP 429", ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	if err := c.checkLimitSignal(body); err != nil {
		return nil, err
	}

	return body, nil
}

// checkLimitSignal inspects free-text error/informational fields for
// rate-limit phrases and adopts any stated limits permanently
func (c *Client) checkLimitSignal(body []byte) error {
	var envelope struct {
		Note         string `json:"Note"`
		Information  string `json:"Information"`
		ErrorMessage string `json:"Error Message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil // not an object envelope; let the series parser decide
	}

	for _, text := range []string{envelope.Note, envelope.Information, envelope.ErrorMessage} {
		if text == "" {
			continue
		}
		if minuteLimit, dayLimit, limited := ParseLimitText(text); limited {
			c.budget.ReportProviderLimit(minuteLimit, dayLimit)
			c.logger.WithFields(map[string]interface{}{
				"minute_limit": minuteLimit,
				"day_limit":    dayLimit,
			}).Warn("Provider signalled rate limit, adopting ceilings")
			return fmt.Errorf("%w: %s", ErrRateLimited, text)
		}
	}

	if envelope.ErrorMessage != "" {
		return fmt.Errorf("%w: %s", ErrUnavailable, envelope.ErrorMessage)
	}

	return nil
}

// parseSeries decodes the dated bar map under seriesKey into an
// ascending PricePoint slice
func (c *Client) parseSeries(body []byte, seriesKey string) ([]contracts.PricePoint, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", ErrUnavailable, err)
	}

	raw, ok := envelope[seriesKey]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrUnavailable, seriesKey)
	}

	var bars map[string]map[string]string
	if err := json.Unmarshal(raw, &bars); err != nil {
		return nil, fmt.Errorf("%w: decode series: %v", ErrUnavailable, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: empty series", ErrUnavailable)
	}

	points := make([]contracts.PricePoint, 0, len(bars))
	for dateStr, fields := range bars {
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}

		closePrice, err := strconv.ParseFloat(fields[fieldClose], 64)
		if err != nil || closePrice <= 0 {
			continue
		}

		point := contracts.PricePoint{
			Date:             date,
			Close:            closePrice,
			SplitCoefficient: 1,
		}
		if openStr, ok := fields[fieldOpen]; ok {
			if openPrice, err := strconv.ParseFloat(openStr, 64); err == nil {
				point.Open = openPrice
			}
		}
		if splitStr, ok := fields[fieldSplit]; ok {
			if coeff, err := strconv.ParseFloat(splitStr, 64); err == nil && coeff > 0 {
				point.SplitCoefficient = coeff
			}
		}

		points = append(points, point)
	}

	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no parseable bars", ErrUnavailable)
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})

	return points, nil
}
