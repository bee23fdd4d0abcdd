package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/stockleague/backend/internal/contracts"
	"github.com/wonny/stockleague/backend/pkg/redis"
)

// Overview lookups are best-effort: the core return/risk math never
// depends on them, and results are independently cacheable.

const overviewCacheTTL = 24 * time.Hour

// WithProfileCache attaches an optional Redis side cache for company
// profiles
func (c *Client) WithProfileCache(cache *redis.Cache) *Client {
	c.profiles = cache
	return c
}

// FetchOverview retrieves company-level fields (name, description,
// fundamentals). Budgeted identically to series calls. Falls back to
// scraping the configured profile page when the primary lookup fails.
func (c *Client) FetchOverview(ctx context.Context, ticker string) (*contracts.Overview, error) {
	if c.profiles != nil {
		var cached contracts.Overview
		if found, err := c.profiles.Get(ctx, redis.ProfileKey(ticker), &cached); err == nil && found {
			return &cached, nil
		}
	}

	overview, err := c.fetchOverviewAPI(ctx, ticker)
	if err != nil {
		if IsRateLimited(err) {
			return nil, err
		}
		// Secondary source; scrape errors are swallowed with the primary's
		if c.cfg.ProfileBaseURL != "" {
			if scraped, scrapeErr := c.scrapeProfile(ctx, ticker); scrapeErr == nil {
				overview, err = scraped, nil
			}
		}
	}
	if err != nil {
		return nil, err
	}

	if c.profiles != nil {
		_ = c.profiles.Set(ctx, redis.ProfileKey(ticker), overview, overviewCacheTTL)
	}

	return overview, nil
}

// fetchOverviewAPI queries the provider's OVERVIEW function
func (c *Client) fetchOverviewAPI(ctx context.Context, ticker string) (*contracts.Overview, error) {
	if err := c.budget.TryAcquire(); err != nil {
		return nil, err
	}

	body, err := c.call(ctx, url.Values{
		"function": {"OVERVIEW"},
		"symbol":   {ticker},
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Name                 string `json:"Name"`
		Description          string `json:"Description"`
		Sector               string `json:"Sector"`
		MarketCapitalization string `json:"MarketCapitalization"`
		PERatio              string `json:"PERatio"`
		DividendYield        string `json:"DividendYield"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode overview: %v", ErrUnavailable, err)
	}
	if payload.Name == "" {
		return nil, fmt.Errorf("%w: empty overview", ErrUnavailable)
	}

	overview := &contracts.Overview{
		Name:          payload.Name,
		Description:   payload.Description,
		Sector:        payload.Sector,
		MarketCap:     parseOptionalFloat(payload.MarketCapitalization),
		PERatio:       parseOptionalFloat(payload.PERatio),
		DividendYield: parseOptionalFloat(payload.DividendYield),
	}

	c.logger.WithField("ticker", ticker).Debug("Fetched overview")
	return overview, nil
}

// scrapeProfile pulls name/description from the configured profile page
func (c *Client) scrapeProfile(ctx context.Context, ticker string) (*contracts.Overview, error) {
	pageURL := fmt.Sprintf("%s/%s", strings.TrimRight(c.cfg.ProfileBaseURL, "/"), url.PathEscape(ticker))

	resp, err := c.httpClient.GetWithHeaders(ctx, pageURL, map[string]string{
		"User-Agent": "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
	})
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse profile page failed: %w", err)
	}

	name := strings.TrimSpace(doc.Find("h1").First().Text())
	if name == "" {
		return nil, fmt.Errorf("profile page missing company name")
	}

	description, _ := doc.Find(`meta[name="description"]`).Attr("content")
	sector := strings.TrimSpace(doc.Find(`[data-field="sector"]`).First().Text())

	c.logger.WithField("ticker", ticker).Debug("Scraped company profile")
	return &contracts.Overview{
		Name:        name,
		Description: strings.TrimSpace(description),
		Sector:      sector,
	}, nil
}

// parseOptionalFloat parses provider numeric strings; "None" and empty
// values become nil
func parseOptionalFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") || s == "-" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
