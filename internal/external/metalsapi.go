package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/aurumlab/gsr-backend/internal/httputil"
	"github.com/aurumlab/gsr-backend/internal/models"
	"github.com/aurumlab/gsr-backend/internal/series"
)

const (
	maxFetchAttempts = 5
	baseBackoff      = 700 * time.Millisecond
)

// verdict classifies one attempt against the price API.
type verdict int

const (
	verdictSuccess verdict = iota
	verdictRetry
	verdictFatal
)

type attemptResult struct {
	verdict    verdict
	status     int
	retryAfter time.Duration
	records    []models.PriceRecord
	err        error
}

type MetalsClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	throttle   *Throttle

	// sleep is swappable so tests can observe backoff without waiting it out.
	sleep func(ctx context.Context, d time.Duration) error
}

type MetalsOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	Sleep      func(ctx context.Context, d time.Duration) error
}

func NewMetalsClient(apiKey string, opts MetalsOptions) *MetalsClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://metals-api.com/api"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	return &MetalsClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		throttle:   NewThrottle(),
		sleep:      sleep,
	}
}

func (c *MetalsClient) Name() string { return "metals-api" }

// Throttle exposes the client's pacing state so callers fetching many
// ranges can pause between calls.
func (c *MetalsClient) Throttle() *Throttle { return c.throttle }

// FetchRange pulls daily USD gold and silver closes for the inclusive date
// range in a single timeframe call. Overload signals (429, 5xx, or a rate
// limit reported inside a 200 body) are retried with exponential backoff,
// honoring Retry-After when it asks for longer; anything else fails on the
// spot. Days the API cannot price for both metals are skipped.
func (c *MetalsClient) FetchRange(ctx context.Context, start, end string) ([]models.PriceRecord, error) {
	url := fmt.Sprintf("%s/timeframe?access_key=%s&base=USD&symbols=XAU,XAG&start_date=%s&end_date=%s",
		c.baseURL, c.apiKey, start, end)

	fmt.Printf("[FETCH] Requesting %s..%s from price API\n", start, end)

	var last attemptResult
	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		last = c.attempt(ctx, url, start)

		switch last.verdict {
		case verdictSuccess:
			fmt.Printf("[FETCH] %s..%s: %d priced days\n", start, end, len(last.records))
			return last.records, nil
		case verdictFatal:
			return nil, &models.FetchError{Status: last.status, Attempts: attempt, Cause: last.err}
		}

		if attempt == maxFetchAttempts {
			break
		}

		wait := baseBackoff << (attempt - 1)
		if last.retryAfter > wait {
			wait = last.retryAfter
		}
		c.throttle.RecordBackoff(wait)

		fmt.Printf("[RETRY] Price API attempt %d/%d failed: %v — backing off %s\n",
			attempt, maxFetchAttempts, last.err, wait)

		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	return nil, &models.FetchError{Status: last.status, Attempts: maxFetchAttempts, Cause: last.err}
}

func (c *MetalsClient) attempt(ctx context.Context, url, fallbackDate string) attemptResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return attemptResult{verdict: verdictFatal, err: fmt.Errorf("build request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return attemptResult{verdict: verdictRetry, err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return attemptResult{verdict: verdictRetry, status: resp.StatusCode, err: fmt.Errorf("read body: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return attemptResult{
			verdict:    verdictRetry,
			status:     resp.StatusCode,
			retryAfter: httputil.ParseRetryAfter(resp.Header.Get("Retry-After")),
			err:        fmt.Errorf("HTTP %d: %s", resp.StatusCode, trimBody(body)),
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return attemptResult{
			verdict: verdictFatal,
			status:  resp.StatusCode,
			err:     fmt.Errorf("HTTP %d: %s", resp.StatusCode, trimBody(body)),
		}
	}

	var data timeframeResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return attemptResult{verdict: verdictFatal, status: resp.StatusCode, err: fmt.Errorf("decode response: %w", err)}
	}

	if !data.Success {
		if data.Error.rateLimited() {
			return attemptResult{
				verdict: verdictRetry,
				status:  resp.StatusCode,
				err:     fmt.Errorf("api rate limit: %s", data.Error.describe()),
			}
		}
		return attemptResult{
			verdict: verdictFatal,
			status:  resp.StatusCode,
			err:     fmt.Errorf("api error: %s", data.Error.describe()),
		}
	}

	rates, err := data.ratesByDate(fallbackDate)
	if err != nil {
		return attemptResult{verdict: verdictFatal, status: resp.StatusCode, err: err}
	}

	return attemptResult{verdict: verdictSuccess, status: resp.StatusCode, records: recordsFromRates(rates)}
}

type timeframeResponse struct {
	Success bool            `json:"success"`
	Error   apiError        `json:"error"`
	Date    string          `json:"date"`
	Rates   json.RawMessage `json:"rates"`
}

// ratesByDate normalizes the two shapes the API emits: a per-date map of
// symbol rates for range requests, or a bare symbol map (plus a top-level
// date) when the range is a single day.
func (r timeframeResponse) ratesByDate(fallbackDate string) (map[string]map[string]float64, error) {
	if len(r.Rates) == 0 {
		return nil, nil
	}

	var byDate map[string]map[string]float64
	if err := json.Unmarshal(r.Rates, &byDate); err == nil {
		return byDate, nil
	}

	var single map[string]float64
	if err := json.Unmarshal(r.Rates, &single); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	day := r.Date
	if day == "" {
		day = fallbackDate
	}
	return map[string]map[string]float64{day: single}, nil
}

type apiError struct {
	Code int    `json:"code"`
	Type string `json:"type"`
	Info string `json:"info"`
}

func (e apiError) rateLimited() bool {
	s := strings.ToLower(e.Type + " " + e.Info)
	return strings.Contains(s, "rate limit") || strings.Contains(s, "rate_limit")
}

func (e apiError) describe() string {
	if e.Info != "" {
		return e.Info
	}
	if e.Type != "" {
		return e.Type
	}
	return fmt.Sprintf("code %d", e.Code)
}

func recordsFromRates(rates map[string]map[string]float64) []models.PriceRecord {
	records := make([]models.PriceRecord, 0, len(rates))
	for day, symbols := range rates {
		gold, ok := usdPrice(symbols, "USDXAU", "XAU")
		if !ok {
			continue
		}
		silver, ok := usdPrice(symbols, "USDXAG", "XAG")
		if !ok {
			continue
		}
		records = append(records, models.PriceRecord{Date: day, Gold: gold, Silver: silver})
	}
	return series.SortDedupe(records)
}

// usdPrice resolves a USD price for one metal. The API reports both a
// direct USD-per-ounce quote (USDXAU) and an ounces-per-USD rate (XAU);
// the direct quote wins and the rate is inverted as a fallback.
func usdPrice(symbols map[string]float64, direct, inverse string) (float64, bool) {
	if v, ok := symbols[direct]; ok && usable(v) {
		return v, true
	}
	if v, ok := symbols[inverse]; ok && usable(v) {
		return 1 / v, true
	}
	return 0, false
}

func usable(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// --- helpers ---

func trimBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
