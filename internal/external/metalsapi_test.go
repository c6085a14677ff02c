package external_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aurumlab/gsr-backend/internal/external"
	"github.com/aurumlab/gsr-backend/internal/models"
)

func recordSleeps(sleeps *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
}

func newTestClient(t *testing.T, srv *httptest.Server, sleeps *[]time.Duration) *external.MetalsClient {
	t.Helper()
	return external.NewMetalsClient("test-key", external.MetalsOptions{
		BaseURL: srv.URL,
		Sleep:   recordSleeps(sleeps),
	})
}

func TestFetchRange_PrefersDirectQuotes(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if got := r.URL.Query().Get("access_key"); got != "test-key" {
			t.Errorf("expected access_key in query, got %q", got)
		}
		w.Write([]byte(`{"success":true,"rates":{
			"2024-01-03":{"USDXAU":2040.0,"USDXAG":23.0},
			"2024-01-02":{"USDXAU":2062.5,"USDXAG":23.5,"XAU":0.000485,"XAG":0.0426}
		}}`))
	}))
	defer srv.Close()

	var sleeps []time.Duration
	client := newTestClient(t, srv, &sleeps)

	records, err := client.FetchRange(context.Background(), "2024-01-02", "2024-01-03")
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}
	if requests.Load() != 1 {
		t.Fatalf("expected a single GET for the range, got %d", requests.Load())
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Date != "2024-01-02" || records[1].Date != "2024-01-03" {
		t.Fatalf("records not sorted by date: %+v", records)
	}
	// The direct USD quote must win over inverting the per-USD rate.
	if records[0].Gold != 2062.5 || records[0].Silver != 23.5 {
		t.Fatalf("expected direct quotes 2062.5/23.5, got %f/%f", records[0].Gold, records[0].Silver)
	}
	if len(sleeps) != 0 {
		t.Fatalf("no backoff expected on success, slept %v", sleeps)
	}
}

func TestFetchRange_InvertsPerUSDRates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"rates":{
			"2024-01-02":{"XAU":0.00048828125,"XAG":0.03125}
		}}`))
	}))
	defer srv.Close()

	var sleeps []time.Duration
	client := newTestClient(t, srv, &sleeps)

	records, err := client.FetchRange(context.Background(), "2024-01-02", "2024-01-02")
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Gold != 2048 || records[0].Silver != 32 {
		t.Fatalf("expected inverted rates 2048/32, got %f/%f", records[0].Gold, records[0].Silver)
	}
}

func TestFetchRange_SingleDayRatesObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Single-day requests come back with a bare symbol map.
		w.Write([]byte(`{"success":true,"date":"2024-01-02","rates":{"USDXAU":2062.5,"USDXAG":23.5}}`))
	}))
	defer srv.Close()

	var sleeps []time.Duration
	client := newTestClient(t, srv, &sleeps)

	records, err := client.FetchRange(context.Background(), "2024-01-02", "2024-01-02")
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}
	if len(records) != 1 || records[0].Date != "2024-01-02" {
		t.Fatalf("expected the single day priced, got %+v", records)
	}
	if records[0].Gold != 2062.5 || records[0].Silver != 23.5 {
		t.Fatalf("unexpected prices: %+v", records[0])
	}
}

func TestFetchRange_SkipsUnpricedDays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"rates":{
			"2024-01-02":{"USDXAU":2062.5,"USDXAG":23.5},
			"2024-01-03":{"USDXAU":2040.0},
			"2024-01-04":{"USDXAU":0,"USDXAG":23.1},
			"2024-01-05":{"USDXAU":2050.0,"USDXAG":-1,"XAG":0}
		}}`))
	}))
	defer srv.Close()

	var sleeps []time.Duration
	client := newTestClient(t, srv, &sleeps)

	records, err := client.FetchRange(context.Background(), "2024-01-02", "2024-01-05")
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}
	if len(records) != 1 || records[0].Date != "2024-01-02" {
		t.Fatalf("expected only the fully priced day to survive, got %+v", records)
	}
}

func TestFetchRange_BacksOffOn429(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"success":true,"rates":{"2024-01-02":{"USDXAU":2062.5,"USDXAG":23.5}}}`))
	}))
	defer srv.Close()

	var sleeps []time.Duration
	client := newTestClient(t, srv, &sleeps)

	records, err := client.FetchRange(context.Background(), "2024-01-02", "2024-01-02")
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after retries, got %d", len(records))
	}
	if requests.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", requests.Load())
	}
	if len(sleeps) != 2 || sleeps[0] != 700*time.Millisecond || sleeps[1] != 1400*time.Millisecond {
		t.Fatalf("expected backoffs [700ms 1400ms], got %v", sleeps)
	}
	// Both backoffs feed the throttle; the larger one sticks.
	if got := client.Throttle().CurrentDelay(); got != 1400*time.Millisecond {
		t.Fatalf("expected throttle at 1.4s, got %s", got)
	}
}

func TestFetchRange_HonorsRetryAfter(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"success":true,"rates":{"2024-01-02":{"USDXAU":2062.5,"USDXAG":23.5}}}`))
	}))
	defer srv.Close()

	var sleeps []time.Duration
	client := newTestClient(t, srv, &sleeps)

	if _, err := client.FetchRange(context.Background(), "2024-01-02", "2024-01-02"); err != nil {
		t.Fatalf("FetchRange: %v", err)
	}
	if len(sleeps) != 1 || sleeps[0] != 3*time.Second {
		t.Fatalf("expected Retry-After to beat the 700ms backoff, got %v", sleeps)
	}
}

func TestFetchRange_RateLimitInsideOK(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Write([]byte(`{"success":false,"error":{"code":106,"type":"rate_limit_reached","info":"request allowance exceeded"}}`))
			return
		}
		w.Write([]byte(`{"success":true,"rates":{"2024-01-02":{"USDXAU":2062.5,"USDXAG":23.5}}}`))
	}))
	defer srv.Close()

	var sleeps []time.Duration
	client := newTestClient(t, srv, &sleeps)

	records, err := client.FetchRange(context.Background(), "2024-01-02", "2024-01-02")
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if requests.Load() != 2 {
		t.Fatalf("a 200 body reporting a rate limit should retry, got %d attempts", requests.Load())
	}
	if len(sleeps) != 1 || sleeps[0] != 700*time.Millisecond {
		t.Fatalf("expected one 700ms backoff, got %v", sleeps)
	}
}

func TestFetchRange_FatalStatusFailsFast(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("invalid access key"))
	}))
	defer srv.Close()

	var sleeps []time.Duration
	client := newTestClient(t, srv, &sleeps)

	_, err := client.FetchRange(context.Background(), "2024-01-02", "2024-01-02")
	if err == nil {
		t.Fatal("expected error on 403")
	}
	if requests.Load() != 1 {
		t.Fatalf("4xx must not retry, got %d attempts", requests.Load())
	}
	if len(sleeps) != 0 {
		t.Fatalf("4xx must not back off, slept %v", sleeps)
	}

	var fe *models.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %T: %v", err, err)
	}
	if fe.Status != http.StatusForbidden || fe.Attempts != 1 {
		t.Fatalf("unexpected FetchError fields: %+v", fe)
	}
	if !strings.Contains(err.Error(), "invalid access key") {
		t.Fatalf("error should carry the response body, got: %v", err)
	}
}

func TestFetchRange_MalformedJSONFailsFast(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(`{"success":true,"rates":{`))
	}))
	defer srv.Close()

	var sleeps []time.Duration
	client := newTestClient(t, srv, &sleeps)

	_, err := client.FetchRange(context.Background(), "2024-01-02", "2024-01-02")
	if err == nil {
		t.Fatal("expected error on malformed body")
	}
	if requests.Load() != 1 {
		t.Fatalf("malformed JSON must not retry, got %d attempts", requests.Load())
	}
	if !models.IsFetch(err) {
		t.Fatalf("expected FetchError, got %T: %v", err, err)
	}
}

func TestFetchRange_ExhaustsAttempts(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))
	defer srv.Close()

	var sleeps []time.Duration
	client := newTestClient(t, srv, &sleeps)

	_, err := client.FetchRange(context.Background(), "2024-01-02", "2024-01-02")
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if requests.Load() != 5 {
		t.Fatalf("expected 5 attempts, got %d", requests.Load())
	}
	if len(sleeps) != 4 {
		t.Fatalf("expected 4 backoffs, got %v", sleeps)
	}
	want := []time.Duration{700 * time.Millisecond, 1400 * time.Millisecond, 2800 * time.Millisecond, 5600 * time.Millisecond}
	for i, w := range want {
		if sleeps[i] != w {
			t.Fatalf("backoff %d: expected %s, got %s", i, w, sleeps[i])
		}
	}

	var fe *models.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %T: %v", err, err)
	}
	if fe.Attempts != 5 || fe.Status != http.StatusBadGateway {
		t.Fatalf("unexpected FetchError fields: %+v", fe)
	}
	t.Logf("terminal error: %v", err)
}

func TestThrottle_RatchetsUpOnly(t *testing.T) {
	th := external.NewThrottle()
	if th.CurrentDelay() != 0 {
		t.Fatalf("fresh throttle should not delay, got %s", th.CurrentDelay())
	}

	th.RecordBackoff(time.Second)
	if th.CurrentDelay() != time.Second {
		t.Fatalf("expected 1s, got %s", th.CurrentDelay())
	}

	th.RecordBackoff(500 * time.Millisecond)
	if th.CurrentDelay() != time.Second {
		t.Fatalf("throttle must never shrink, got %s", th.CurrentDelay())
	}

	th.RecordBackoff(9 * time.Second)
	if th.CurrentDelay() != 5*time.Second {
		t.Fatalf("expected clamp at 5s, got %s", th.CurrentDelay())
	}
}

func TestThrottle_WaitIsImmediateWhenIdle(t *testing.T) {
	th := external.NewThrottle()
	start := time.Now()
	if err := th.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("idle throttle should not block, waited %s", elapsed)
	}
}

func TestSeedSource_FileWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.csv")
	csv := "Date,Gold USD,Silver USD\n" +
		"2024-01-01,2000,23\n" +
		"2024-01-02,2010,23.5\n" +
		"not-a-date,1,1\n" +
		"2024-01-05,2050,24\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	seed := external.NewSeedSource(path)
	records, err := seed.FetchRange(context.Background(), "2024-01-01", "2024-01-03")
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 rows inside the window, got %+v", records)
	}
	if records[0].Date != "2024-01-01" || records[1].Date != "2024-01-02" {
		t.Fatalf("unexpected window contents: %+v", records)
	}
}

func TestSeedSource_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("date,xau,xag\n2024-01-02,2010,23.5\n"))
	}))
	defer srv.Close()

	seed := external.NewSeedSource(srv.URL)
	records, err := seed.FetchRange(context.Background(), "2024-01-01", "2024-01-31")
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}
	if len(records) != 1 || records[0].Gold != 2010 {
		t.Fatalf("unexpected records: %+v", records)
	}
}
