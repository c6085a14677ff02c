package external

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aurumlab/gsr-backend/internal/httputil"
	"github.com/aurumlab/gsr-backend/internal/models"
	"github.com/aurumlab/gsr-backend/internal/normalize"
	"github.com/aurumlab/gsr-backend/internal/series"
)

// SeedSource serves price rows from a local CSV file or an HTTP(S) URL.
// It acts as a fallback provider for dates the price API cannot fill,
// so it only ever hands back the part of its file inside the window.
type SeedSource struct {
	location   string
	httpClient *http.Client
}

func NewSeedSource(location string) *SeedSource {
	return &SeedSource{
		location:   location,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *SeedSource) Name() string { return "seed" }

func (s *SeedSource) FetchRange(ctx context.Context, start, end string) ([]models.PriceRecord, error) {
	var (
		records []models.PriceRecord
		dropped int
		err     error
	)
	if strings.HasPrefix(s.location, "http://") || strings.HasPrefix(s.location, "https://") {
		records, dropped, err = s.fetchURL(ctx)
	} else {
		records, dropped, err = s.readFile()
	}
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		fmt.Printf("[FETCH] Seed %s: dropped %d unusable rows\n", s.location, dropped)
	}
	return series.Slice(series.SortDedupe(records), start, end), nil
}

func (s *SeedSource) readFile() ([]models.PriceRecord, int, error) {
	f, err := os.Open(s.location)
	if err != nil {
		return nil, 0, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return normalize.ReadCSV(f)
}

func (s *SeedSource) fetchURL(ctx context.Context) ([]models.PriceRecord, int, error) {
	resp, err := httputil.Do(ctx, s.httpClient, httputil.DefaultRetry, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, s.location, nil)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("fetch seed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("seed fetch returned status %d", resp.StatusCode)
	}
	return normalize.ReadCSV(resp.Body)
}
