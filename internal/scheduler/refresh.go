package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aurumlab/gsr-backend/internal/history"
	"github.com/aurumlab/gsr-backend/internal/models"
	"github.com/aurumlab/gsr-backend/internal/notifications"
)

type RefreshConfig struct {
	CronSpec     string // e.g. "15 0 * * *"
	LookbackDays int    // window size ending at the latest complete day
	WatchUp      *float64
	WatchDown    *float64
	Now          func() time.Time // test hook
}

// RefreshScheduler keeps the tail of the series fresh and watches the
// ratio for threshold crossings worth telling someone about.
type RefreshScheduler struct {
	assembler *history.Assembler
	notifier  *notifications.Sender
	cfg       RefreshConfig

	mu            sync.Mutex
	cron          *cron.Cron
	running       bool
	lastAlertDate string
}

func NewRefreshScheduler(assembler *history.Assembler, notifier *notifications.Sender, cfg RefreshConfig) *RefreshScheduler {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 30
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &RefreshScheduler{
		assembler: assembler,
		notifier:  notifier,
		cfg:       cfg,
	}
}

func (s *RefreshScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		fmt.Println("[REFRESH] Already running")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.cfg.CronSpec, s.runScheduled); err != nil {
		return fmt.Errorf("bad refresh schedule %q: %w", s.cfg.CronSpec, err)
	}
	c.Start()
	s.cron = c
	s.running = true

	// Initial refresh on startup (fire-and-forget), so a restart catches up
	// without waiting for the next cron tick.
	go s.runScheduled()

	fmt.Printf("[REFRESH] Scheduled %q, lookback %d days\n", s.cfg.CronSpec, s.cfg.LookbackDays)
	return nil
}

func (s *RefreshScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cron.Stop()
	s.running = false
	fmt.Println("[REFRESH] Stopped")
}

func (s *RefreshScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *RefreshScheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	if _, err := s.RefreshNow(ctx); err != nil {
		fmt.Printf("[REFRESH] Refresh failed: %v\n", err)
	}
}

// RefreshNow loads the lookback window ending at the latest complete UTC
// day, letting the assembler fetch whatever is missing, then runs the
// watch checks on the result.
func (s *RefreshScheduler) RefreshNow(ctx context.Context) (history.Result, error) {
	end := history.LatestCompleteDay(s.cfg.Now())
	endT, err := time.Parse("2006-01-02", end)
	if err != nil {
		return history.Result{}, fmt.Errorf("latest complete day %q: %w", end, err)
	}
	start := endT.AddDate(0, 0, -(s.cfg.LookbackDays - 1)).Format("2006-01-02")

	fmt.Printf("[REFRESH] Refreshing %s..%s\n", start, end)
	res, err := s.assembler.LoadMergedPrices(ctx, start, end)
	if err != nil {
		return res, err
	}

	if s.notifier != nil {
		s.notifier.RefreshReport(start, end, res.FetchedDays, res.FetchErr)
	}
	s.checkWatch(res.Records)
	return res, nil
}

// checkWatch fires an alert when the ratio moved through a watch threshold
// between the two most recent days.
func (s *RefreshScheduler) checkWatch(records []models.PriceRecord) {
	if s.notifier == nil || (s.cfg.WatchUp == nil && s.cfg.WatchDown == nil) {
		return
	}
	if len(records) < 2 {
		return
	}

	prev := records[len(records)-2]
	last := records[len(records)-1]

	s.mu.Lock()
	seen := s.lastAlertDate == last.Date
	s.mu.Unlock()
	// A rerun without new data must not repeat yesterday's alert.
	if seen {
		return
	}

	if up := s.cfg.WatchUp; up != nil && prev.Ratio() < *up && last.Ratio() >= *up {
		s.notifier.RatioAlert(last.Date, last.Ratio(), *up, true)
		s.markAlerted(last.Date)
	}
	if down := s.cfg.WatchDown; down != nil && prev.Ratio() > *down && last.Ratio() <= *down {
		s.notifier.RatioAlert(last.Date, last.Ratio(), *down, false)
		s.markAlerted(last.Date)
	}
}

func (s *RefreshScheduler) markAlerted(date string) {
	s.mu.Lock()
	s.lastAlertDate = date
	s.mu.Unlock()
}
