package history

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aurumlab/gsr-backend/internal/external"
	"github.com/aurumlab/gsr-backend/internal/models"
	"github.com/aurumlab/gsr-backend/internal/series"
)

// Provider fills date ranges the cache cannot.
type Provider interface {
	Name() string
	FetchRange(ctx context.Context, start, end string) ([]models.PriceRecord, error)
}

// Source is a Provider plus its consultation policy.
type Source struct {
	Provider Provider
	// OncePerSession marks sources whose contents cannot change while the
	// process lives (seed files). They are exhausted after one consultation,
	// successful or not.
	OncePerSession bool
}

// Result carries the assembled window plus what happened along the way.
// FetchErr reports a source that gave up mid-window; records gathered
// before the failure are kept and persisted.
type Result struct {
	Records     []models.PriceRecord
	FetchedDays int
	FetchErr    error
}

// Assembler owns the canonical series: it answers window requests from the
// cache, fills missing days from an ordered list of sources, and persists
// the grown series. Sources never overwrite days the cache already has.
type Assembler struct {
	cache    *series.Cache
	throttle *external.Throttle
	sources  []Source

	mu        sync.Mutex
	exhausted map[string]struct{}

	// gen marks the newest invocation; older in-flight assemblies skip
	// persisting so a stale fetch cannot clobber fresher data.
	gen atomic.Int64
}

func NewAssembler(cache *series.Cache, throttle *external.Throttle, sources []Source) *Assembler {
	if throttle == nil {
		throttle = external.NewThrottle()
	}
	return &Assembler{
		cache:     cache,
		throttle:  throttle,
		sources:   sources,
		exhausted: make(map[string]struct{}),
	}
}

// LoadMergedPrices returns the canonical series restricted to [start, end],
// filling gaps from the configured sources in order. With no sources
// configured the gaps simply remain gaps.
func (a *Assembler) LoadMergedPrices(ctx context.Context, start, end string) (Result, error) {
	if err := validateWindow(start, end); err != nil {
		return Result{}, err
	}

	token := a.gen.Add(1)

	merged := a.cache.Load(ctx)
	days := EnumerateDays(start, end)

	gaps := MissingRanges(days, series.Dates(merged))
	missing := 0
	for _, g := range gaps {
		missing += g.Days
	}
	fmt.Printf("[ASSEMBLE] Window %s..%s: %d days wanted, %d cached, %d missing in %d gaps\n",
		start, end, len(days), len(days)-missing, missing, len(gaps))

	var (
		fetchedDays int
		fetchErr    error
	)

	for _, src := range a.sources {
		if src.Provider == nil || a.isExhausted(src.Provider.Name()) {
			continue
		}

		gaps := MissingRanges(days, series.Dates(merged))
		if len(gaps) == 0 {
			break
		}

		var fetched []models.PriceRecord
		var err error
		if src.OncePerSession {
			a.markExhausted(src.Provider.Name())
			fmt.Printf("[ASSEMBLE] Consulting %s once for %s..%s\n", src.Provider.Name(), start, end)
			fetched, err = src.Provider.FetchRange(ctx, start, end)
		} else {
			fetched, err = a.fillGaps(ctx, src.Provider, gaps)
		}

		if len(fetched) > 0 {
			before := len(merged)
			merged = series.Merge(fetched, merged) // existing data wins
			added := len(merged) - before
			fetchedDays += added
			fmt.Printf("[ASSEMBLE] Source %s filled %d days\n", src.Provider.Name(), added)
		}
		if err != nil {
			fmt.Printf("[ASSEMBLE] Source %s failed: %v\n", src.Provider.Name(), err)
			fetchErr = err
		}
	}

	if fetchedDays > 0 {
		if a.gen.Load() == token {
			a.cache.Save(ctx, merged)
		} else {
			fmt.Println("[ASSEMBLE] Superseded by a newer request, skipping persist")
		}
	}

	return Result{
		Records:     series.Slice(merged, start, end),
		FetchedDays: fetchedDays,
		FetchErr:    fetchErr,
	}, nil
}

// ImportRecords merges externally supplied rows (uploads) into the cached
// series. Uploaded rows win over cached ones for the same date. Returns the
// count of previously unknown dates and the new series size.
func (a *Assembler) ImportRecords(ctx context.Context, records []models.PriceRecord) (added, total int) {
	a.gen.Add(1) // a fresh import supersedes any in-flight assembly

	base := a.cache.Load(ctx)
	merged := series.Merge(base, records)
	added = len(merged) - len(base)
	a.cache.Save(ctx, merged)

	fmt.Printf("[ASSEMBLE] Imported %d rows (%d new dates, %d total)\n", len(records), added, len(merged))
	return added, len(merged)
}

// CachedWindow returns the cached slice for [start, end] without consulting
// any source.
func (a *Assembler) CachedWindow(ctx context.Context, start, end string) ([]models.PriceRecord, error) {
	if err := validateWindow(start, end); err != nil {
		return nil, err
	}
	return series.Slice(a.cache.Load(ctx), start, end), nil
}

// fillGaps walks the gaps oldest-first in chunks the provider will accept,
// pausing the adaptive throttle delay between chunk calls. On failure the
// records fetched so far are returned alongside the error.
func (a *Assembler) fillGaps(ctx context.Context, p Provider, gaps []Gap) ([]models.PriceRecord, error) {
	var fetched []models.PriceRecord
	for _, gap := range gaps {
		for _, chunk := range Chunks(gap) {
			if err := a.throttle.Wait(ctx); err != nil {
				return fetched, err
			}
			records, err := p.FetchRange(ctx, chunk.Start, chunk.End)
			if err != nil {
				return fetched, fmt.Errorf("%s %s..%s: %w", p.Name(), chunk.Start, chunk.End, err)
			}
			fetched = append(fetched, records...)
		}
	}
	return fetched, nil
}

func (a *Assembler) isExhausted(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.exhausted[name]
	return ok
}

func (a *Assembler) markExhausted(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exhausted[name] = struct{}{}
}

func validateWindow(start, end string) error {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return models.NewValidationError("invalid start date %q", start)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return models.NewValidationError("invalid end date %q", end)
	}
	if e.Before(s) {
		return models.NewValidationError("end date %s is before start date %s", end, start)
	}
	return nil
}
