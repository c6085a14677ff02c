package series

import (
	"context"
	"fmt"

	"github.com/aurumlab/gsr-backend/internal/models"
)

// SeriesKey is the fixed identifier of the one persisted canonical series.
const SeriesKey = "gold-silver-daily-v1"

// BlobStore is the keyed read/write contract the cache persists through.
// Get returns (nil, nil) when the key is absent.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, payload []byte) error
}

// Cache owns the persisted canonical series. Reads degrade to an empty
// series, writes degrade to in-memory-only data; neither ever fails the
// caller.
type Cache struct {
	store BlobStore
	key   string
}

func NewCache(store BlobStore) *Cache {
	return &Cache{store: store, key: SeriesKey}
}

// Load reads the persisted series. Absent, unreadable, or corrupt state
// yields an empty series, never an error.
func (c *Cache) Load(ctx context.Context) []models.PriceRecord {
	payload, err := c.store.Get(ctx, c.key)
	if err != nil {
		fmt.Printf("[CACHE] Read failed, starting empty: %v\n", err)
		return nil
	}
	if len(payload) == 0 {
		return nil
	}
	records, err := DecodeBlob(payload)
	if err != nil {
		fmt.Printf("[CACHE] Discarding corrupt blob: %v\n", err)
		return nil
	}
	return records
}

// Save persists the full series after deduplication and sort, overwriting
// prior state. Failures are logged and swallowed; the in-memory series
// stays authoritative for the session.
func (c *Cache) Save(ctx context.Context, records []models.PriceRecord) {
	records = SortDedupe(records)
	payload, err := EncodeBlob(records)
	if err != nil {
		fmt.Printf("[CACHE] Encode failed, not persisting: %v\n", err)
		return
	}
	if err := c.store.Put(ctx, c.key, payload); err != nil {
		fmt.Printf("[CACHE] Write failed, keeping in-memory series: %v\n", err)
	}
}
