package catalog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/leapstack-labs/mapsource/pkg/core"
)

// Tables is the bulk-fetched table collection of a store.
//
// A failed fetch keeps the previously loaded records.
type Tables struct {
	store  Store
	logger *slog.Logger

	mu      sync.RWMutex
	records []core.TableRecord
	byID    map[string]core.TableRecord
	lastErr error
}

// NewTables creates an empty collection over store.
func NewTables(store Store, logger *slog.Logger) *Tables {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tables{
		store:  store,
		logger: logger,
		byID:   make(map[string]core.TableRecord),
	}
}

// Fetch reloads every dataset from the store.
func (t *Tables) Fetch(ctx context.Context) error {
	datasets, err := t.store.ListDatasets(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastErr = err
	if err != nil {
		return err
	}

	t.records = make([]core.TableRecord, 0, len(datasets))
	t.byID = make(map[string]core.TableRecord, len(datasets))
	for _, d := range datasets {
		r := tableRecord{d}
		t.records = append(t.records, r)
		if _, dup := t.byID[d.ID]; !dup {
			t.byID[d.ID] = r
		}
	}
	t.logger.Debug("tables fetched", slog.Int("count", len(t.records)))
	return nil
}

// Tables returns the loaded records in store order.
func (t *Tables) Tables() []core.TableRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]core.TableRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Get returns the record with the given id.
func (t *Tables) Get(id string) (core.TableRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.byID[id]
	return r, ok
}

// LastError returns the error of the most recent fetch, nil when it
// succeeded.
func (t *Tables) LastError() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastErr
}

// tableRecord adapts a Dataset to core.TableRecord.
type tableRecord struct {
	d Dataset
}

func (r tableRecord) ID() string                         { return r.d.ID }
func (r tableRecord) Name() string                       { return r.d.Name }
func (r tableRecord) GeometryTypes() []core.GeometryType { return r.d.Geometry }

var _ core.TableCollection = (*Tables)(nil)
