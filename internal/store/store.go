// Package store implements the indexed expense store on top of a flat
// key/value backend: a primary entry per record, three secondary indexes
// (date, category, merchant), an all-ids set, and a bounded in-memory cache.
//
// Primary write and index updates are separate backend operations; a crash
// between them can leave an index referencing a missing record. Loads treat
// missing records as absent, so the window degrades reads, never corrupts
// them.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cp25sy5-modjot/expense-engine/internal/codec"
	"github.com/cp25sy5-modjot/expense-engine/internal/domain"
	"github.com/cp25sy5-modjot/expense-engine/internal/events"
	"github.com/cp25sy5-modjot/expense-engine/internal/ports"
)

const (
	keyPrefix      = "expense_snap_"
	recordKey      = "expense_"
	dateIndex      = "idx_date"
	categoryIndex  = "idx_category"
	merchantIndex  = "idx_merchant"
	allIDsKey      = "all_expense_ids"
	budgetKey      = "budget"
	preferencesKey = "preferences"

	cacheSize       = 100
	searchBatchSize = 50
)

type Store struct {
	kv  ports.KV
	bus *events.Bus
	log zerolog.Logger
	now func() time.Time

	mu    sync.Mutex // held across multi-key operations
	cache *recordCache
}

func New(kv ports.KV, bus *events.Bus, log zerolog.Logger) *Store {
	return &Store{
		kv:    kv,
		bus:   bus,
		log:   log.With().Str("component", "store").Logger(),
		now:   time.Now,
		cache: newRecordCache(cacheSize),
	}
}

// Save normalizes and persists an expense. A fresh id and creation timestamp
// are assigned when absent and never change afterwards. Indexes, the all-ids
// set and the cache are updated, and expense:created is emitted.
func (s *Store) Save(ctx context.Context, e domain.Expense) (domain.Expense, error) {
	e, err := domain.Normalize(e, s.now())
	if err != nil {
		return domain.Expense{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.putRecord(ctx, e); err != nil {
		return domain.Expense{}, err
	}
	if err := s.indexRecord(ctx, e); err != nil {
		return domain.Expense{}, err
	}
	s.cache.set(e.ID, e)

	s.log.Debug().Str("id", e.ID).Str("merchant", e.Merchant).Msg("expense saved")
	s.bus.Emit(events.ExpenseCreated, e)
	return e, nil
}

// Update rewrites an existing record. The creation timestamp is preserved.
// Index buckets are refreshed when date, category or merchant changed.
func (s *Store) Update(ctx context.Context, e domain.Expense) (domain.Expense, error) {
	if e.ID == "" {
		return domain.Expense{}, fmt.Errorf("%w: empty id", domain.ErrNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.loadRecord(ctx, e.ID)
	if err != nil {
		return domain.Expense{}, err
	}
	if existing == nil {
		return domain.Expense{}, fmt.Errorf("%w: %s", domain.ErrNotFound, e.ID)
	}

	e, err = domain.Normalize(e, s.now())
	if err != nil {
		return domain.Expense{}, err
	}
	e.Timestamp = existing.Timestamp

	if err := s.putRecord(ctx, e); err != nil {
		return domain.Expense{}, err
	}
	if err := s.reindexRecord(ctx, *existing, e); err != nil {
		return domain.Expense{}, err
	}
	s.cache.set(e.ID, e)

	s.bus.Emit(events.ExpenseUpdated, e)
	return e, nil
}

// Get returns the record or nil when absent. A stored value that fails to
// decode is treated as absent: availability over corruption-detection, so
// callers cannot distinguish missing from corrupt.
func (s *Store) Get(ctx context.Context, id string) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadRecord(ctx, id)
}

// Delete removes the record, its index entries and its cache slot. Deleting
// an absent id is a no-op returning false.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.loadRecord(ctx, id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	if err := s.kv.Remove(ctx, keyPrefix+recordKey+id); err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	if err := s.unindexRecord(ctx, *existing); err != nil {
		return false, err
	}
	s.cache.delete(id)

	s.bus.Emit(events.ExpenseDeleted, *existing)
	return true, nil
}

// Query resolves candidate ids from the best matching index, loads them
// cache-first, sorts by date descending (newest save first on equal dates)
// and windows by offset/limit.
func (s *Store) Query(ctx context.Context, f domain.Filters, p domain.Page) (domain.QueryResult, error) {
	if p.Limit <= 0 {
		p.Limit = domain.DefaultPage.Limit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		ids []string
		err error
	)
	switch {
	case f.DateRange != nil:
		ids, err = s.idsForDateRange(ctx, f.DateRange.Start, f.DateRange.End)
	case f.Category != "":
		ids, err = s.indexBucket(ctx, categoryIndex, f.Category)
	case f.Merchant != "":
		ids, err = s.indexBucket(ctx, merchantIndex, f.Merchant)
	default:
		ids, err = s.allIDs(ctx)
	}
	if err != nil {
		return domain.QueryResult{}, err
	}

	expenses, err := s.loadBatch(ctx, ids)
	if err != nil {
		return domain.QueryResult{}, err
	}
	sort.SliceStable(expenses, func(i, j int) bool {
		if expenses[i].Date != expenses[j].Date {
			return expenses[i].Date > expenses[j].Date
		}
		return expenses[i].Timestamp.After(expenses[j].Timestamp)
	})

	total := len(expenses)
	start := p.Offset
	if start > total {
		start = total
	}
	end := start + p.Limit
	if end > total {
		end = total
	}

	return domain.QueryResult{
		Expenses: expenses[start:end],
		Total:    total,
		HasMore:  p.Offset+p.Limit < total,
	}, nil
}

// Search does a case-insensitive substring match over merchant, description
// and category, scanning all ids in bounded batches and stopping once limit
// matches are found.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]domain.Expense, error) {
	if limit <= 0 {
		limit = 20
	}
	query = strings.ToLower(query)

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.allIDs(ctx)
	if err != nil {
		return nil, err
	}

	matches := make([]domain.Expense, 0, limit)
	for i := 0; i < len(ids) && len(matches) < limit; i += searchBatchSize {
		end := i + searchBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch, err := s.loadBatch(ctx, ids[i:end])
		if err != nil {
			return nil, err
		}
		for _, e := range batch {
			if len(matches) >= limit {
				break
			}
			haystack := strings.ToLower(e.Merchant + " " + e.Description + " " + e.Category)
			if strings.Contains(haystack, query) {
				matches = append(matches, e)
			}
		}
	}
	return matches, nil
}

// CachedCount reports how many records currently sit in the in-memory cache.
func (s *Store) CachedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.len()
}

// --- budget & preferences ---

func (s *Store) GetBudget(ctx context.Context) (domain.Budget, error) {
	var b domain.Budget
	found, err := s.getValue(ctx, budgetKey, &b)
	if err != nil {
		return domain.Budget{}, err
	}
	if !found {
		return domain.DefaultBudget, nil
	}
	return b, nil
}

func (s *Store) SetBudget(ctx context.Context, b domain.Budget) error {
	if err := s.setValue(ctx, budgetKey, b); err != nil {
		return err
	}
	s.bus.Emit(events.BudgetUpdated, b)
	return nil
}

func (s *Store) GetPreference(ctx context.Context, key string) (any, error) {
	prefs := map[string]any{}
	if _, err := s.getValue(ctx, preferencesKey, &prefs); err != nil {
		return nil, err
	}
	return prefs[key], nil
}

// SetPreference does a read-modify-write of the whole preferences map, so
// it holds the store mutex like the record operations do.
func (s *Store) SetPreference(ctx context.Context, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs := map[string]any{}
	if _, err := s.getValue(ctx, preferencesKey, &prefs); err != nil {
		return err
	}
	prefs[key] = value
	return s.setValue(ctx, preferencesKey, prefs)
}

// --- internals ---

func (s *Store) putRecord(ctx context.Context, e domain.Expense) error {
	encoded, err := codec.Encode(e)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, keyPrefix+recordKey+e.ID, encoded); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

// loadRecord is cache-first. Decode failures log and read as absence.
func (s *Store) loadRecord(ctx context.Context, id string) (*domain.Expense, error) {
	if e, ok := s.cache.get(id); ok {
		return &e, nil
	}
	raw, found, err := s.kv.Get(ctx, keyPrefix+recordKey+id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	if !found {
		return nil, nil
	}
	var e domain.Expense
	if err := codec.Decode(raw, &e); err != nil {
		s.log.Warn().Str("id", id).Err(err).Msg("corrupt record, treating as absent")
		return nil, nil
	}
	s.cache.set(id, e)
	return &e, nil
}

func (s *Store) loadBatch(ctx context.Context, ids []string) ([]domain.Expense, error) {
	expenses := make([]domain.Expense, 0, len(ids))
	for _, id := range ids {
		e, err := s.loadRecord(ctx, id)
		if err != nil {
			return nil, err
		}
		if e != nil {
			expenses = append(expenses, *e)
		}
	}
	return expenses, nil
}

func (s *Store) indexRecord(ctx context.Context, e domain.Expense) error {
	if err := s.addToBucket(ctx, dateIndex, e.Date, e.ID); err != nil {
		return err
	}
	if err := s.addToBucket(ctx, categoryIndex, e.Category, e.ID); err != nil {
		return err
	}
	if err := s.addToBucket(ctx, merchantIndex, e.Merchant, e.ID); err != nil {
		return err
	}
	return s.addToBucket(ctx, allIDsKey, "", e.ID)
}

func (s *Store) unindexRecord(ctx context.Context, e domain.Expense) error {
	if err := s.removeFromBucket(ctx, dateIndex, e.Date, e.ID); err != nil {
		return err
	}
	if err := s.removeFromBucket(ctx, categoryIndex, e.Category, e.ID); err != nil {
		return err
	}
	if err := s.removeFromBucket(ctx, merchantIndex, e.Merchant, e.ID); err != nil {
		return err
	}
	return s.removeFromBucket(ctx, allIDsKey, "", e.ID)
}

// reindexRecord moves the id between buckets for every dimension whose key
// changed, keeping the invariant that a record appears in exactly one bucket
// per dimension.
func (s *Store) reindexRecord(ctx context.Context, old, cur domain.Expense) error {
	pairs := []struct{ index, oldKey, newKey string }{
		{dateIndex, old.Date, cur.Date},
		{categoryIndex, old.Category, cur.Category},
		{merchantIndex, old.Merchant, cur.Merchant},
	}
	for _, p := range pairs {
		if p.oldKey == p.newKey {
			continue
		}
		if err := s.removeFromBucket(ctx, p.index, p.oldKey, old.ID); err != nil {
			return err
		}
		if err := s.addToBucket(ctx, p.index, p.newKey, old.ID); err != nil {
			return err
		}
	}
	return nil
}

func bucketKey(index, key string) string {
	if key == "" {
		return keyPrefix + index
	}
	return keyPrefix + index + "_" + key
}

func (s *Store) indexBucket(ctx context.Context, index, key string) ([]string, error) {
	raw, found, err := s.kv.Get(ctx, bucketKey(index, key))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	if !found {
		return nil, nil
	}
	var ids []string
	if err := codec.Decode(raw, &ids); err != nil {
		s.log.Warn().Str("index", index).Str("key", key).Err(err).Msg("corrupt index bucket, treating as empty")
		return nil, nil
	}
	return ids, nil
}

func (s *Store) writeBucket(ctx context.Context, index, key string, ids []string) error {
	encoded, err := codec.Encode(ids)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, bucketKey(index, key), encoded); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) addToBucket(ctx context.Context, index, key, id string) error {
	ids, err := s.indexBucket(ctx, index, key)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	return s.writeBucket(ctx, index, key, append(ids, id))
}

func (s *Store) removeFromBucket(ctx context.Context, index, key, id string) error {
	ids, err := s.indexBucket(ctx, index, key)
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	return s.writeBucket(ctx, index, key, kept)
}

func (s *Store) allIDs(ctx context.Context) ([]string, error) {
	return s.indexBucket(ctx, allIDsKey, "")
}

// idsForDateRange unions the day buckets of an inclusive range,
// deduplicating across days.
func (s *Store) idsForDateRange(ctx context.Context, start, end string) ([]string, error) {
	from, err := time.Parse(domain.DateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("%w: bad start date %q", domain.ErrValidation, start)
	}
	to, err := time.Parse(domain.DateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("%w: bad end date %q", domain.ErrValidation, end)
	}

	seen := make(map[string]struct{})
	var ids []string
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		bucket, err := s.indexBucket(ctx, dateIndex, day.Format(domain.DateLayout))
		if err != nil {
			return nil, err
		}
		for _, id := range bucket {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Store) getValue(ctx context.Context, key string, v any) (bool, error) {
	raw, found, err := s.kv.Get(ctx, keyPrefix+key)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	if !found {
		return false, nil
	}
	if err := codec.Decode(raw, v); err != nil {
		s.log.Warn().Str("key", key).Err(err).Msg("corrupt value, treating as absent")
		return false, nil
	}
	return true, nil
}

func (s *Store) setValue(ctx context.Context, key string, v any) error {
	encoded, err := codec.Encode(v)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, keyPrefix+key, encoded); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}
