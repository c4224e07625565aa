package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cp25sy5-modjot/expense-engine/internal/adapters/kv"
	"github.com/cp25sy5-modjot/expense-engine/internal/domain"
	"github.com/cp25sy5-modjot/expense-engine/internal/events"
)

func newTestStore(t *testing.T) (*Store, *kv.Memory, *events.Bus) {
	t.Helper()
	backend := kv.NewMemory()
	bus := events.NewBus(zerolog.Nop())
	s := New(backend, bus, zerolog.Nop())

	// Deterministic clock: each call advances by one second.
	base := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		base = base.Add(time.Second)
		return base
	}
	return s, backend, bus
}

func mustSave(t *testing.T, s *Store, e domain.Expense) domain.Expense {
	t.Helper()
	saved, err := s.Save(context.Background(), e)
	require.NoError(t, err)
	return saved
}

func TestSaveGetRoundTrip(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	saved := mustSave(t, s, domain.Expense{
		Amount:      "$12.5",
		Merchant:    "Corner Cafe",
		Category:    "Food & Dining",
		Date:        "2025-01-01",
		Description: "lunch",
		Items:       []string{"sandwich"},
	})
	require.NotEmpty(t, saved.ID)
	require.False(t, saved.Timestamp.IsZero())
	assert.Equal(t, "12.50", saved.Amount)

	got, err := s.Get(ctx, saved.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, saved, *got)
}

func TestSaveKeepsAssignedID(t *testing.T) {
	s, _, _ := newTestStore(t)

	first := mustSave(t, s, domain.Expense{Amount: "1.00", Date: "2025-01-01"})
	second := mustSave(t, s, domain.Expense{ID: first.ID, Amount: "2.00", Date: "2025-01-01"})
	assert.Equal(t, first.ID, second.ID)
}

func TestSaveRejectsBadAmount(t *testing.T) {
	s, _, _ := newTestStore(t)

	_, err := s.Save(context.Background(), domain.Expense{Amount: "not money"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetAbsentReturnsNil(t *testing.T) {
	s, _, _ := newTestStore(t)

	got, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCorruptRecordReadsAsAbsent(t *testing.T) {
	s, backend, _ := newTestStore(t)
	ctx := context.Background()

	saved := mustSave(t, s, domain.Expense{Amount: "1.00", Date: "2025-01-01"})
	require.NoError(t, backend.Set(ctx, keyPrefix+recordKey+saved.ID, "!!corrupt!!"))

	// Fresh store so the cache does not mask the corrupt backend value.
	fresh := New(backend, events.NewBus(zerolog.Nop()), zerolog.Nop())
	got, err := fresh.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteRemovesEverything(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	saved := mustSave(t, s, domain.Expense{
		Amount: "9.00", Merchant: "Market", Category: "Groceries", Date: "2025-01-05",
	})

	deleted, err := s.Delete(ctx, saved.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err := s.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, f := range []domain.Filters{
		{Category: "Groceries"},
		{Merchant: "Market"},
		{DateRange: &domain.DateRange{Start: "2025-01-05", End: "2025-01-05"}},
		{},
	} {
		result, err := s.Query(ctx, f, domain.DefaultPage)
		require.NoError(t, err)
		for _, e := range result.Expenses {
			assert.NotEqual(t, saved.ID, e.ID)
		}
	}
}

func TestDeleteAbsentIsNoOp(t *testing.T) {
	s, _, _ := newTestStore(t)

	deleted, err := s.Delete(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestQueryScenario(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	a := mustSave(t, s, domain.Expense{Amount: "12.00", Merchant: "Cafe", Category: "Food & Dining", Date: "2025-01-01"})
	b := mustSave(t, s, domain.Expense{Amount: "40.00", Merchant: "Market", Category: "Groceries", Date: "2025-01-01"})
	c := mustSave(t, s, domain.Expense{Amount: "5.00", Merchant: "Cafe", Category: "Food & Dining", Date: "2025-01-02"})

	result, err := s.Query(ctx, domain.Filters{Category: "Food & Dining"}, domain.DefaultPage)
	require.NoError(t, err)
	require.Len(t, result.Expenses, 2)
	assert.Equal(t, c.ID, result.Expenses[0].ID)
	assert.Equal(t, a.ID, result.Expenses[1].ID)

	result, err = s.Query(ctx, domain.Filters{}, domain.Page{Offset: 0, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.True(t, result.HasMore)
	require.Len(t, result.Expenses, 2)
	assert.Equal(t, c.ID, result.Expenses[0].ID)
	assert.Equal(t, b.ID, result.Expenses[1].ID)
}

func TestQueryByMerchantAndDateRange(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	mustSave(t, s, domain.Expense{Amount: "1.00", Merchant: "Cafe", Category: "Food & Dining", Date: "2025-01-01"})
	mustSave(t, s, domain.Expense{Amount: "2.00", Merchant: "Cafe", Category: "Food & Dining", Date: "2025-01-03"})
	mustSave(t, s, domain.Expense{Amount: "3.00", Merchant: "Market", Category: "Groceries", Date: "2025-01-02"})

	result, err := s.Query(ctx, domain.Filters{Merchant: "Cafe"}, domain.DefaultPage)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)

	result, err = s.Query(ctx, domain.Filters{
		DateRange: &domain.DateRange{Start: "2025-01-01", End: "2025-01-02"},
	}, domain.DefaultPage)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)

	// DateRange wins over category when both are set.
	result, err = s.Query(ctx, domain.Filters{
		DateRange: &domain.DateRange{Start: "2025-01-02", End: "2025-01-02"},
		Category:  "Food & Dining",
	}, domain.DefaultPage)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, "Market", result.Expenses[0].Merchant)
}

func TestPaginationWalksWholeSet(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	const total = 7
	for i := 0; i < total; i++ {
		mustSave(t, s, domain.Expense{
			Amount: "1.00",
			Date:   fmt.Sprintf("2025-01-%02d", i+1),
		})
	}

	const limit = 3
	seen := make(map[string]int)
	var pages int
	for offset := 0; ; offset += limit {
		result, err := s.Query(ctx, domain.Filters{}, domain.Page{Offset: offset, Limit: limit})
		require.NoError(t, err)
		assert.Equal(t, total, result.Total)
		pages++

		prev := ""
		for _, e := range result.Expenses {
			seen[e.ID]++
			if prev != "" {
				assert.LessOrEqual(t, e.Date, prev, "date-descending order")
			}
			prev = e.Date
		}
		if !result.HasMore {
			assert.Equal(t, 3, pages)
			break
		}
	}

	assert.Len(t, seen, total)
	for id, count := range seen {
		assert.Equal(t, 1, count, "id %s appeared %d times", id, count)
	}
}

func TestQueryClampsPageWindow(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	a := mustSave(t, s, domain.Expense{Amount: "1.00", Date: "2025-01-01"})
	b := mustSave(t, s, domain.Expense{Amount: "2.00", Date: "2025-01-02"})
	c := mustSave(t, s, domain.Expense{Amount: "3.00", Date: "2025-01-03"})

	// A negative offset reads as the first page.
	result, err := s.Query(ctx, domain.Filters{}, domain.Page{Offset: -5, Limit: 2})
	require.NoError(t, err)
	require.Len(t, result.Expenses, 2)
	assert.Equal(t, c.ID, result.Expenses[0].ID)
	assert.Equal(t, b.ID, result.Expenses[1].ID)
	assert.True(t, result.HasMore)

	// A non-positive limit falls back to the default without losing the offset.
	result, err = s.Query(ctx, domain.Filters{}, domain.Page{Offset: 2, Limit: 0})
	require.NoError(t, err)
	require.Len(t, result.Expenses, 1)
	assert.Equal(t, a.ID, result.Expenses[0].ID)
	assert.False(t, result.HasMore)

	// An offset past the end yields an empty page, not an error.
	result, err = s.Query(ctx, domain.Filters{}, domain.Page{Offset: 10, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, result.Expenses)
	assert.Equal(t, 3, result.Total)
	assert.False(t, result.HasMore)
}

func TestCacheBound(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	ids := make([]string, 0, 150)
	for i := 0; i < 150; i++ {
		saved := mustSave(t, s, domain.Expense{Amount: "1.00", Date: "2025-01-01"})
		ids = append(ids, saved.ID)
	}

	assert.Equal(t, cacheSize, s.CachedCount())

	// The 50 oldest inserts are evicted from the cache...
	for _, id := range ids[:50] {
		_, cached := s.cache.get(id)
		assert.False(t, cached)
	}
	// ...but every record is still retrievable through the backend.
	for _, id := range ids {
		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got, "id %s", id)
	}
}

func TestSearch(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	mustSave(t, s, domain.Expense{Amount: "1.00", Merchant: "Corner Cafe", Date: "2025-01-01"})
	mustSave(t, s, domain.Expense{Amount: "2.00", Merchant: "Hardware Store", Description: "coffee maker", Date: "2025-01-02"})
	mustSave(t, s, domain.Expense{Amount: "3.00", Merchant: "Pharmacy", Category: "Health", Date: "2025-01-03"})

	matches, err := s.Search(ctx, "COFFEE", 20)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Equal(t, "Hardware Store", matches[0].Merchant)

	matches, err = s.Search(ctx, "a", 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2, "stops at limit")

	matches, err = s.Search(ctx, "health", 20)
	require.NoError(t, err)
	assert.Len(t, matches, 1, "category is searchable")
}

func TestUpdateReindexesAndPreservesTimestamp(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	saved := mustSave(t, s, domain.Expense{
		Amount: "5.00", Merchant: "Cafe", Category: "Food & Dining", Date: "2025-01-01",
	})

	updated := saved
	updated.Category = "Groceries"
	updated.Amount = "6.00"
	got, err := s.Update(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, saved.Timestamp, got.Timestamp)
	assert.Equal(t, "6.00", got.Amount)

	result, err := s.Query(ctx, domain.Filters{Category: "Food & Dining"}, domain.DefaultPage)
	require.NoError(t, err)
	assert.Zero(t, result.Total)

	result, err = s.Query(ctx, domain.Filters{Category: "Groceries"}, domain.DefaultPage)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
}

func TestUpdateUnknownID(t *testing.T) {
	s, _, _ := newTestStore(t)

	_, err := s.Update(context.Background(), domain.Expense{ID: "missing", Amount: "1.00"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSaveEmitsCreated(t *testing.T) {
	s, _, bus := newTestStore(t)

	var created []domain.Expense
	bus.On(events.ExpenseCreated, func(payload any) {
		created = append(created, payload.(domain.Expense))
	})

	saved := mustSave(t, s, domain.Expense{Amount: "1.00", Date: "2025-01-01"})
	require.Len(t, created, 1)
	assert.Equal(t, saved.ID, created[0].ID)
}

func TestStorageUnavailableSurfaces(t *testing.T) {
	backend := &failingKV{}
	s := New(backend, events.NewBus(zerolog.Nop()), zerolog.Nop())

	_, err := s.Save(context.Background(), domain.Expense{Amount: "1.00", Date: "2025-01-01"})
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestBudgetDefaultsAndRoundTrip(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	budget, err := s.GetBudget(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultBudget, budget)

	custom := domain.Budget{Daily: 50, Weekly: 300, Monthly: 1200}
	require.NoError(t, s.SetBudget(ctx, custom))

	budget, err = s.GetBudget(ctx)
	require.NoError(t, err)
	assert.Equal(t, custom, budget)
}

func TestPreferences(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	v, err := s.GetPreference(ctx, "journal_sync_enabled")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, s.SetPreference(ctx, "journal_sync_enabled", false))
	require.NoError(t, s.SetPreference(ctx, "theme", "dark"))

	v, err = s.GetPreference(ctx, "journal_sync_enabled")
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestConcurrentPreferenceWrites(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.SetPreference(ctx, fmt.Sprintf("pref_%d", i), i))
		}(i)
	}
	wg.Wait()

	for i := 0; i < writers; i++ {
		v, err := s.GetPreference(ctx, fmt.Sprintf("pref_%d", i))
		require.NoError(t, err)
		assert.NotNil(t, v, "pref_%d lost", i)
	}
}

type failingKV struct{}

var errDown = errors.New("backend down")

func (f *failingKV) Set(context.Context, string, string) error { return errDown }
func (f *failingKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errDown
}
func (f *failingKV) Remove(context.Context, string) error { return errDown }
