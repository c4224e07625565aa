package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cp25sy5-modjot/expense-engine/internal/domain"
)

const syncEnabledPref = "journal_sync_enabled"

// ExpenseStore is the slice of the persistent store the service consumes.
type ExpenseStore interface {
	Save(ctx context.Context, e domain.Expense) (domain.Expense, error)
	Update(ctx context.Context, e domain.Expense) (domain.Expense, error)
	Get(ctx context.Context, id string) (*domain.Expense, error)
	Delete(ctx context.Context, id string) (bool, error)
	Query(ctx context.Context, f domain.Filters, p domain.Page) (domain.QueryResult, error)
	Search(ctx context.Context, query string, limit int) ([]domain.Expense, error)
	GetBudget(ctx context.Context) (domain.Budget, error)
	SetBudget(ctx context.Context, b domain.Budget) error
	SetPreference(ctx context.Context, key string, value any) error
}

// Journal is the slice of the sync queue the service consumes.
type Journal interface {
	Enqueue(e domain.Expense)
	SetEnabled(enabled bool)
	Status() domain.SyncStatus
	FailedSyncs(ctx context.Context) ([]domain.SyncJob, error)
	RetryFailedSyncs(ctx context.Context) error
}

// ExpenseService is the application service for expense CRUD, reporting and
// budgets. Journal delivery is fire-and-forget: CreateExpense returns once
// the record is stored, and eventual sync failures surface only through the
// event bus.
type ExpenseService struct {
	store   ExpenseStore
	journal Journal
	log     zerolog.Logger
	now     func() time.Time
}

func NewExpenseService(store ExpenseStore, journal Journal, log zerolog.Logger) *ExpenseService {
	return &ExpenseService{
		store:   store,
		journal: journal,
		log:     log.With().Str("component", "expenses").Logger(),
		now:     time.Now,
	}
}

func (s *ExpenseService) CreateExpense(ctx context.Context, e domain.Expense) (domain.Expense, error) {
	saved, err := s.store.Save(ctx, e)
	if err != nil {
		return domain.Expense{}, err
	}
	s.journal.Enqueue(saved)
	return saved, nil
}

func (s *ExpenseService) UpdateExpense(ctx context.Context, e domain.Expense) (domain.Expense, error) {
	return s.store.Update(ctx, e)
}

func (s *ExpenseService) DeleteExpense(ctx context.Context, id string) (bool, error) {
	return s.store.Delete(ctx, id)
}

func (s *ExpenseService) GetExpense(ctx context.Context, id string) (*domain.Expense, error) {
	return s.store.Get(ctx, id)
}

func (s *ExpenseService) Expenses(ctx context.Context, f domain.Filters, p domain.Page) (domain.QueryResult, error) {
	return s.store.Query(ctx, f, p)
}

func (s *ExpenseService) SearchExpenses(ctx context.Context, query string, limit int) ([]domain.Expense, error) {
	return s.store.Search(ctx, query, limit)
}

func (s *ExpenseService) TodayExpenses(ctx context.Context) (domain.QueryResult, error) {
	today := s.now().Format(domain.DateLayout)
	return s.store.Query(ctx, domain.Filters{
		DateRange: &domain.DateRange{Start: today, End: today},
	}, domain.DefaultPage)
}

func (s *ExpenseService) TodayTotal(ctx context.Context) (float64, error) {
	result, err := s.TodayExpenses(ctx)
	if err != nil {
		return 0, err
	}
	return sumAmounts(result.Expenses), nil
}

// WeekExpenses covers the current week, Sunday through today.
func (s *ExpenseService) WeekExpenses(ctx context.Context) (domain.QueryResult, error) {
	now := s.now()
	weekStart := now.AddDate(0, 0, -int(now.Weekday()))
	return s.store.Query(ctx, domain.Filters{
		DateRange: &domain.DateRange{
			Start: weekStart.Format(domain.DateLayout),
			End:   now.Format(domain.DateLayout),
		},
	}, domain.DefaultPage)
}

// MonthExpenses covers the current calendar month through today.
func (s *ExpenseService) MonthExpenses(ctx context.Context) (domain.QueryResult, error) {
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return s.store.Query(ctx, domain.Filters{
		DateRange: &domain.DateRange{
			Start: monthStart.Format(domain.DateLayout),
			End:   now.Format(domain.DateLayout),
		},
	}, domain.DefaultPage)
}

// SpendingByCategory totals amounts per category over the given range, or
// over the current month when the range is nil.
func (s *ExpenseService) SpendingByCategory(ctx context.Context, dateRange *domain.DateRange) (map[string]float64, error) {
	var (
		result domain.QueryResult
		err    error
	)
	if dateRange != nil {
		result, err = s.store.Query(ctx, domain.Filters{DateRange: dateRange}, domain.DefaultPage)
	} else {
		result, err = s.MonthExpenses(ctx)
	}
	if err != nil {
		return nil, err
	}

	byCategory := make(map[string]float64)
	for _, e := range result.Expenses {
		category := e.Category
		if category == "" {
			category = domain.FallbackCategory
		}
		byCategory[category] += e.AmountValue()
	}
	return byCategory, nil
}

func (s *ExpenseService) Categories() []string {
	out := make([]string, len(domain.Categories))
	copy(out, domain.Categories)
	return out
}

// --- budgets ---

func (s *ExpenseService) Budget(ctx context.Context) (domain.Budget, error) {
	return s.store.GetBudget(ctx)
}

func (s *ExpenseService) SetBudget(ctx context.Context, b domain.Budget) error {
	return s.store.SetBudget(ctx, b)
}

func (s *ExpenseService) DailyBudgetStatus(ctx context.Context) (domain.BudgetStatus, error) {
	budget, err := s.store.GetBudget(ctx)
	if err != nil {
		return domain.BudgetStatus{}, err
	}
	total, err := s.TodayTotal(ctx)
	if err != nil {
		return domain.BudgetStatus{}, err
	}
	return budgetStatus(total, budget.Daily), nil
}

func (s *ExpenseService) WeeklyBudgetStatus(ctx context.Context) (domain.BudgetStatus, error) {
	budget, err := s.store.GetBudget(ctx)
	if err != nil {
		return domain.BudgetStatus{}, err
	}
	result, err := s.WeekExpenses(ctx)
	if err != nil {
		return domain.BudgetStatus{}, err
	}
	return budgetStatus(sumAmounts(result.Expenses), budget.Weekly), nil
}

// --- sync control ---

// SetSyncEnabled flips the journal sync policy and persists the preference.
func (s *ExpenseService) SetSyncEnabled(ctx context.Context, enabled bool) error {
	if err := s.store.SetPreference(ctx, syncEnabledPref, enabled); err != nil {
		return err
	}
	s.journal.SetEnabled(enabled)
	return nil
}

func (s *ExpenseService) SyncStatus() domain.SyncStatus {
	return s.journal.Status()
}

func (s *ExpenseService) FailedSyncs(ctx context.Context) ([]domain.SyncJob, error) {
	return s.journal.FailedSyncs(ctx)
}

func (s *ExpenseService) RetryFailedSyncs(ctx context.Context) error {
	return s.journal.RetryFailedSyncs(ctx)
}

func sumAmounts(expenses []domain.Expense) float64 {
	var total float64
	for _, e := range expenses {
		total += e.AmountValue()
	}
	return total
}

func budgetStatus(spent, limit float64) domain.BudgetStatus {
	status := domain.BudgetStatus{
		Spent:     spent,
		Limit:     limit,
		Remaining: limit - spent,
		Status:    domain.BudgetState(spent, limit),
	}
	if limit > 0 {
		status.Percentage = spent / limit * 100
	}
	return status
}
