package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cp25sy5-modjot/expense-engine/internal/adapters/kv"
	"github.com/cp25sy5-modjot/expense-engine/internal/correlator"
	"github.com/cp25sy5-modjot/expense-engine/internal/domain"
	"github.com/cp25sy5-modjot/expense-engine/internal/events"
	"github.com/cp25sy5-modjot/expense-engine/internal/store"
	"github.com/cp25sy5-modjot/expense-engine/internal/syncqueue"
	"github.com/cp25sy5-modjot/expense-engine/internal/usecase"
)

type noopTransport struct{}

func (noopTransport) Deliver(context.Context, string) error { return nil }

func newTestServer(t *testing.T) (*Server, *usecase.ExpenseService) {
	t.Helper()
	backend := kv.NewMemory()
	bus := events.NewBus(zerolog.Nop())
	st := store.New(backend, bus, zerolog.Nop())
	queue := syncqueue.New(noopTransport{}, backend, bus, zerolog.Nop(), syncqueue.Config{})
	t.Cleanup(queue.Close)

	expenses := usecase.NewExpenseService(st, queue, zerolog.Nop())
	assistant := usecase.NewAssistant(correlator.New(nil, zerolog.Nop()), zerolog.Nop())
	return New(":0", expenses, assistant, zerolog.Nop()), expenses
}

func TestListExpensesIgnoresNegativeOffset(t *testing.T) {
	server, expenses := newTestServer(t)

	for _, date := range []string{"2025-01-01", "2025-01-02", "2025-01-03"} {
		_, err := expenses.CreateExpense(context.Background(), domain.Expense{
			Amount: "1.00", Date: date,
		})
		require.NoError(t, err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/expenses?offset=-5&limit=2", nil)
	server.http.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":3`)
	assert.Contains(t, rec.Body.String(), `"hasMore":true`)
}

func TestGetExpenseNotFound(t *testing.T) {
	server, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/expenses/missing", nil)
	server.http.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateExpenseValidation(t *testing.T) {
	server, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/expenses",
		strings.NewReader(`{"amount":"not money"}`))
	req.Header.Set("Content-Type", "application/json")
	server.http.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
