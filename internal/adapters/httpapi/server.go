// Package httpapi exposes the engine to the presentation layer over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/cp25sy5-modjot/expense-engine/internal/domain"
	"github.com/cp25sy5-modjot/expense-engine/internal/usecase"
)

type Server struct {
	expenses  *usecase.ExpenseService
	assistant *usecase.Assistant
	log       zerolog.Logger
	http      *http.Server
}

func New(addr string, expenses *usecase.ExpenseService, assistant *usecase.Assistant, log zerolog.Logger) *Server {
	s := &Server{
		expenses:  expenses,
		assistant: assistant,
		log:       log.With().Str("component", "httpapi").Logger(),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"healthy": true}) })

	r.POST("/expenses", s.createExpense)
	r.GET("/expenses", s.listExpenses)
	r.GET("/expenses/:id", s.getExpense)
	r.PUT("/expenses/:id", s.updateExpense)
	r.DELETE("/expenses/:id", s.deleteExpense)
	r.GET("/search", s.search)
	r.GET("/categories", s.categories)

	r.GET("/budget", s.getBudget)
	r.PUT("/budget", s.setBudget)
	r.GET("/budget/status", s.budgetStatus)

	r.GET("/sync/status", s.syncStatus)
	r.GET("/sync/failed", s.failedSyncs)
	r.POST("/sync/retry", s.retryFailedSyncs)
	r.PUT("/sync/enabled", s.setSyncEnabled)

	r.POST("/assistant/extract", s.extract)
	r.POST("/assistant/voice", s.parseVoice)
	r.GET("/assistant/insights", s.insights)

	s.http = &http.Server{Addr: addr, Handler: r}
	return s
}

func (s *Server) Start() error {
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) createExpense(c *gin.Context) {
	var e domain.Expense
	if err := c.ShouldBindJSON(&e); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	saved, err := s.expenses.CreateExpense(c.Request.Context(), e)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (s *Server) listExpenses(c *gin.Context) {
	var f domain.Filters
	if start, end := c.Query("start"), c.Query("end"); start != "" && end != "" {
		f.DateRange = &domain.DateRange{Start: start, End: end}
	}
	f.Category = c.Query("category")
	f.Merchant = c.Query("merchant")

	p := domain.DefaultPage
	if v, err := intQuery(c, "offset"); err == nil && v >= 0 {
		p.Offset = v
	}
	if v, err := intQuery(c, "limit"); err == nil && v > 0 {
		p.Limit = v
	}

	result, err := s.expenses.Expenses(c.Request.Context(), f, p)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) getExpense(c *gin.Context) {
	e, err := s.expenses.GetExpense(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if e == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "expense not found"})
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) updateExpense(c *gin.Context) {
	var e domain.Expense
	if err := c.ShouldBindJSON(&e); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	e.ID = c.Param("id")
	updated, err := s.expenses.UpdateExpense(c.Request.Context(), e)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteExpense(c *gin.Context) {
	deleted, err := s.expenses.DeleteExpense(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (s *Server) search(c *gin.Context) {
	limit := 20
	if v, err := intQuery(c, "limit"); err == nil && v > 0 {
		limit = v
	}
	matches, err := s.expenses.SearchExpenses(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expenses": matches})
}

func (s *Server) categories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": s.expenses.Categories()})
}

func (s *Server) getBudget(c *gin.Context) {
	budget, err := s.expenses.Budget(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, budget)
}

func (s *Server) setBudget(c *gin.Context) {
	var b domain.Budget
	if err := c.ShouldBindJSON(&b); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.expenses.SetBudget(c.Request.Context(), b); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (s *Server) budgetStatus(c *gin.Context) {
	var (
		status domain.BudgetStatus
		err    error
	)
	if c.Query("period") == "week" {
		status, err = s.expenses.WeeklyBudgetStatus(c.Request.Context())
	} else {
		status, err = s.expenses.DailyBudgetStatus(c.Request.Context())
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) syncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.expenses.SyncStatus())
}

func (s *Server) failedSyncs(c *gin.Context) {
	failed, err := s.expenses.FailedSyncs(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"failed": failed})
}

func (s *Server) retryFailedSyncs(c *gin.Context) {
	if err := s.expenses.RetryFailedSyncs(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.expenses.SyncStatus())
}

func (s *Server) setSyncEnabled(c *gin.Context) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.expenses.SetSyncEnabled(c.Request.Context(), body.Enabled); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.expenses.SyncStatus())
}

func (s *Server) extract(c *gin.Context) {
	var body struct {
		Image        string `json:"image"`
		VoiceContext string `json:"voiceContext"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	extracted, err := s.assistant.ExtractExpenseData(c.Request.Context(), body.Image, body.VoiceContext)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, extracted)
}

func (s *Server) parseVoice(c *gin.Context) {
	var body struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	parsed, err := s.assistant.ParseVoiceExpense(c.Request.Context(), body.Text)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, parsed)
}

func (s *Server) insights(c *gin.Context) {
	timeRange := c.DefaultQuery("range", "week")
	var (
		result domain.QueryResult
		err    error
	)
	if timeRange == "month" {
		result, err = s.expenses.MonthExpenses(c.Request.Context())
	} else {
		result, err = s.expenses.WeekExpenses(c.Request.Context())
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	insights, err := s.assistant.GenerateInsights(c.Request.Context(), result.Expenses, timeRange)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, insights)
}

// fail maps engine errors onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrResponseValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrRequestTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrStorageUnavailable), errors.Is(err, domain.ErrTransportUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		s.log.Error().Err(err).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func intQuery(c *gin.Context, key string) (int, error) {
	return strconv.Atoi(c.Query(key))
}
