package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBudgetState(t *testing.T) {
	assert.Equal(t, "good", BudgetState(0, 200))
	assert.Equal(t, "good", BudgetState(139, 200))
	assert.Equal(t, "warning", BudgetState(140, 200))
	assert.Equal(t, "warning", BudgetState(179, 200))
	assert.Equal(t, "over", BudgetState(180, 200))
	assert.Equal(t, "over", BudgetState(500, 200))
	assert.Equal(t, "over", BudgetState(1, 0))
}
