package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestOnOffEmit(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got []any
	off := bus.On(ExpenseCreated, func(payload any) {
		got = append(got, payload)
	})

	bus.Emit(ExpenseCreated, "first")
	bus.Emit(ExpenseDeleted, "ignored")
	bus.Emit(ExpenseCreated, "second")
	assert.Equal(t, []any{"first", "second"}, got)

	off()
	bus.Emit(ExpenseCreated, "third")
	assert.Len(t, got, 2)
}

func TestOnceDeliversExactlyOnce(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	count := 0
	bus.Once(Synced, func(any) { count++ })

	bus.Emit(Synced, nil)
	bus.Emit(Synced, nil)
	assert.Equal(t, 1, count)
}

func TestPanickingHandlerIsIsolated(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	bus.On(SyncFailed, func(any) { panic("boom") })
	reached := false
	bus.On(SyncFailed, func(any) { reached = true })

	bus.Emit(SyncFailed, nil)
	assert.True(t, reached)
}

func TestClear(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	count := 0
	bus.On(BudgetUpdated, func(any) { count++ })
	bus.Clear()
	bus.Emit(BudgetUpdated, nil)
	assert.Zero(t, count)
}
