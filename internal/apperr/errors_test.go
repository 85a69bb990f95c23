package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockErrorItemized(t *testing.T) {
	err := &StockError{Items: []Shortage{
		{ProductID: "p1", Requested: 8, Available: 5},
		{ProductID: "p2", Requested: 2, Available: 0},
	}}
	assert.Equal(t, "insufficient stock: p1 (requested 8, available 5); p2 (requested 2, available 0)", err.Error())

	wrapped := fmt.Errorf("create order: %w", err)
	var se *StockError
	require.True(t, errors.As(wrapped, &se))
	assert.Len(t, se.Items, 2)
}

func TestCompensationErrorUnwrapsBoth(t *testing.T) {
	cause := InsufficientStock("p1", 3, 1)
	comp := errors.New("refund failed")

	err := &CompensationError{Op: "create order", Cause: cause, Compensation: comp}
	assert.True(t, IsStock(err))
	assert.ErrorIs(t, err, comp)
	assert.False(t, err.Compensated())
	assert.Contains(t, err.Error(), "compensation failed")

	ok := &CompensationError{Op: "create order", Cause: cause}
	assert.True(t, ok.Compensated())
	assert.Contains(t, ok.Error(), "(compensated)")
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("wrap: %w", NotFound("order", "ONLINE-000001"))))
	assert.False(t, IsNotFound(errors.New("plain")))
	assert.True(t, IsState(&StateError{From: "completed", To: "cancelled"}))
	assert.Equal(t, "state: cannot transition from completed to cancelled", (&StateError{From: "completed", To: "cancelled"}).Error())
}

func TestPointsErrorMessage(t *testing.T) {
	err := Points(PointsBelowMinimum, "minimum %d points required", 40)
	var pe *PointsError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, PointsBelowMinimum, pe.Reason)
	assert.Contains(t, err.Error(), "minimum 40 points required")
}
