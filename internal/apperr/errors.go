// Package apperr holds the error taxonomy shared by the ledgers and the order
// coordinator. Callers inspect errors with errors.As against the concrete
// types below.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Msg
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

// Validation builds a *ValidationError.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an absent order, customer, product or batch.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// NotFound builds a *NotFoundError.
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// Shortage is one line of a StockError.
type Shortage struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// StockError reports insufficient stock, itemized per product.
type StockError struct {
	Items []Shortage
}

func (e *StockError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, s := range e.Items {
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", s.ProductID, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

// InsufficientStock builds a single-line *StockError.
func InsufficientStock(productID string, requested, available int) error {
	return &StockError{Items: []Shortage{{ProductID: productID, Requested: requested, Available: available}}}
}

// PointsReason classifies a PointsError.
type PointsReason string

const (
	PointsBelowMinimum PointsReason = "below_minimum"
	PointsAboveCap     PointsReason = "above_cap"
	PointsInsufficient PointsReason = "insufficient_balance"
	PointsInvalid      PointsReason = "invalid_amount"
)

// PointsError reports a rejected loyalty-points operation.
type PointsError struct {
	Reason PointsReason
	Msg    string
}

func (e *PointsError) Error() string {
	return "points: " + e.Msg
}

// Points builds a *PointsError.
func Points(reason PointsReason, format string, args ...any) error {
	return &PointsError{Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

// StateError reports an illegal status transition or a repeated cancellation.
type StateError struct {
	From string
	To   string
	Msg  string
}

func (e *StateError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("state: %s -> %s: %s", e.From, e.To, e.Msg)
	}
	return fmt.Sprintf("state: cannot transition from %s to %s", e.From, e.To)
}

// AuthorizationError reports an actor lacking the role for an action.
type AuthorizationError struct {
	ActorID string
	Role    string
	Action  string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization: actor %q (role %q) may not %s", e.ActorID, e.Role, e.Action)
}

// CompensationError is returned by the coordinator when a multi-step
// operation failed after some side effects were applied. It unwraps to both
// the triggering cause and, when compensation itself failed, that failure.
type CompensationError struct {
	Op           string
	Cause        error
	Compensation error
}

func (e *CompensationError) Error() string {
	if e.Compensation != nil {
		return fmt.Sprintf("%s: %v (compensation failed: %v)", e.Op, e.Cause, e.Compensation)
	}
	return fmt.Sprintf("%s: %v (compensated)", e.Op, e.Cause)
}

func (e *CompensationError) Unwrap() []error {
	if e.Compensation == nil {
		return []error{e.Cause}
	}
	return []error{e.Cause, e.Compensation}
}

// Compensated reports whether every compensation ran successfully.
func (e *CompensationError) Compensated() bool { return e.Compensation == nil }

// IsNotFound reports whether err carries a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsStock reports whether err carries a *StockError.
func IsStock(err error) bool {
	var se *StockError
	return errors.As(err, &se)
}

// IsState reports whether err carries a *StateError.
func IsState(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}
