package orders

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
)

type compensation struct {
	name string
	undo func(ctx context.Context) error
}

// saga collects undo steps during a forward pass. On failure they run in
// reverse order.
type saga struct {
	op    string
	steps []compensation
	log   *zap.Logger
}

func newSaga(op string, log *zap.Logger) *saga {
	return &saga{op: op, log: log}
}

func (s *saga) add(name string, undo func(ctx context.Context) error) {
	s.steps = append(s.steps, compensation{name: name, undo: undo})
}

// abort runs every compensation and wraps cause. Compensations run on a
// context detached from the caller's cancellation so a dropped request
// still unwinds. Every step runs even if an earlier one fails.
// A nil saga returns cause as-is.
func (s *saga) abort(ctx context.Context, cause error) error {
	if s == nil || len(s.steps) == 0 {
		return cause
	}
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := len(s.steps) - 1; i >= 0; i-- {
		st := s.steps[i]
		if err := st.undo(ctx); err != nil {
			s.log.Error("compensation failed",
				zap.String("op", s.op), zap.String("step", st.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", st.name, err))
			continue
		}
		s.log.Info("compensated", zap.String("op", s.op), zap.String("step", st.name))
	}
	return &apperr.CompensationError{Op: s.op, Cause: cause, Compensation: errors.Join(errs...)}
}
