// Package invoke calls the reduce function of an index once per group.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goydb/mrindex/internal/reduce/group"
	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
	pkgerrors "github.com/pkg/errors"
)

// DefaultBudget is the execution time budget of a single reduce call.
const DefaultBudget = 5 * time.Second

type Invoker struct {
	index  string
	fn     port.ReduceFunc
	budget time.Duration
}

func New(index string, fn port.ReduceFunc, budget time.Duration) *Invoker {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Invoker{
		index:  index,
		fn:     fn,
		budget: budget,
	}
}

func (inv *Invoker) Source() string {
	return inv.fn.Source()
}

// Reduce presents the group as {key, values} to the reduce function and
// returns its output. Failures of the function are returned as
// *model.ReduceExecutionError, cancellation of ctx is returned as is.
func (inv *Invoker) Reduce(ctx context.Context, g *group.Group, rereduce bool) (out interface{}, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// every group starts with a fresh budget
	inv.fn.Reset()

	callCtx, cancel := context.WithTimeout(ctx, inv.budget)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = inv.wrap(g, false, pkgerrors.WithStack(fmt.Errorf("panic: %v", r)))
		}
	}()

	out, err = inv.fn.Reduce(callCtx, &port.ReduceGroup{
		Key:      g.KeyObject,
		Values:   g,
		Rereduce: rereduce,
	})

	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return nil, inv.wrap(g, true, pkgerrors.WithStack(
			fmt.Errorf("%w after %s", model.ErrReduceTimeout, inv.budget)))
	case err != nil:
		return nil, inv.wrap(g, false, pkgerrors.WithStack(err))
	case out == nil:
		return nil, inv.wrap(g, false, pkgerrors.New("reduce function returned no output"))
	}
	return out, nil
}

func (inv *Invoker) wrap(g *group.Group, timeout bool, cause error) error {
	return &model.ReduceExecutionError{
		Index:   inv.index,
		Key:     g.KeyString(),
		Source:  inv.fn.Source(),
		Timeout: timeout,
		Cause:   cause,
	}
}
