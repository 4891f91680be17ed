// Package gojaview runs javascript map and reduce functions with goja.
package gojaview

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
)

var _ port.ScriptEngine = (*Engine)(nil)

// DefaultMaxCallStackSize limits the recursion depth of user functions.
const DefaultMaxCallStackSize = 1024

type Engine struct {
	MaxCallStackSize int
}

func NewEngine() *Engine {
	return &Engine{MaxCallStackSize: DefaultMaxCallStackSize}
}

func (e *Engine) newRuntime() *goja.Runtime {
	vm := goja.New()
	if e.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(e.MaxCallStackSize)
	}
	return vm
}

func (e *Engine) CompileMap(source string) (port.MapFunc, error) {
	return NewMapFunc(e.newRuntime(), source)
}

func (e *Engine) CompileReduce(source string) (port.ReduceFunc, error) {
	return NewReduceFunc(e.newRuntime(), source)
}

// GroupByFields calls the key selector of the reduce function with a
// recording object and returns the fields it reads. A reduce function
// without key selector has no group-by fields.
func (e *Engine) GroupByFields(reduceSource string) ([]model.GroupByField, error) {
	vm := e.newRuntime()
	spec, err := evaluateReduce(vm, reduceSource)
	if err != nil {
		return nil, &model.KeySelectorError{Source: reduceSource, Reason: err.Error()}
	}
	if spec.selector == nil {
		return nil, nil
	}

	fields, err := introspect(vm, spec.selector)
	if err != nil {
		return nil, &model.KeySelectorError{Source: reduceSource, Reason: err.Error()}
	}
	return fields, nil
}

// interruptOnDone stops the running script once the context is done.
// The returned func must be called after the script returned.
func interruptOnDone(ctx context.Context, vm *goja.Runtime) func() {
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	return func() {
		stop()
		vm.ClearInterrupt()
	}
}

// call invokes fn and turns javascript exceptions and interrupts into
// errors.
func call(vm *goja.Runtime, fn goja.Callable, args ...goja.Value) (result goja.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return fn(goja.Undefined(), args...)
}
