package gojaview

import (
	"context"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"github.com/goydb/mrindex/pkg/port"
)

var _ port.ReduceFunc = (*ReduceFunc)(nil)

// reducePrelude defines groupBy(selector).aggregate(reduce), the
// declaration of a reduce function with a key selector.
const reducePrelude = `
function groupBy(selector) {
	if (typeof selector !== 'function') {
		throw new TypeError('groupBy expects a key selector function');
	}
	return {
		aggregate: function (reduce) {
			if (typeof reduce !== 'function') {
				throw new TypeError('aggregate expects a reduce function');
			}
			return { selector: selector, reduce: reduce };
		}
	};
}
`

type reduceSpec struct {
	selector goja.Callable
	reduce   goja.Callable
}

// evaluateReduce evaluates the source, either a plain reduce function or
// groupBy(selector).aggregate(reduce).
func evaluateReduce(vm *goja.Runtime, source string) (*reduceSpec, error) {
	_, err := vm.RunString(reducePrelude)
	if err != nil {
		return nil, err
	}

	v, err := vm.RunScript("reduce.js", "("+source+"\n)")
	if err != nil {
		return nil, err
	}

	if fn, ok := goja.AssertFunction(v); ok {
		return &reduceSpec{reduce: fn}, nil
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("reduce source is neither a function nor groupBy(...).aggregate(...)")
	}
	spec := new(reduceSpec)
	spec.selector, ok = goja.AssertFunction(obj.Get("selector"))
	if !ok {
		return nil, fmt.Errorf("reduce source has no key selector, use groupBy(...).aggregate(...)")
	}
	spec.reduce, ok = goja.AssertFunction(obj.Get("reduce"))
	if !ok {
		return nil, fmt.Errorf("reduce source has no reduce function, use groupBy(...).aggregate(...)")
	}
	return spec, nil
}

// ReduceFunc is a compiled javascript reduce function. It is called
// with one group {key, values, rereduce} and returns the output object.
type ReduceFunc struct {
	vm     *goja.Runtime
	spec   *reduceSpec
	source string
	mu     sync.Mutex
}

func NewReduceFunc(vm *goja.Runtime, source string) (*ReduceFunc, error) {
	spec, err := evaluateReduce(vm, source)
	if err != nil {
		return nil, fmt.Errorf("script error: %w", err)
	}
	return &ReduceFunc{
		vm:     vm,
		spec:   spec,
		source: source,
	}, nil
}

func (f *ReduceFunc) Source() string {
	return f.source
}

// Reset clears a pending interrupt of the previous call.
func (f *ReduceFunc) Reset() {
	f.vm.ClearInterrupt()
}

func (f *ReduceFunc) Reduce(ctx context.Context, group *port.ReduceGroup) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	done := interruptOnDone(ctx, f.vm)
	defer done()

	g := f.vm.NewObject()
	_ = g.Set("key", toValue(f.vm, group.Key))
	_ = g.Set("values", f.vm.NewDynamicArray(&lazyValues{vm: f.vm, values: group.Values}))
	_ = g.Set("rereduce", group.Rereduce)

	ret, err := call(f.vm, f.spec.reduce, g)
	if err != nil {
		return nil, err
	}
	return export(ret)
}

// lazyValues converts a member of the group into a javascript object
// the first time it is read.
type lazyValues struct {
	vm     *goja.Runtime
	values port.Values
	cache  []goja.Value
}

func (l *lazyValues) Len() int {
	return l.values.Len()
}

func (l *lazyValues) Get(idx int) goja.Value {
	if idx < 0 || idx >= l.values.Len() {
		return goja.Undefined()
	}
	if l.cache == nil {
		l.cache = make([]goja.Value, l.values.Len())
	}
	if v := l.cache[idx]; v != nil {
		return v
	}

	var (
		data interface{}
		err  error
	)
	if ordered, ok := l.values.(port.OrderedValues); ok {
		data, err = ordered.Fields(idx)
	} else {
		data, err = l.values.At(idx)
	}
	if err != nil {
		panic(l.vm.NewGoError(err))
	}
	v := toValue(l.vm, data)
	l.cache[idx] = v
	return v
}

func (l *lazyValues) Set(int, goja.Value) bool {
	return false
}

func (l *lazyValues) SetLen(int) bool {
	return false
}
