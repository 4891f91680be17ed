package tengoview

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/d5/tengo/v2"
	"github.com/goydb/mrindex/pkg/port"
)

var _ port.ReduceFunc = (*ReduceFunc)(nil)

// reduceScript evaluates a plain reduce function or
// groupBy(selector).aggregate(reduce) and either runs the key selector
// on _probe or the reduce function on _group.
const reduceScript = `
groupBy := func(selector) {
	return {
		aggregate: func(reduce) {
			return {selector: selector, reduce: reduce}
		}
	}
}
_spec := {{source}}
_selector := undefined
_reduce := _spec
if !is_callable(_spec) {
	_selector = _spec.selector
	_reduce = _spec.reduce
}
_has_selector := is_callable(_selector)
_result := undefined
if _introspect {
	if _has_selector {
		_result = _selector(_probe)
	}
} else if is_callable(_reduce) {
	_result = _reduce(_group)
} else {
	_result = error("reduce source is neither a function nor groupBy(...).aggregate(...)")
}
`

func compileReduce(source string, introspect bool) (*tengo.Compiled, error) {
	script := newScript(strings.Replace(reduceScript, "{{source}}", source, 1))
	for name, v := range map[string]interface{}{
		"_introspect": introspect,
		"_probe":      &pathRecorder{},
		"_group":      map[string]interface{}{},
	} {
		err := script.Add(name, v)
		if err != nil {
			return nil, err
		}
	}
	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("script error: %w", err)
	}
	return compiled, nil
}

// ReduceFunc is a compiled tengo reduce function, called with one group
// {key, values, rereduce}. Tengo has no lazy arrays, the values of a
// group are converted before the call.
type ReduceFunc struct {
	compiled *tengo.Compiled
	source   string
	mu       sync.Mutex
}

func NewReduceFunc(source string) (*ReduceFunc, error) {
	compiled, err := compileReduce(source, false)
	if err != nil {
		return nil, err
	}
	return &ReduceFunc{compiled: compiled, source: source}, nil
}

func (f *ReduceFunc) Source() string {
	return f.source
}

// Reset is a no-op, every call runs in a new vm.
func (f *ReduceFunc) Reset() {}

func (f *ReduceFunc) Reduce(ctx context.Context, group *port.ReduceGroup) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values := make([]interface{}, group.Values.Len())
	for i := range values {
		data, err := group.Values.At(i)
		if err != nil {
			return nil, err
		}
		values[i] = toTengo(data)
	}

	err := f.compiled.Set("_group", map[string]interface{}{
		"key":      toTengo(group.Key),
		"values":   values,
		"rereduce": group.Rereduce,
	})
	if err != nil {
		return nil, err
	}

	err = f.compiled.RunContext(ctx)
	if err != nil {
		return nil, err
	}
	return fromTengo(f.compiled.Get("_result").Object())
}
