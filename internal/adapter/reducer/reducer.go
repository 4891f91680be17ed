// Package reducer contains the reduce functions implemented in go. They
// are selected with a reduce source starting with an underscore, e.g.
// "_sum:Amount".
package reducer

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
	"gopkg.in/mgo.v2/bson"
)

const builtinPrefix = "_"

// IsBuiltin reports if the reduce source names a go reducer.
func IsBuiltin(source string) bool {
	return strings.HasPrefix(strings.TrimSpace(source), builtinPrefix)
}

var _ port.ReduceFunc = (*Builtin)(nil)

// aggregate computes the reduce fields of a group.
type aggregate func(group *port.ReduceGroup) (bson.D, error)

// Builtin is a reduce function implemented in go. Its output contains
// the group-by fields followed by the reduce fields.
type Builtin struct {
	source string
	fields []model.GroupByField
	fn     aggregate
}

// Compile returns the go reducer of the source.
func Compile(source string, fields []model.GroupByField) (*Builtin, error) {
	source = strings.TrimSpace(source)
	name, arg, _ := strings.Cut(source, ":")

	b := &Builtin{source: source, fields: fields}
	switch name {
	case "_count":
		b.fn = count
	case "_sum":
		if arg == "" {
			return nil, fmt.Errorf("reducer %q requires a field, e.g. _sum:Amount", name)
		}
		b.fn = sum(arg)
	case "_stats":
		if arg == "" {
			return nil, fmt.Errorf("reducer %q requires a field, e.g. _stats:Amount", name)
		}
		b.fn = stats(arg)
	default:
		return nil, fmt.Errorf("unknown reducer %q", name)
	}
	return b, nil
}

func (b *Builtin) Source() string {
	return b.source
}

func (b *Builtin) Reset() {}

func (b *Builtin) Reduce(ctx context.Context, group *port.ReduceGroup) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := b.keyFields(group.Key)
	fields, err := b.fn(group)
	if err != nil {
		return nil, err
	}
	return append(out, fields...), nil
}

func (b *Builtin) keyFields(key interface{}) bson.D {
	switch len(b.fields) {
	case 0:
		return bson.D{}
	case 1:
		return bson.D{{Name: b.fields[0].Name, Value: key}}
	}
	if d, ok := key.(bson.D); ok {
		return append(bson.D{}, d...)
	}
	return bson.D{}
}

// number converts a decoded value, integral values stay integers.
func number(v interface{}) (i int64, f float64, isInt bool, ok bool) {
	switch t := v.(type) {
	case int:
		return int64(t), float64(t), true, true
	case int32:
		return int64(t), float64(t), true, true
	case int64:
		return t, float64(t), true, true
	case float32:
		return number(float64(t))
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t), t, true, true
		}
		return 0, t, false, true
	}
	return 0, 0, false, false
}

// accumulator sums integers exactly until the first float is added.
type accumulator struct {
	i     int64
	f     float64
	float bool
}

func (a *accumulator) add(v interface{}) bool {
	i, f, isInt, ok := number(v)
	if !ok {
		return false
	}
	if isInt && !a.float {
		a.i += i
	} else {
		if !a.float {
			a.f = float64(a.i)
			a.float = true
		}
		a.f += f
	}
	return true
}

func (a *accumulator) value() interface{} {
	if a.float {
		return a.f
	}
	return a.i
}

func field(group *port.ReduceGroup, i int, name string) (interface{}, error) {
	data, err := group.Values.At(i)
	if err != nil {
		return nil, err
	}
	return data[name], nil
}
