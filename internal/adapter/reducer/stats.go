package reducer

import (
	"math"

	"github.com/goydb/mrindex/pkg/port"
	"gopkg.in/mgo.v2/bson"
)

// stats computes sum, min, max, count and sum of squares of the numeric
// values of the field like the couchdb _stats reducer.
func stats(name string) aggregate {
	return func(group *port.ReduceGroup) (bson.D, error) {
		var sum, sumsqr, count accumulator
		min, max := math.Inf(1), math.Inf(-1)

		for i := 0; i < group.Values.Len(); i++ {
			data, err := group.Values.At(i)
			if err != nil {
				return nil, err
			}

			if group.Rereduce {
				sum.add(data["sum"])
				sumsqr.add(data["sumsqr"])
				count.add(data["count"])
				if _, f, _, ok := number(data["min"]); ok {
					min = math.Min(min, f)
				}
				if _, f, _, ok := number(data["max"]); ok {
					max = math.Max(max, f)
				}
				continue
			}

			_, f, _, ok := number(data[name])
			if !ok {
				continue
			}
			sum.add(data[name])
			sumsqr.add(f * f)
			count.add(1)
			min = math.Min(min, f)
			max = math.Max(max, f)
		}

		out := bson.D{
			{Name: "sum", Value: sum.value()},
			{Name: "min", Value: nil},
			{Name: "max", Value: nil},
			{Name: "count", Value: count.value()},
			{Name: "sumsqr", Value: sumsqr.value()},
		}
		if !math.IsInf(min, 1) {
			out[1].Value = min
			out[2].Value = max
		}
		return out, nil
	}
}
