package reducer

import (
	"github.com/goydb/mrindex/pkg/port"
	"gopkg.in/mgo.v2/bson"
)

// sum adds the numeric values of the field, other values are ignored.
// The result is stored under the same field, so re-reducing is the same
// operation.
func sum(name string) aggregate {
	return func(group *port.ReduceGroup) (bson.D, error) {
		var total accumulator
		for i := 0; i < group.Values.Len(); i++ {
			v, err := field(group, i, name)
			if err != nil {
				return nil, err
			}
			total.add(v)
		}
		return bson.D{{Name: name, Value: total.value()}}, nil
	}
}
