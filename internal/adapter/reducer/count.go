package reducer

import (
	"github.com/goydb/mrindex/pkg/port"
	"gopkg.in/mgo.v2/bson"
)

// count returns the number of members, re-reduced counts are summed.
func count(group *port.ReduceGroup) (bson.D, error) {
	if !group.Rereduce {
		return bson.D{{Name: "count", Value: int64(group.Values.Len())}}, nil
	}

	var total accumulator
	for i := 0; i < group.Values.Len(); i++ {
		v, err := field(group, i, "count")
		if err != nil {
			return nil, err
		}
		total.add(v)
	}
	return bson.D{{Name: "count", Value: total.value()}}, nil
}
