package tengoview

import (
	"fmt"
	"sort"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/goydb/mrindex/pkg/model"
	"gopkg.in/mgo.v2/bson"
)

// toTengo converts a decoded document value into the types tengo
// accepts.
func toTengo(v interface{}) interface{} {
	switch t := v.(type) {
	case nil, string, int64, int, bool, float64, []byte, time.Time:
		return t
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	case bson.D, bson.M:
		return toTengo(model.Plain(t))
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, e := range t {
			m[k] = toTengo(e)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, e := range t {
			s[i] = toTengo(e)
		}
		return s
	default:
		return fmt.Sprint(t)
	}
}

// fromTengo converts a tengo object into a go value. Tengo maps have no
// property order, maps become bson.D sorted by key.
func fromTengo(o tengo.Object) (interface{}, error) {
	switch t := o.(type) {
	case *tengo.Error:
		return nil, fmt.Errorf("%s", t.Value.String())
	case *tengo.Map:
		return sortedDocument(t.Value)
	case *tengo.ImmutableMap:
		return sortedDocument(t.Value)
	case *tengo.Array:
		return list(t.Value)
	case *tengo.ImmutableArray:
		return list(t.Value)
	case *tengo.Char:
		return string(t.Value), nil
	case *tengo.Undefined, nil:
		return nil, nil
	}

	if o.CanCall() {
		return nil, fmt.Errorf("functions can't be exported")
	}
	v := tengo.ToInterface(o)
	if _, ok := v.(tengo.Object); ok {
		return nil, fmt.Errorf("unsupported value of type %s", o.TypeName())
	}
	return v, nil
}

func sortedDocument(m map[string]tengo.Object) (bson.D, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := make(bson.D, 0, len(keys))
	for _, k := range keys {
		v, err := fromTengo(m[k])
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		doc = append(doc, bson.DocElem{Name: k, Value: v})
	}
	return doc, nil
}

func list(objs []tengo.Object) ([]interface{}, error) {
	l := make([]interface{}, len(objs))
	for i, o := range objs {
		v, err := fromTengo(o)
		if err != nil {
			return nil, err
		}
		l[i] = v
	}
	return l, nil
}
