package gojaview

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/dop251/goja"
	"gopkg.in/mgo.v2/bson"
)

// toValue converts a go value into a native javascript value. Maps are
// converted with sorted keys so the property order is deterministic.
func toValue(vm *goja.Runtime, v interface{}) goja.Value {
	switch t := v.(type) {
	case nil:
		return goja.Null()
	case goja.Value:
		return t
	case bson.D:
		obj := vm.NewObject()
		for _, e := range t {
			_ = obj.Set(e.Name, toValue(vm, e.Value))
		}
		return obj
	case bson.M:
		return toValue(vm, map[string]interface{}(t))
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := vm.NewObject()
		for _, k := range keys {
			_ = obj.Set(k, toValue(vm, t[k]))
		}
		return obj
	case []interface{}:
		items := make([]interface{}, len(t))
		for i, e := range t {
			items[i] = toValue(vm, e)
		}
		return vm.NewArray(items...)
	case int:
		return vm.ToValue(int64(t))
	case int32:
		return vm.ToValue(int64(t))
	default:
		return vm.ToValue(v)
	}
}

// export converts a javascript value into a go value. Objects become
// bson.D in property order.
func export(v goja.Value) (interface{}, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		return exportPrimitive(v.Export()), nil
	}

	if _, ok := goja.AssertFunction(obj); ok {
		return nil, fmt.Errorf("functions can't be exported")
	}

	switch obj.ClassName() {
	case "Array":
		n := int(obj.Get("length").ToInteger())
		list := make([]interface{}, n)
		for i := 0; i < n; i++ {
			e, err := export(obj.Get(strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			list[i] = e
		}
		return list, nil
	case "Date":
		if t, ok := obj.Export().(time.Time); ok {
			return t.UTC(), nil
		}
	}

	keys := obj.Keys()
	doc := make(bson.D, 0, len(keys))
	for _, k := range keys {
		e, err := export(obj.Get(k))
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		doc = append(doc, bson.DocElem{Name: k, Value: e})
	}
	return doc, nil
}

// exportPrimitive keeps integral numbers as int64.
func exportPrimitive(v interface{}) interface{} {
	if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return v
}
