package gojaview

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/goydb/mrindex/pkg/model"
)

// pathRecorder is passed to the key selector instead of a document.
// Every property read returns a recorder of the extended path.
type pathRecorder struct {
	vm   *goja.Runtime
	path []string
}

func (r *pathRecorder) Get(key string) goja.Value {
	path := append(append([]string(nil), r.path...), key)
	return r.vm.NewDynamicObject(&pathRecorder{vm: r.vm, path: path})
}

func (r *pathRecorder) Set(string, goja.Value) bool { return false }
func (r *pathRecorder) Has(string) bool             { return true }
func (r *pathRecorder) Delete(string) bool          { return false }
func (r *pathRecorder) Keys() []string              { return nil }

func (r *pathRecorder) field(name string) model.GroupByField {
	f := model.GroupByField{Name: name}
	if len(r.path) != 1 || r.path[0] != name {
		f.Path = "$." + strings.Join(r.path, ".")
	}
	return f
}

func introspect(vm *goja.Runtime, selector goja.Callable) ([]model.GroupByField, error) {
	probe := vm.NewDynamicObject(&pathRecorder{vm: vm})
	ret, err := call(vm, selector, probe)
	if err != nil {
		return nil, err
	}

	obj, ok := ret.(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("key selector must return a document field or an object of fields")
	}

	// x => x.Region
	if r, ok := obj.Export().(*pathRecorder); ok {
		if len(r.path) == 0 {
			return nil, fmt.Errorf("key selector returns the whole document")
		}
		return []model.GroupByField{r.field(r.path[len(r.path)-1])}, nil
	}

	// x => ({Region: x.Region, City: x.Address.City})
	var fields []model.GroupByField
	for _, name := range obj.Keys() {
		v, ok := obj.Get(name).(*goja.Object)
		if !ok {
			return nil, fmt.Errorf("key field %q is not a document field", name)
		}
		r, ok := v.Export().(*pathRecorder)
		if !ok || len(r.path) == 0 {
			return nil, fmt.Errorf("key field %q is not a document field", name)
		}
		fields = append(fields, r.field(name))
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("key selector returns no fields")
	}
	return fields, nil
}
