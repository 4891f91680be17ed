package tengoview

import (
	"fmt"
	"sort"
	"strings"

	"github.com/d5/tengo/v2"
	"github.com/goydb/mrindex/pkg/model"
)

// pathRecorder is passed to the key selector instead of a document.
// Every index access returns a recorder of the extended path.
type pathRecorder struct {
	tengo.ObjectImpl
	path []string
}

func (r *pathRecorder) TypeName() string {
	return "document-field"
}

func (r *pathRecorder) String() string {
	return strings.Join(r.path, ".")
}

func (r *pathRecorder) IndexGet(index tengo.Object) (tengo.Object, error) {
	key, ok := index.(*tengo.String)
	if !ok {
		return nil, tengo.ErrInvalidIndexType
	}
	path := append(append([]string(nil), r.path...), key.Value)
	return &pathRecorder{path: path}, nil
}

func (r *pathRecorder) Copy() tengo.Object {
	return &pathRecorder{path: r.path}
}

func (r *pathRecorder) Equals(o tengo.Object) bool {
	return o == r
}

func (r *pathRecorder) IsFalsy() bool {
	return false
}

func (r *pathRecorder) field(name string) model.GroupByField {
	f := model.GroupByField{Name: name}
	if len(r.path) != 1 || r.path[0] != name {
		f.Path = "$." + strings.Join(r.path, ".")
	}
	return f
}

func introspect(source string) ([]model.GroupByField, error) {
	compiled, err := compileReduce(source, true)
	if err != nil {
		return nil, err
	}
	err = compiled.Run()
	if err != nil {
		return nil, err
	}
	if !compiled.Get("_has_selector").Bool() {
		return nil, nil
	}

	switch t := compiled.Get("_result").Object().(type) {
	case *pathRecorder:
		if len(t.path) == 0 {
			return nil, fmt.Errorf("key selector returns the whole document")
		}
		return []model.GroupByField{t.field(t.path[len(t.path)-1])}, nil
	case *tengo.Map:
		return objectFields(t.Value)
	case *tengo.ImmutableMap:
		return objectFields(t.Value)
	default:
		return nil, fmt.Errorf("key selector must return a document field or a map of fields")
	}
}

func objectFields(m map[string]tengo.Object) ([]model.GroupByField, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]model.GroupByField, 0, len(names))
	for _, name := range names {
		r, ok := m[name].(*pathRecorder)
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
