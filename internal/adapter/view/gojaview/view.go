package gojaview

import (
	"context"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
	"gopkg.in/mgo.v2/bson"
)

var _ port.MapFunc = (*MapFunc)(nil)

const mapPrelude = `
var _result = [];
function emit(output) {
	_result.push(output);
}
`

// MapFunc is a compiled javascript map function. The function receives
// the document and returns an output object, an array of output objects
// or nothing. Outputs can be emitted with emit(output) as well. Referenced
// documents are loaded with load(collection, id).
type MapFunc struct {
	vm     *goja.Runtime
	fn     goja.Callable
	source string

	mu   sync.Mutex
	load port.Loader
}

func NewMapFunc(vm *goja.Runtime, source string) (*MapFunc, error) {
	f := &MapFunc{
		vm:     vm,
		source: source,
	}

	_, err := vm.RunString(mapPrelude)
	if err != nil {
		return nil, err
	}
	err = vm.Set("load", f.loadDocument)
	if err != nil {
		return nil, err
	}

	v, err := vm.RunScript("map.js", "("+source+"\n)")
	if err != nil {
		return nil, fmt.Errorf("script error: %w", err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("script error: map source is not a function")
	}
	f.fn = fn

	return f, nil
}

func (f *MapFunc) Source() string {
	return f.source
}

func (f *MapFunc) loadDocument(collection, id string) goja.Value {
	if f.load == nil {
		return goja.Null()
	}
	doc, err := f.load(collection, id)
	if err != nil {
		panic(f.vm.NewGoError(err))
	}
	if doc == nil {
		return goja.Null()
	}
	return toValue(f.vm, documentData(doc))
}

// documentData returns the data of the document with the _id and
// _collection properties.
func documentData(doc *model.Document) map[string]interface{} {
	data := make(map[string]interface{}, len(doc.Data)+2)
	for k, v := range doc.Data {
		data[k] = v
	}
	data["_id"] = doc.ID
	data["_collection"] = doc.Collection
	return data
}

func (f *MapFunc) Map(ctx context.Context, doc *model.Document, load port.Loader) ([]bson.D, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.load = load
	defer func() { f.load = nil }()

	done := interruptOnDone(ctx, f.vm)
	defer done()

	err := f.vm.Set("_result", f.vm.NewArray())
	if err != nil {
		return nil, err
	}

	ret, err := call(f.vm, f.fn, toValue(f.vm, documentData(doc)))
	if err != nil {
		return nil, err
	}

	emitted, err := export(f.vm.Get("_result"))
	if err != nil {
		return nil, err
	}
	returned, err := export(ret)
	if err != nil {
		return nil, err
	}

	var outputs []bson.D
	for _, v := range []interface{}{emitted, returned} {
		outputs, err = appendOutputs(outputs, v)
		if err != nil {
			return nil, fmt.Errorf("document %s/%s: %w", doc.Collection, doc.ID, err)
		}
	}
	return outputs, nil
}

func appendOutputs(outputs []bson.D, v interface{}) ([]bson.D, error) {
	switch t := v.(type) {
	case nil:
		return outputs, nil
	case bson.D:
		return append(outputs, t), nil
	case []interface{}:
		for _, e := range t {
			d, ok := e.(bson.D)
			if !ok {
				return nil, fmt.Errorf("map output must be an object, got %T", e)
			}
			outputs = append(outputs, d)
		}
		return outputs, nil
	default:
		return nil, fmt.Errorf("map output must be an object, got %T", v)
	}
}
