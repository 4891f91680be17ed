package tengoview

import (
	"context"
	"fmt"
	"sync"

	"github.com/d5/tengo/v2"
	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
	"gopkg.in/mgo.v2/bson"
)

var _ port.MapFunc = (*MapFunc)(nil)

// MapFunc is a compiled tengo map function. The function receives the
// document and returns an output map, an array of output maps or
// nothing. Outputs can be emitted with emit(output) as well. Referenced
// documents are loaded with load(collection, id).
type MapFunc struct {
	compiled *tengo.Compiled
	source   string

	mu   sync.Mutex
	load port.Loader
}

func NewMapFunc(source string) (*MapFunc, error) {
	f := &MapFunc{source: source}

	script := newScript(`
	_emitted := []
	emit := func(output) {
		_emitted = append(_emitted, output)
	}
	_fn := ` + source + `
	_returned := _fn(doc)
	`)
	err := script.Add("doc", map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	err = script.Add("load", &tengo.UserFunction{Name: "load", Value: f.loadDocument})
	if err != nil {
		return nil, err
	}

	f.compiled, err = script.Compile()
	if err != nil {
		return nil, fmt.Errorf("script error: %w", err)
	}
	return f, nil
}

func (f *MapFunc) Source() string {
	return f.source
}

func (f *MapFunc) loadDocument(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 2 {
		return nil, tengo.ErrWrongNumArguments
	}
	collection, ok := tengo.ToString(args[0])
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "collection", Expected: "string", Found: args[0].TypeName()}
	}
	id, ok := tengo.ToString(args[1])
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "id", Expected: "string", Found: args[1].TypeName()}
	}
	if f.load == nil {
		return tengo.UndefinedValue, nil
	}

	doc, err := f.load(collection, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return tengo.UndefinedValue, nil
	}
	return tengo.FromInterface(toTengo(documentData(doc)))
}

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

	err := f.compiled.Set("doc", toTengo(documentData(doc)))
	if err != nil {
		return nil, err
	}
	err = f.compiled.RunContext(ctx)
	if err != nil {
		return nil, err
	}

	var outputs []bson.D
	for _, name := range []string{"_emitted", "_returned"} {
		v, err := fromTengo(f.compiled.Get(name).Object())
		if err != nil {
			return nil, fmt.Errorf("document %s/%s: %w", doc.Collection, doc.ID, err)
		}
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
				return nil, fmt.Errorf("map output must be a map, got %T", e)
			}
			outputs = append(outputs, d)
		}
		return outputs, nil
	default:
		return nil, fmt.Errorf("map output must be a map, got %T", v)
	}
}
