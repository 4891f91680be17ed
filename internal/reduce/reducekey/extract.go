package reducekey

import (
	"context"
	"fmt"
	"strings"

	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"
	"github.com/goydb/mrindex/pkg/model"
	"gopkg.in/mgo.v2/bson"
)

// Extractor reads the group-by values of a document in the field order
// of the index definition.
type Extractor struct {
	fields []model.GroupByField
	paths  []gval.Evaluable
}

func NewExtractor(fields []model.GroupByField) (*Extractor, error) {
	e := &Extractor{
		fields: fields,
		paths:  make([]gval.Evaluable, len(fields)),
	}
	for i, f := range fields {
		if f.Path == "" {
			continue
		}
		path, err := jsonpath.New(f.Path)
		if err != nil {
			return nil, fmt.Errorf("invalid path %q of group by field %q: %w", f.Path, f.Name, err)
		}
		e.paths[i] = path
	}
	return e, nil
}

func (e *Extractor) Fields() []model.GroupByField {
	return e.fields
}

func (e *Extractor) Len() int {
	return len(e.fields)
}

// Lookup returns the value of the i-th group-by field. A field that is
// present with value null returns (nil, true).
func (e *Extractor) Lookup(ctx context.Context, data map[string]interface{}, i int) (interface{}, bool, error) {
	if e.paths[i] == nil {
		v, ok := data[e.fields[i].Name]
		return v, ok, nil
	}

	v, err := e.paths[i](ctx, data)
	if err != nil {
		msg := err.Error()
		// a null or scalar parent of a nested field is an absent field
		if strings.HasPrefix(msg, "unknown key") || strings.HasPrefix(msg, "unknown parameter") ||
			strings.Contains(msg, "unsupported value type") {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to evaluate %q for group by field %q: %w", e.fields[i].Path, e.fields[i].Name, err)
	}
	return v, true, nil
}

// Process feeds the group-by values of data into p and returns the
// names of the missing fields.
func (e *Extractor) Process(ctx context.Context, p *Processor, data map[string]interface{}) ([]string, error) {
	var missing []string
	for i, f := range e.fields {
		v, ok, err := e.Lookup(ctx, data, i)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, f.Name)
			continue
		}
		p.Process(v)
	}
	return missing, nil
}

// KeyObject returns the public key of a group: the value itself for one
// group-by field, otherwise an ordered object keyed by field name.
func (e *Extractor) KeyObject(ctx context.Context, data map[string]interface{}) (interface{}, error) {
	if len(e.fields) == 1 {
		v, _, err := e.Lookup(ctx, data, 0)
		return v, err
	}

	key := make(bson.D, 0, len(e.fields))
	for i, f := range e.fields {
		v, ok, err := e.Lookup(ctx, data, i)
		if err != nil {
			return nil, err
		}
		if ok {
			key = append(key, bson.DocElem{Name: f.Name, Value: v})
		}
	}
	return key, nil
}
