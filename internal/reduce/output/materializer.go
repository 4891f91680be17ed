// Package output turns reduce and map outputs into binary documents.
package output

import (
	"context"
	"fmt"
	"reflect"

	"github.com/goydb/mrindex/internal/reduce/reducekey"
	"github.com/goydb/mrindex/pkg/model"
	"gopkg.in/mgo.v2/bson"
)

type Materializer struct {
	index     string
	source    string
	multiMap  bool
	extractor *reducekey.Extractor
	pool      *reducekey.Pool
	schemas   *SchemaCache
}

// New creates the materializer of an index. source is the reduce
// function source, used for error reporting.
func New(def *model.IndexDefinition, source string, extractor *reducekey.Extractor, pool *reducekey.Pool, schemas *SchemaCache) *Materializer {
	return &Materializer{
		index:     def.Name,
		source:    source,
		multiMap:  def.IsMultiMap(),
		extractor: extractor,
		pool:      pool,
		schemas:   schemas,
	}
}

// Schema returns the cached schema of the object's shape, it is created
// on first use.
func (m *Materializer) Schema(collection string, obj interface{}) (*Schema, error) {
	rv, err := objectValue(obj)
	if err != nil {
		return nil, err
	}
	return m.schema(collection, rv)
}

func (m *Materializer) schema(collection string, rv reflect.Value) (*Schema, error) {
	sig, err := signature(rv)
	if err != nil {
		return nil, err
	}

	key := schemaKey{Index: m.index, Signature: sig}
	if m.multiMap {
		key.Collection = model.NormalizeCollection(collection)
	}
	if s, ok := m.schemas.get(key); ok {
		return s, nil
	}

	s := buildSchema(sig, rv)
	m.schemas.add(key, s)
	return s, nil
}

// Document converts the object into an ordered document and its binary
// encoding.
func (m *Materializer) Document(collection string, obj interface{}) (bson.D, []byte, error) {
	rv, err := objectValue(obj)
	if err != nil {
		return nil, nil, fmt.Errorf("index %q: %w", m.index, err)
	}
	s, err := m.schema(collection, rv)
	if err != nil {
		return nil, nil, fmt.Errorf("index %q: %w", m.index, err)
	}

	doc := s.apply(rv)
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("index %q: unable to encode output: %w", m.index, err)
	}
	return doc, raw, nil
}

// Materialize converts a reduce output into a storable result. The
// group-by values are extracted again from the output, so the key of
// the result is encoded exactly like the key of the leaf map outputs.
func (m *Materializer) Materialize(ctx context.Context, collection string, obj interface{}) (*model.ReduceResult, error) {
	doc, raw, err := m.Document(collection, obj)
	if err != nil {
		return nil, err
	}

	p := m.pool.Get()
	defer m.pool.Put(p)

	data := model.Plain(doc).(map[string]interface{})
	missing, err := m.extractor.Process(ctx, p, data)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, &model.MissingGroupByFieldError{
			Index:   m.index,
			Output:  describe(doc),
			Source:  m.source,
			Missing: missing,
			Found:   p.Fields(),
		}
	}

	return &model.ReduceResult{
		Key:    p.KeyCopy(),
		Hash:   p.Hash(),
		Raw:    raw,
		Fields: doc,
	}, nil
}

func objectValue(obj interface{}) (reflect.Value, error) {
	if obj == nil {
		return reflect.Value{}, fmt.Errorf("output must be an object, got null")
	}
	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return reflect.Value{}, fmt.Errorf("output must be an object, got null")
		}
		rv = rv.Elem()
	}
	return rv, nil
}

func describe(doc bson.D) string {
	s := fmt.Sprintf("%v", model.Plain(doc))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
