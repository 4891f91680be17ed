package output

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/mgo.v2/bson"
)

// DefaultSchemaCacheSize is used if the cache size is not configured.
const DefaultSchemaCacheSize = 1024

type extractFunc func(obj reflect.Value) (interface{}, bool)

// Field is one named value of an output object.
type Field struct {
	Name    string
	extract extractFunc
}

// Schema is the ordered list of fields of one output shape.
type Schema struct {
	Signature string
	Fields    []Field
}

type schemaKey struct {
	Index      string
	Collection string
	Signature  string
}

// SchemaCache holds the schemas of all indexes of the process. Entries
// of an index are dropped with Invalidate when its definition changes.
type SchemaCache struct {
	cache *lru.Cache[schemaKey, *Schema]
}

func NewSchemaCache(size int) *SchemaCache {
	if size <= 0 {
		size = DefaultSchemaCacheSize
	}
	cache, err := lru.New[schemaKey, *Schema](size)
	if err != nil {
		panic(err) // only fails for size <= 0
	}
	return &SchemaCache{cache: cache}
}

func (c *SchemaCache) get(key schemaKey) (*Schema, bool) {
	return c.cache.Get(key)
}

func (c *SchemaCache) add(key schemaKey, s *Schema) {
	c.cache.Add(key, s)
}

// Invalidate removes all schemas of the index.
func (c *SchemaCache) Invalidate(index string) {
	for _, key := range c.cache.Keys() {
		if key.Index == index {
			c.cache.Remove(key)
		}
	}
}

func (c *SchemaCache) Len() int {
	return c.cache.Len()
}

// signature returns the structural identity of an output object. Two
// objects with the same signature have the same fields in the same order.
func signature(obj reflect.Value) (string, error) {
	switch t := obj.Interface().(type) {
	case bson.D:
		names := make([]string, len(t))
		for i, e := range t {
			names[i] = e.Name
		}
		return "d:" + strings.Join(names, "\x00"), nil
	}

	switch obj.Kind() {
	case reflect.Map:
		if obj.Type().Key().Kind() != reflect.String {
			return "", fmt.Errorf("output object has non string keys (%s)", obj.Type())
		}
		return "m:" + strings.Join(sortedKeys(obj), "\x00"), nil
	case reflect.Struct:
		return "s:" + obj.Type().PkgPath() + "." + obj.Type().String(), nil
	default:
		return "", fmt.Errorf("output must be an object, got %s", obj.Type())
	}
}

func sortedKeys(m reflect.Value) []string {
	keys := make([]string, 0, m.Len())
	iter := m.MapRange()
	for iter.Next() {
		keys = append(keys, iter.Key().String())
	}
	sort.Strings(keys)
	return keys
}

// buildSchema introspects the object once for its shape.
func buildSchema(sig string, obj reflect.Value) *Schema {
	s := &Schema{Signature: sig}

	if d, ok := obj.Interface().(bson.D); ok {
		for i, e := range d {
			i, name := i, e.Name
			s.Fields = append(s.Fields, Field{
				Name: name,
				extract: func(obj reflect.Value) (interface{}, bool) {
					d := obj.Interface().(bson.D)
					if i >= len(d) || d[i].Name != name {
						return nil, false
					}
					return d[i].Value, true
				},
			})
		}
		return s
	}

	switch obj.Kind() {
	case reflect.Map:
		for _, name := range sortedKeys(obj) {
			key := reflect.ValueOf(name).Convert(obj.Type().Key())
			s.Fields = append(s.Fields, Field{
				Name: name,
				extract: func(obj reflect.Value) (interface{}, bool) {
					v := obj.MapIndex(key)
					if !v.IsValid() {
						return nil, false
					}
					return v.Interface(), true
				},
			})
		}
	case reflect.Struct:
		t := obj.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name, ok := fieldName(f)
			if !ok {
				continue
			}
			i := i
			s.Fields = append(s.Fields, Field{
				Name: name,
				extract: func(obj reflect.Value) (interface{}, bool) {
					return obj.Field(i).Interface(), true
				},
			})
		}
	}
	return s
}

// fieldName follows the naming of the bson package: the tag name or the
// lower cased field name.
func fieldName(f reflect.StructField) (string, bool) {
	if f.PkgPath != "" {
		return "", false
	}
	tag := f.Tag.Get("bson")
	if tag == "-" {
		return "", false
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name, true
	}
	return strings.ToLower(f.Name), true
}

// apply extracts the fields in schema order. A field that can't be
// extracted means the schema was used for the wrong shape.
func (s *Schema) apply(obj reflect.Value) bson.D {
	d := make(bson.D, 0, len(s.Fields))
	for _, f := range s.Fields {
		v, ok := f.extract(obj)
		if !ok {
			panic(fmt.Sprintf("output: schema %q applied to mismatching object, field %q not found", s.Signature, f.Name))
		}
		d = append(d, bson.DocElem{Name: f.Name, Value: normalize(v)})
	}
	return d
}

// normalize converts nested values into a form with a deterministic
// binary encoding, maps become documents sorted by key.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case bson.D:
		d := make(bson.D, len(t))
		for i, e := range t {
			d[i] = bson.DocElem{Name: e.Name, Value: normalize(e.Value)}
		}
		return d
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, e := range t {
			s[i] = normalize(e)
		}
		return s
	case []byte, string, bool, int, int32, int64, float64:
		return v
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		keys := sortedKeys(rv)
		d := make(bson.D, len(keys))
		for i, k := range keys {
			d[i] = bson.DocElem{
				Name:  k,
				Value: normalize(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface()),
			}
		}
		return d
	case reflect.Slice, reflect.Array:
		s := make([]interface{}, rv.Len())
		for i := range s {
			s[i] = normalize(rv.Index(i).Interface())
		}
		return s
	}
	return v
}
