package controller

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goydb/mrindex/internal/adapter/storage"
	"github.com/goydb/mrindex/internal/reduce/output"
	"github.com/goydb/mrindex/pkg/logger"
	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
	"github.com/stretchr/testify/require"
	"gopkg.in/mgo.v2/bson"
)

// goEngine is a script engine whose functions are written in Go, it
// makes batches deterministic without a scripting runtime.
type goEngine struct {
	reduce func(ctx context.Context, g *port.ReduceGroup) (interface{}, error)
}

type goMap struct{}

func (goMap) Map(ctx context.Context, doc *model.Document, load port.Loader) ([]bson.D, error) {
	if doc.Data["Fail"] == true {
		return nil, errors.New("map failed")
	}
	var out bson.D
	for _, name := range []string{"Region", "Amount"} {
		if v, ok := doc.Data[name]; ok {
			out = append(out, bson.DocElem{Name: name, Value: v})
		}
	}
	return []bson.D{out}, nil
}

type goReduce struct {
	fn func(ctx context.Context, g *port.ReduceGroup) (interface{}, error)
}

func (r goReduce) Reduce(ctx context.Context, g *port.ReduceGroup) (interface{}, error) {
	return r.fn(ctx, g)
}

func (goReduce) Reset() {}

func (goReduce) Source() string { return "go" }

func (e *goEngine) CompileMap(source string) (port.MapFunc, error) {
	return goMap{}, nil
}

func (e *goEngine) CompileReduce(source string) (port.ReduceFunc, error) {
	return goReduce{fn: e.reduce}, nil
}

func (e *goEngine) GroupByFields(reduceSource string) ([]model.GroupByField, error) {
	return []model.GroupByField{{Name: "Region"}}, nil
}

func sumAmounts(ctx context.Context, g *port.ReduceGroup) (interface{}, error) {
	var sum int64
	for i := 0; i < g.Values.Len(); i++ {
		v, err := g.Values.At(i)
		if err != nil {
			return nil, err
		}
		switch n := v["Amount"].(type) {
		case int:
			sum += int64(n)
		case int64:
			sum += n
		default:
			return nil, fmt.Errorf("amount %v is not a number", v["Amount"])
		}
	}
	return bson.D{{Name: "Region", Value: g.Key}, {Name: "Amount", Value: sum}}, nil
}

func ordersDefinition(name string) *model.IndexDefinition {
	return &model.IndexDefinition{
		Name:     name,
		Language: "go",
		Maps: []model.MapFunction{
			{Collection: "Orders", Source: "map"},
		},
		Reduce:           "reduce",
		GroupBy:          []model.GroupByField{{Name: "Region"}},
		OutputCollection: "Totals",
	}
}

func WithTestStorage(t *testing.T, fn func(ctx context.Context, s *storage.Storage)) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := storage.Open(t.TempDir(), logger.Nop())
	require.NoError(t, err)
	defer s.Close()

	fn(ctx, s)
}

// WithTestIndex creates a database with the definition and compiles it
// against the go engine without starting a loop.
func WithTestIndex(t *testing.T, def *model.IndexDefinition, engine *goEngine, opts Options, fn func(ctx context.Context, db *storage.Database, ix *Index)) {
	WithTestStorage(t, func(ctx context.Context, s *storage.Storage) {
		db, err := s.CreateDatabase(ctx, "test")
		require.NoError(t, err)

		store, err := db.PutDefinition(ctx, def)
		require.NoError(t, err)

		deps := &indexDeps{
			db:      "test",
			docs:    db,
			engines: port.ScriptEngines{"go": engine},
			scripts: NewScriptCache(0),
			schemas: output.NewSchemaCache(0),
			opts:    opts,
			logger:  logger.Nop(),
		}
		ix, err := compileIndex(deps, def, store, NewErrorList(def.Name, 0))
		require.NoError(t, err)

		fn(ctx, db, ix)
	})
}

func putOrder(t *testing.T, db *storage.Database, id, region string, amount int) {
	_, err := db.PutDocument(context.Background(), &model.Document{
		ID:         id,
		Collection: "Orders",
		Data:       map[string]interface{}{"Region": region, "Amount": amount},
	})
	require.NoError(t, err)
}

// results returns the reduce results by the first group by value.
func results(t *testing.T, ix *Index) map[string]map[string]interface{} {
	res := make(map[string]map[string]interface{})
	err := ix.store.ReduceResults(context.Background(), func(key, raw []byte) error {
		doc, err := model.DecodeBinary(raw)
		require.NoError(t, err)
		res[fmt.Sprint(doc["Region"])] = doc
		return nil
	})
	require.NoError(t, err)
	return res
}
