package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goydb/mrindex/internal/adapter/reducer"
	"github.com/goydb/mrindex/internal/reduce/invoke"
	"github.com/goydb/mrindex/internal/reduce/output"
	"github.com/goydb/mrindex/internal/reduce/reducekey"
	"github.com/goydb/mrindex/pkg/logger"
	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
)

const (
	DefaultBatchSize    = 1000
	DefaultChunkSize    = 1024
	DefaultPollInterval = 5 * time.Second
)

// Options of the indexing loops.
type Options struct {
	BatchSize     int
	ChunkSize     int
	ReduceTimeout time.Duration
	PollInterval  time.Duration
	ErrorListSize int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.ChunkSize < 2 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ReduceTimeout <= 0 {
		o.ReduceTimeout = invoke.DefaultBudget
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ErrorListSize <= 0 {
		o.ErrorListSize = DefaultErrorListSize
	}
	return o
}

// Index is the compiled form of a definition together with everything
// its indexing loop needs. An index is used by one loop at a time.
type Index struct {
	db    string
	def   *model.IndexDefinition
	store port.ReduceStore
	docs  port.DocumentStorage

	maps    map[string]port.MapFunc
	invoker *invoke.Invoker

	// mapKeys reads the group-by values of map outputs (with paths),
	// outputKeys reads them top-level by name from reduce outputs
	mapKeys      *reducekey.Extractor
	outputKeys   *reducekey.Extractor
	pool         *reducekey.Pool
	multiPool    *reducekey.Pool
	materializer *output.Materializer

	errors *ErrorList
	opts   Options
	logger logger.Logger
}

// indexDeps are the shared collaborators used to compile an index.
type indexDeps struct {
	db      string
	docs    port.DocumentStorage
	engines port.ScriptEngines
	scripts *ScriptCache
	schemas *output.SchemaCache
	opts    Options
	logger  logger.Logger
}

func scriptEngine(engines port.ScriptEngines, def *model.IndexDefinition) (port.ScriptEngine, error) {
	engine, ok := engines[def.LanguageOrDefault()]
	if !ok {
		return nil, &model.InvalidDefinitionError{
			Index:  def.Name,
			Reason: fmt.Sprintf("language %q unknown", def.LanguageOrDefault()),
		}
	}
	return engine, nil
}

// compileIndex compiles the map and reduce functions of the definition.
// Compilation problems are returned as *model.InvalidDefinitionError.
func compileIndex(deps *indexDeps, def *model.IndexDefinition, store port.ReduceStore, errs *ErrorList) (*Index, error) {
	if !def.HasReduce() {
		return nil, &model.InvalidDefinitionError{Index: def.Name, Reason: "reduce function is required"}
	}
	if len(def.GroupBy) == 0 {
		return nil, &model.InvalidDefinitionError{Index: def.Name, Reason: "no group by fields"}
	}
	engine, err := scriptEngine(deps.engines, def)
	if err != nil {
		return nil, err
	}

	key := scriptKey{Database: deps.db, Index: def.Name, Fingerprint: def.Fingerprint()}

	ix := &Index{
		db:     deps.db,
		def:    def,
		store:  store,
		docs:   deps.docs,
		maps:   make(map[string]port.MapFunc, len(def.Maps)),
		errors: errs,
		opts:   deps.opts.withDefaults(),
		logger: deps.logger.With("db", deps.db, "index", def.Name),
	}

	for _, m := range def.Maps {
		k := key
		k.Collection = model.NormalizeCollection(m.Collection)
		source := m.Source
		fn, err := deps.scripts.mapFunc(k, func() (port.MapFunc, error) {
			return engine.CompileMap(source)
		})
		if err != nil {
			return nil, &model.InvalidDefinitionError{
				Index:  def.Name,
				Reason: fmt.Sprintf("map function of %s: %v", m.Collection, err),
			}
		}
		ix.maps[k.Collection] = fn
	}

	rfn, err := deps.scripts.reduceFunc(key, func() (port.ReduceFunc, error) {
		if reducer.IsBuiltin(def.Reduce) {
			return reducer.Compile(def.Reduce, def.GroupBy)
		}
		return engine.CompileReduce(def.Reduce)
	})
	if err != nil {
		return nil, &model.InvalidDefinitionError{Index: def.Name, Reason: "reduce function: " + err.Error()}
	}
	ix.invoker = invoke.New(def.Name, rfn, ix.opts.ReduceTimeout)

	ix.mapKeys, err = reducekey.NewExtractor(def.GroupBy)
	if err != nil {
		return nil, &model.InvalidDefinitionError{Index: def.Name, Reason: err.Error()}
	}
	names := make([]model.GroupByField, len(def.GroupBy))
	for i, f := range def.GroupBy {
		names[i] = model.GroupByField{Name: f.Name}
	}
	ix.outputKeys, err = reducekey.NewExtractor(names)
	if err != nil {
		return nil, &model.InvalidDefinitionError{Index: def.Name, Reason: err.Error()}
	}

	ix.pool = reducekey.NewPool(reducekey.SingleValue, 0)
	ix.multiPool = reducekey.NewPool(reducekey.MultiValue, 0)
	ix.materializer = output.New(def, rfn.Source(), ix.outputKeys, ix.pool, deps.schemas)
	return ix, nil
}

func (ix *Index) Definition() *model.IndexDefinition {
	return ix.def
}

func (ix *Index) Errors() *ErrorList {
	return ix.errors
}

func (ix *Index) mapFor(collection string) (port.MapFunc, string, bool) {
	if fn, ok := ix.maps[model.NormalizeCollection(collection)]; ok {
		return fn, collection, true
	}
	if fn, ok := ix.maps[model.AllDocs]; ok {
		return fn, model.AllDocs, true
	}
	return nil, "", false
}

// referenceRecorder loads referenced documents for a map function and
// remembers what was loaded.
type referenceRecorder struct {
	ctx        context.Context
	docs       port.DocumentStorage
	allowed    model.CollectionSet
	collection string
	loaded     map[string][]string
}

func (r *referenceRecorder) load(collection, id string) (*model.Document, error) {
	if !r.allowed.Contains(collection) {
		return nil, fmt.Errorf("collection %q is not referenced by the map function of %q", collection, r.collection)
	}
	if r.loaded == nil {
		r.loaded = make(map[string][]string)
	}
	norm := model.NormalizeCollection(collection)
	r.loaded[norm] = append(r.loaded[norm], id)

	doc, err := r.docs.GetDocument(r.ctx, collection, id)
	if errors.Is(err, port.ErrNotFound) {
		return nil, nil
	}
	return doc, err
}

// mapDocument maps one document and computes the reduce key of every
// output. A failing document has no outputs, its failure is recorded.
// Only cancellation is returned as error.
func (ix *Index) mapDocument(ctx context.Context, doc *model.Document) (*port.DocumentMapping, error) {
	mapping := &port.DocumentMapping{Collection: doc.Collection, ID: doc.ID}

	fn, mapped, ok := ix.mapFor(doc.Collection)
	if !ok {
		return mapping, nil
	}

	rec := &referenceRecorder{
		ctx:        ctx,
		docs:       ix.docs,
		allowed:    ix.def.ReferencesOf(mapped),
		collection: mapped,
	}
	outputs, err := fn.Map(ctx, doc, rec.load)
	// references are kept even if mapping failed, a change of the
	// referenced document may fix the failure
	mapping.References = rec.loaded
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		ix.record(ctx, model.ActionMap, "", docName(doc.Collection, doc.ID), err)
		return mapping, nil
	}

	p := ix.pool.Get()
	defer ix.pool.Put(p)

	for _, fields := range outputs {
		out, err := model.NewMapOutput(doc.ID, doc.Collection, fields)
		if err != nil {
			ix.record(ctx, model.ActionMap, "", docName(doc.Collection, doc.ID), err)
			continue
		}
		data, err := out.Data()
		if err != nil {
			ix.record(ctx, model.ActionMap, "", docName(doc.Collection, doc.ID), err)
			continue
		}

		p.Reset()
		missing, err := ix.mapKeys.Process(ctx, p, data)
		if err == nil && len(missing) > 0 {
			err = &model.MissingGroupByFieldError{
				Index:   ix.def.Name,
				Output:  out.String(),
				Missing: missing,
				Found:   p.Fields(),
			}
		}
		if err != nil {
			ix.record(ctx, model.ActionMap, "", docName(doc.Collection, doc.ID), err)
			continue
		}

		out.ReduceKey = p.KeyCopy()
		out.ReduceKeyHash = p.Hash()
		mapping.Outputs = append(mapping.Outputs, out)
	}
	return mapping, nil
}

func docName(collection, id string) string {
	return collection + "/" + id
}

func (ix *Index) record(ctx context.Context, action model.IndexingAction, key, document string, err error) {
	e := ix.errors.Record(action, key, document, err)
	IndexErrors.WithLabelValues(ix.db, ix.def.Name, string(action)).Inc()

	if isProminent(e) {
		ix.logger.ErrorCtx(ctx, "repeated indexing failure", "action", action, "key", key,
			"document", document, "count", e.Count, "error", err)
	} else {
		ix.logger.WarnCtx(ctx, "indexing failure", "action", action, "key", key,
			"document", document, "error", err)
	}
}
