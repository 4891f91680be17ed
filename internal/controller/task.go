package controller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash"
	"github.com/goydb/mrindex/internal/reduce/group"
	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
	"gopkg.in/mgo.v2/bson"
)

// OutputDocumentID is the id of the document that mirrors the reduce
// result of key in the output collection.
func OutputDocumentID(key []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(key))
}

// batch is the state of one indexing batch.
type batch struct {
	stats    model.BatchStats
	progress *model.IndexProgress

	docs       []*model.Document
	tombstones []*model.Tombstone
	seen       map[string]struct{}
}

func (b *batch) addDocument(doc *model.Document) bool {
	k := model.NormalizeCollection(doc.Collection) + "\x00" + doc.ID
	if _, ok := b.seen[k]; ok {
		return false
	}
	b.seen[k] = struct{}{}
	b.docs = append(b.docs, doc)
	return true
}

// RunBatch processes the documents, tombstones and changed references
// that arrived since the last batch: map, group the entries of the
// affected keys, reduce, materialize and commit the results together
// with the new progress.
//
// Failures of single documents or groups are recorded and don't fail
// the batch. If ctx is done between two groups the processed groups
// are committed and the batch is marked canceled.
func (ix *Index) RunBatch(ctx context.Context) (model.BatchStats, error) {
	start := time.Now()

	progress, err := ix.store.Progress(ctx)
	if err != nil {
		return model.BatchStats{Index: ix.def.Name}, err
	}

	b := &batch{
		stats:    model.BatchStats{Index: ix.def.Name, StartedAt: start},
		progress: progress.Clone(),
		seen:     make(map[string]struct{}),
	}

	err = ix.read(ctx, progress, b)
	if err != nil {
		return b.stats, err
	}

	mappings := make([]*port.DocumentMapping, 0, len(b.docs))
	for _, doc := range b.docs {
		m, err := ix.mapDocument(ctx, doc)
		if err != nil {
			return b.stats, err
		}
		b.stats.MapOutputs += len(m.Outputs)
		mappings = append(mappings, m)
	}

	affected, err := ix.store.UpdateMapEntries(ctx, mappings, b.tombstones)
	if err != nil {
		return b.stats, fmt.Errorf("failed to update map entries of index %q: %w", ix.def.Name, err)
	}

	// keys left dirty by an earlier interrupted batch are reduced too
	dirty, err := ix.store.DirtyKeys(ctx)
	if err != nil {
		return b.stats, err
	}
	keys := uniqueKeys(affected, dirty)

	err = ix.reduce(ctx, keys, b)
	if err != nil {
		return b.stats, err
	}

	b.stats.Duration = time.Since(start)
	ix.observe(b.stats)
	return b.stats, nil
}

// read collects the documents and tombstones of the mapped collections
// and the documents whose referenced documents changed.
func (ix *Index) read(ctx context.Context, progress *model.IndexProgress, b *batch) error {
	for _, coll := range ix.def.Collections().Sorted() {
		p := progress.Collection(coll)
		next := p

		docs, err := ix.docs.ReadDocuments(ctx, coll, p.Documents, ix.opts.BatchSize)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			b.addDocument(doc)
			next.Documents = doc.Etag
		}
		b.stats.Documents += len(docs)

		tombstones, err := ix.docs.ReadTombstones(ctx, coll, p.Tombstones, ix.opts.BatchSize)
		if err != nil {
			return err
		}
		for _, t := range tombstones {
			next.Tombstones = t.Etag
		}
		b.tombstones = append(b.tombstones, tombstones...)
		b.stats.Tombstones += len(tombstones)

		b.progress.SetCollection(coll, next)
	}

	for _, ref := range ix.def.ReferencePairs() {
		p := progress.Reference(ref)
		next := p

		var ids []string
		docs, err := ix.docs.ReadDocuments(ctx, ref.Referenced, p.Documents, ix.opts.BatchSize)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			ids = append(ids, doc.ID)
			next.Documents = doc.Etag
		}
		tombstones, err := ix.docs.ReadTombstones(ctx, ref.Referenced, p.Tombstones, ix.opts.BatchSize)
		if err != nil {
			return err
		}
		for _, t := range tombstones {
			ids = append(ids, t.ID)
			next.Tombstones = t.Etag
		}
		b.stats.References += len(docs) + len(tombstones)
		b.progress.SetReference(ref, next)

		if len(ids) == 0 {
			continue
		}
		referencing, err := ix.store.ReferencingDocuments(ctx, ref, ids)
		if err != nil {
			return err
		}
		for _, id := range referencing {
			doc, err := ix.docs.GetDocument(ctx, ref.Collection, id)
			if errors.Is(err, port.ErrNotFound) {
				continue // deleted, its tombstone removes the entries
			}
			if err != nil {
				return err
			}
			b.addDocument(doc)
		}
	}
	return nil
}

func uniqueKeys(lists ...[][]byte) [][]byte {
	seen := make(map[string]struct{})
	var keys [][]byte
	for _, list := range lists {
		for _, k := range list {
			if _, ok := seen[string(k)]; ok {
				continue
			}
			seen[string(k)] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

// change is a reduce result that has to be written (Raw set) or
// deleted (Raw nil).
type change struct {
	key []byte
	raw []byte
	doc bson.D
}

func (ix *Index) reduce(ctx context.Context, keys [][]byte, b *batch) error {
	var (
		changes []change
		clean   [][]byte
	)

	commit := func(ctx context.Context) error {
		err := ix.writeOutputDocuments(ctx, changes)
		if err != nil {
			return err
		}
		return ix.store.Commit(ctx, func(w port.ReduceWriter) error {
			for _, c := range changes {
				if c.raw == nil {
					w.DeleteReduceResult(c.key)
				} else {
					w.PersistReduceResult(c.key, c.raw)
				}
			}
			for _, k := range clean {
				w.MarkClean(k)
			}
			return nil
		}, b.progress)
	}

	if len(keys) == 0 {
		return commit(ctx)
	}

	entries, err := ix.store.MapEntries(ctx, keys)
	if err != nil {
		return err
	}

	agg := group.New(ix.def.Name, ix.mapKeys, ix.pool)
	defer agg.Release()

	withEntries := make(map[string]struct{}, len(keys))
	for _, out := range entries {
		withEntries[string(out.ReduceKey)] = struct{}{}
		err := agg.Add(ctx, out)
		if err != nil {
			ix.record(ctx, model.ActionMap, "", docName(out.Collection, out.SourceID), err)
			b.stats.Errors++
		}
	}

	// keys without entries lost their last document
	for _, k := range keys {
		if _, ok := withEntries[string(k)]; !ok {
			changes = append(changes, change{key: k})
			clean = append(clean, k)
			b.stats.Deleted++
		}
	}

	err = agg.ForEachGroup(ctx, func(g *group.Group) error {
		b.stats.Groups++

		res, err := ix.reduceGroup(ctx, g)
		if isCanceled(err) {
			return err
		}
		if err != nil {
			// the key stays dirty and is retried with the next batch
			ix.record(ctx, actionOf(err), g.KeyString(), "", err)
			b.stats.Errors++
			return nil
		}

		clean = append(clean, g.Key)
		old, err := ix.store.ReduceResult(ctx, g.Key)
		if err != nil && !errors.Is(err, port.ErrNotFound) {
			return err
		}
		if bytes.Equal(old, res.Raw) {
			return nil
		}
		changes = append(changes, change{key: g.Key, raw: res.Raw, doc: res.Fields})
		b.stats.Results++
		return nil
	})
	if err != nil && !isCanceled(err) {
		return err
	}
	if err != nil {
		// the remaining keys stay dirty, the done groups are committed
		b.stats.Canceled = true
		ix.logger.InfoCtx(ctx, "batch canceled", "groups", b.stats.Groups)
		ctx = context.WithoutCancel(ctx)
	}

	return commit(ctx)
}

// reduceGroup reduces the group. Groups larger than the chunk size are
// reduced in chunks whose results are grouped again and re-reduced.
func (ix *Index) reduceGroup(ctx context.Context, g *group.Group) (*model.ReduceResult, error) {
	collection := g.Values[0].Collection
	values := g.Values
	rereduce := false

	for {
		if len(values) <= ix.opts.ChunkSize {
			res, err := ix.reduceValues(ctx, g, collection, values, rereduce)
			if err != nil {
				return nil, err
			}
			if !bytes.Equal(res.Key, g.Key) {
				return nil, &model.ReduceExecutionError{
					Index:  ix.def.Name,
					Key:    g.KeyString(),
					Source: ix.invoker.Source(),
					Cause:  errors.New("reduce output changed the group by values"),
				}
			}
			return res, nil
		}

		partials := make([]*model.MapOutput, 0, len(values)/ix.opts.ChunkSize+1)
		for start := 0; start < len(values); start += ix.opts.ChunkSize {
			end := min(start+ix.opts.ChunkSize, len(values))
			res, err := ix.reduceValues(ctx, g, collection, values[start:end], rereduce)
			if err != nil {
				return nil, err
			}
			partials = append(partials, &model.MapOutput{
				SourceID:      g.KeyString(),
				Collection:    collection,
				Raw:           res.Raw,
				ReduceKey:     res.Key,
				ReduceKeyHash: res.Hash,
			})
		}

		var err error
		values, err = ix.regroup(ctx, g, partials)
		if err != nil {
			return nil, err
		}
		rereduce = true
	}
}

func (ix *Index) reduceValues(ctx context.Context, g *group.Group, collection string, values []*model.MapOutput, rereduce bool) (*model.ReduceResult, error) {
	sub := &group.Group{
		Hash:      g.Hash,
		Key:       g.Key,
		KeyObject: g.KeyObject,
		Values:    values,
	}
	obj, err := ix.invoker.Reduce(ctx, sub, rereduce)
	if err != nil {
		return nil, err
	}
	return ix.materializer.Materialize(ctx, collection, obj)
}

// regroup groups partial reduce results in multi-value mode, all of
// them have to fall into the group they were reduced from.
func (ix *Index) regroup(ctx context.Context, g *group.Group, partials []*model.MapOutput) ([]*model.MapOutput, error) {
	agg := group.New(ix.def.Name, ix.outputKeys, ix.multiPool)
	defer agg.Release()

	for _, p := range partials {
		err := agg.Add(ctx, p)
		if err != nil {
			return nil, err
		}
	}
	if agg.Len() != 1 {
		return nil, &model.ReduceExecutionError{
			Index:  ix.def.Name,
			Key:    g.KeyString(),
			Source: ix.invoker.Source(),
			Cause:  fmt.Errorf("partial reduce outputs form %d groups instead of one", agg.Len()),
		}
	}

	var values []*model.MapOutput
	err := agg.ForEachGroup(ctx, func(rg *group.Group) error {
		values = rg.Values
		return nil
	})
	return values, err
}

// writeOutputDocuments mirrors the changed results into the output
// collection. It runs before the results are committed, an interrupted
// batch writes them again. Side-by-side indexes don't write, the output
// collection belongs to the active index until the swap.
func (ix *Index) writeOutputDocuments(ctx context.Context, changes []change) error {
	if !ix.def.HasOutputCollection() || ix.def.IsReplacement() {
		return nil
	}
	for _, c := range changes {
		id := OutputDocumentID(c.key)
		if c.raw == nil {
			_, err := ix.docs.DeleteDocument(ctx, ix.def.OutputCollection, id)
			if err != nil && !errors.Is(err, port.ErrNotFound) {
				return err
			}
			continue
		}
		_, err := ix.docs.PutDocument(ctx, &model.Document{
			ID:         id,
			Collection: ix.def.OutputCollection,
			Data:       model.Plain(c.doc).(map[string]interface{}),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// syncOutputDocuments writes all results into the output collection and
// removes the documents of keys without result. It runs once after a
// side-by-side index took over.
func (ix *Index) syncOutputDocuments(ctx context.Context) error {
	if !ix.def.HasOutputCollection() {
		return nil
	}

	var docs []*model.Document
	err := ix.store.ReduceResults(ctx, func(key, raw []byte) error {
		data, err := model.DecodeBinary(raw)
		if err != nil {
			return err
		}
		docs = append(docs, &model.Document{
			ID:         OutputDocumentID(key),
			Collection: ix.def.OutputCollection,
			Data:       data,
		})
		return nil
	})
	if err != nil {
		return err
	}

	keep := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		keep[doc.ID] = struct{}{}
	}

	var (
		remove []string
		etag   uint64
	)
	for {
		existing, err := ix.docs.ReadDocuments(ctx, ix.def.OutputCollection, etag, ix.opts.BatchSize)
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			break
		}
		for _, doc := range existing {
			etag = doc.Etag
			if _, ok := keep[doc.ID]; !ok {
				remove = append(remove, doc.ID)
			}
		}
	}

	for _, id := range remove {
		_, err := ix.docs.DeleteDocument(ctx, ix.def.OutputCollection, id)
		if err != nil && !errors.Is(err, port.ErrNotFound) {
			return err
		}
	}
	for _, doc := range docs {
		_, err := ix.docs.PutDocument(ctx, doc)
		if err != nil {
			return err
		}
	}

	ix.logger.InfoCtx(ctx, "output collection synchronized", "collection", ix.def.OutputCollection,
		"documents", len(docs), "removed", len(remove))
	return nil
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func actionOf(err error) model.IndexingAction {
	var ree *model.ReduceExecutionError
	if errors.As(err, &ree) {
		return model.ActionReduce
	}
	return model.ActionMaterialize
}

func (ix *Index) observe(stats model.BatchStats) {
	result := "ok"
	switch {
	case stats.Canceled:
		result = "canceled"
	case stats.PartiallyFailed():
		result = "partial"
	}
	IndexBatchCount.WithLabelValues(ix.db, ix.def.Name, result).Inc()
	IndexBatchDuration.WithLabelValues(ix.db, ix.def.Name).Observe(stats.Duration.Seconds())
	IndexDocuments.WithLabelValues(ix.db, ix.def.Name, "documents").Add(float64(stats.Documents))
	IndexDocuments.WithLabelValues(ix.db, ix.def.Name, "tombstones").Add(float64(stats.Tombstones))
	IndexDocuments.WithLabelValues(ix.db, ix.def.Name, "references").Add(float64(stats.References))
	IndexGroups.WithLabelValues(ix.db, ix.def.Name).Add(float64(stats.Groups))
}
