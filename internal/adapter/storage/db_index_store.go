package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/goydb/mrindex/internal/adapter/index"
	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
	"gopkg.in/mgo.v2/bson"
)

var _ port.ReduceStore = (*IndexStore)(nil)

var progressKey = []byte("progress")

// IndexStore keeps the map entries, reduce results, references and the
// progress of one index.
type IndexStore struct {
	db        *Database
	name      string
	storageID string

	entries *index.MapEntryIndex
	results *index.ResultIndex
	refs    *index.ReferenceIndex
	meta    []byte
	// dirty holds the reduce keys whose entries changed but whose
	// result wasn't recomputed yet
	dirty []byte
}

func (d *Database) indexStore(rec *definitionRecord) *IndexStore {
	prefix := rec.StorageID + ":"
	return &IndexStore{
		db:        d,
		name:      rec.Definition.Name,
		storageID: rec.StorageID,
		entries:   index.NewMapEntryIndex(prefix + "entries"),
		results:   index.NewResultIndex(prefix + "results"),
		refs:      index.NewReferenceIndex(prefix + "refs"),
		meta:      []byte(prefix + "meta"),
		dirty:     []byte(prefix + "dirty"),
	}
}

func (s *IndexStore) String() string {
	return fmt.Sprintf("<IndexStore index=%q storage=%s>", s.name, s.storageID)
}

func (s *IndexStore) ensure(ctx context.Context, tx port.EngineWriteTransaction) {
	s.entries.Ensure(ctx, tx)
	s.results.Ensure(ctx, tx)
	s.refs.Ensure(ctx, tx)
	tx.EnsureBucket(s.meta)
	tx.EnsureBucket(s.dirty)
}

func (s *IndexStore) remove(ctx context.Context, tx port.EngineWriteTransaction) {
	s.entries.Remove(ctx, tx)
	s.results.Remove(ctx, tx)
	s.refs.Remove(ctx, tx)
	tx.DeleteBucket(s.meta)
	tx.DeleteBucket(s.dirty)
}

func (s *IndexStore) Ensure(ctx context.Context) error {
	return s.db.indexes.WriteTransaction(func(tx port.EngineWriteTransaction) error {
		s.ensure(ctx, tx)
		return nil
	})
}

func (s *IndexStore) Remove(ctx context.Context) error {
	return s.db.indexes.WriteTransaction(func(tx port.EngineWriteTransaction) error {
		s.remove(ctx, tx)
		return nil
	})
}

func (s *IndexStore) Stats(ctx context.Context) (*model.IndexStats, error) {
	var stats model.IndexStats
	err := s.db.indexes.ReadTransaction(func(tx port.EngineReadTransaction) error {
		es := s.entries.Stats(tx)
		rs := s.results.Stats(tx)
		stats.MapEntries = es.Keys
		stats.Results = rs.Keys
		stats.Used = es.Used + rs.Used
		stats.Allocated = es.Allocated + rs.Allocated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *IndexStore) progress(tx port.EngineReadTransaction) (*model.IndexProgress, error) {
	data, err := tx.Get(s.meta, progressKey)
	if errors.Is(err, port.ErrNotFound) {
		return model.NewIndexProgress(), nil
	}
	if err != nil {
		return nil, err
	}

	p := model.NewIndexProgress()
	err = bson.Unmarshal(data, p)
	if err != nil {
		return nil, fmt.Errorf("invalid progress of index %q: %w", s.name, err)
	}
	return p, nil
}

func (s *IndexStore) Progress(ctx context.Context) (*model.IndexProgress, error) {
	var p *model.IndexProgress
	err := s.db.indexes.ReadTransaction(func(tx port.EngineReadTransaction) error {
		var err error
		p, err = s.progress(tx)
		return err
	})
	return p, err
}

func sourceKey(collection, id string) []byte {
	return []byte(model.NormalizeCollection(collection) + "\x00" + id)
}

// UpdateMapEntries replaces the map entries of the mapped documents and
// removes the entries of the deleted documents. A document listed more
// than once keeps the entries of its last mapping. The affected keys
// are marked dirty in the same transaction.
func (s *IndexStore) UpdateMapEntries(ctx context.Context, mapped []*port.DocumentMapping, deleted []*model.Tombstone) ([][]byte, error) {
	last := make(map[string]int, len(mapped))
	for i, m := range mapped {
		last[string(sourceKey(m.Collection, m.ID))] = i
	}

	var affected [][]byte
	seen := make(map[string]struct{})
	add := func(keys [][]byte) {
		for _, k := range keys {
			if _, ok := seen[string(k)]; !ok {
				seen[string(k)] = struct{}{}
				affected = append(affected, k)
			}
		}
	}

	err := s.db.indexes.WriteTransaction(func(tx port.EngineWriteTransaction) error {
		for _, t := range deleted {
			src := sourceKey(t.Collection, t.ID)
			if _, ok := last[string(src)]; ok {
				continue // recreated in the same batch
			}
			add(s.entries.RemoveDocument(ctx, tx, src))
			s.refs.RemoveDocument(ctx, tx, t.Collection, t.ID)
		}

		for i, m := range mapped {
			src := sourceKey(m.Collection, m.ID)
			if last[string(src)] != i {
				continue
			}
			keys, err := s.entries.Update(ctx, tx, src, m.Outputs)
			if err != nil {
				return err
			}
			add(keys)
			s.refs.Update(ctx, tx, m.Collection, m.ID, m.References)
		}

		for _, k := range affected {
			tx.Put(s.dirty, k, []byte{1})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}

func (s *IndexStore) MapEntries(ctx context.Context, keys [][]byte) ([]*model.MapOutput, error) {
	var outputs []*model.MapOutput
	err := s.db.indexes.ReadTransaction(func(tx port.EngineReadTransaction) error {
		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := s.entries.Entries(ctx, tx, key, func(out *model.MapOutput) error {
				outputs = append(outputs, out)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outputs, nil
}

func (s *IndexStore) ReferencingDocuments(ctx context.Context, ref model.CollectionReference, ids []string) ([]string, error) {
	var result []string
	err := s.db.indexes.ReadTransaction(func(tx port.EngineReadTransaction) error {
		result = s.refs.Referencing(tx, ref, ids)
		return nil
	})
	return result, err
}

// DirtyKeys returns the reduce keys that still need to be reduced.
func (s *IndexStore) DirtyKeys(ctx context.Context) ([][]byte, error) {
	var keys [][]byte
	err := s.db.indexes.ReadTransaction(func(tx port.EngineReadTransaction) error {
		c := tx.Cursor(s.dirty)
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, copyBytes(k))
		}
		return nil
	})
	return keys, err
}

type reduceWriter struct {
	tx      port.EngineWriteTransaction
	results *index.ResultIndex
	dirty   []byte
}

func (w *reduceWriter) PersistReduceResult(key, raw []byte) {
	w.results.Put(w.tx, key, raw)
}

func (w *reduceWriter) DeleteReduceResult(key []byte) {
	w.results.Delete(w.tx, key)
}

func (w *reduceWriter) MarkClean(key []byte) {
	w.tx.Delete(w.dirty, key)
}

// Commit writes the reduce results and the progress in one transaction.
func (s *IndexStore) Commit(ctx context.Context, fn func(w port.ReduceWriter) error, progress *model.IndexProgress) error {
	data, err := bson.Marshal(progress)
	if err != nil {
		return err
	}
	return s.db.indexes.WriteTransaction(func(tx port.EngineWriteTransaction) error {
		if fn != nil {
			err := fn(&reduceWriter{tx: tx, results: s.results, dirty: s.dirty})
			if err != nil {
				return err
			}
		}
		tx.Put(s.meta, progressKey, data)
		return nil
	})
}

func (s *IndexStore) ReduceResults(ctx context.Context, fn func(key, raw []byte) error) error {
	return s.db.indexes.ReadTransaction(func(tx port.EngineReadTransaction) error {
		return s.results.ForEach(tx, fn)
	})
}

// ReduceResult returns the stored result of the reduce key.
func (s *IndexStore) ReduceResult(ctx context.Context, key []byte) ([]byte, error) {
	var raw []byte
	err := s.db.indexes.ReadTransaction(func(tx port.EngineReadTransaction) error {
		v, err := s.results.Get(tx, key)
		if err != nil {
			return err
		}
		raw = copyBytes(v)
		return nil
	})
	return raw, err
}

func copyBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}
