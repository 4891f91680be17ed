package storage

import (
	"context"

	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
)

type docSnapshot struct {
	tx port.EngineReadTransaction
}

func (s docSnapshot) LastDocumentEtag(collection string) uint64 {
	if model.SameCollection(collection, model.AllDocs) {
		return allDocs.Last(s.tx)
	}
	return bucketsOf(collection).etags.Last(s.tx)
}

func (s docSnapshot) LastTombstoneEtag(collection string) uint64 {
	if model.SameCollection(collection, model.AllDocs) {
		return allTombstones.Last(s.tx)
	}
	return bucketsOf(collection).tombstones.Last(s.tx)
}

func (s docSnapshot) count(collection string) uint64 {
	if model.SameCollection(collection, model.AllDocs) {
		return allDocs.Count(s.tx)
	}
	return bucketsOf(collection).etags.Count(s.tx)
}

type indexSnapshot struct {
	tx    port.EngineReadTransaction
	store *IndexStore
}

func (s indexSnapshot) Progress() (*model.IndexProgress, error) {
	return s.store.progress(s.tx)
}

func (s indexSnapshot) PendingKeys() int {
	var n int
	c := s.tx.Cursor(s.store.dirty)
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n
}

// Snapshot keeps a read transaction of the document file open while fn
// runs.
func (d *Database) Snapshot(ctx context.Context, fn func(snap port.DocumentSnapshot) error) error {
	return d.docs.ReadTransaction(func(tx port.EngineReadTransaction) error {
		return fn(docSnapshot{tx: tx})
	})
}

// Snapshots opens the index snapshot before the document snapshot. The
// index can't be ahead of the documents it is compared with, so the
// result errs on the side of stale.
func (d *Database) Snapshots(ctx context.Context, index string, fn func(docs port.DocumentSnapshot, idx port.IndexSnapshot) error) error {
	return d.indexes.ReadTransaction(func(itx port.EngineReadTransaction) error {
		rec, err := getDefinition(itx, index)
		if err != nil {
			return err
		}
		store := d.indexStore(rec)

		return d.docs.ReadTransaction(func(dtx port.EngineReadTransaction) error {
			return fn(docSnapshot{tx: dtx}, indexSnapshot{tx: itx, store: store})
		})
	})
}
