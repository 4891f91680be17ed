package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goydb/mrindex/internal/adapter/index"
	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
	"gopkg.in/mgo.v2/bson"
)

var ErrInvalidDocument = errors.New("invalid document")

var (
	// metaBucket holds the etag counter as bucket sequence
	metaBucket        = []byte("_meta")
	collectionsBucket = []byte("_collections")

	allDocs       = index.NewEtagIndex("etags:" + model.AllDocs)
	allTombstones = index.NewEtagIndex("tombstones:" + model.AllDocs)
)

type collectionBuckets struct {
	docs       []byte
	etags      *index.EtagIndex
	tombstones *index.EtagIndex
}

func bucketsOf(collection string) collectionBuckets {
	name := model.NormalizeCollection(collection)
	return collectionBuckets{
		docs:       []byte("docs:" + name),
		etags:      index.NewEtagIndex("etags:" + name),
		tombstones: index.NewEtagIndex("tombstones:" + name),
	}
}

// allDocsKey identifies a document across collections.
func allDocsKey(collection, id string) []byte {
	return []byte(model.NormalizeCollection(collection) + "\x00" + id)
}

func splitAllDocsKey(k []byte) (collection, id string) {
	i := bytes.IndexByte(k, 0)
	if i < 0 {
		return "", string(k)
	}
	return string(k[:i]), string(k[i+1:])
}

func validateDocument(collection, id string) error {
	switch {
	case id == "" || strings.ContainsRune(id, 0):
		return fmt.Errorf("%w: id %q", ErrInvalidDocument, id)
	case model.NormalizeCollection(collection) == "" || strings.ContainsRune(collection, 0):
		return fmt.Errorf("%w: collection %q", ErrInvalidDocument, collection)
	case model.SameCollection(collection, model.AllDocs):
		return fmt.Errorf("%w: collection %q is reserved", ErrInvalidDocument, collection)
	}
	return nil
}

// PutDocument stores the document with a new etag and returns it.
func (d *Database) PutDocument(ctx context.Context, doc *model.Document) (uint64, error) {
	err := validateDocument(doc.Collection, doc.ID)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	stored := *doc
	stored.Deleted = false
	err = d.docs.WriteTransaction(func(tx port.EngineWriteTransaction) error {
		stored.Etag = tx.Sequence(metaBucket) + 1

		norm := []byte(model.NormalizeCollection(doc.Collection))
		if display, err := tx.Get(collectionsBucket, norm); err == nil {
			stored.Collection = string(display)
		} else {
			tx.Put(collectionsBucket, norm, []byte(doc.Collection))
		}

		data, err := bson.Marshal(&stored)
		if err != nil {
			return err
		}

		b := bucketsOf(doc.Collection)
		tx.EnsureBucket(b.docs)
		b.etags.Ensure(ctx, tx)
		b.tombstones.Ensure(ctx, tx)

		id := []byte(doc.ID)
		tx.Put(b.docs, id, data)
		b.etags.Put(ctx, tx, id, stored.Etag)
		allDocs.Put(ctx, tx, allDocsKey(doc.Collection, doc.ID), stored.Etag)

		// a recreated document is not deleted anymore
		b.tombstones.Delete(ctx, tx, id)
		allTombstones.Delete(ctx, tx, allDocsKey(doc.Collection, doc.ID))

		tx.SetSequence(metaBucket, stored.Etag)
		return nil
	})
	if err != nil {
		return 0, err
	}

	doc.Etag = stored.Etag
	d.NotifyDocumentUpdate(&stored)

	return stored.Etag, nil
}

// DeleteDocument removes the document and creates a tombstone with a
// new etag.
func (d *Database) DeleteDocument(ctx context.Context, collection, id string) (uint64, error) {
	err := validateDocument(collection, id)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var etag uint64
	err = d.docs.WriteTransaction(func(tx port.EngineWriteTransaction) error {
		b := bucketsOf(collection)
		if _, err := tx.Get(b.docs, []byte(id)); err != nil {
			return fmt.Errorf("document %s/%s: %w", collection, id, err)
		}
		etag = tx.Sequence(metaBucket) + 1

		tx.Delete(b.docs, []byte(id))
		b.etags.Delete(ctx, tx, []byte(id))
		allDocs.Delete(ctx, tx, allDocsKey(collection, id))
		b.tombstones.Put(ctx, tx, []byte(id), etag)
		allTombstones.Put(ctx, tx, allDocsKey(collection, id), etag)

		tx.SetSequence(metaBucket, etag)
		return nil
	})
	if err != nil {
		return 0, err
	}

	d.NotifyDocumentUpdate(&model.Document{
		ID:         id,
		Collection: collection,
		Etag:       etag,
		Deleted:    true,
	})

	return etag, nil
}

// GetDocument returns port.ErrNotFound if the document doesn't exist.
func (d *Database) GetDocument(ctx context.Context, collection, id string) (*model.Document, error) {
	var doc *model.Document
	err := d.docs.ReadTransaction(func(tx port.EngineReadTransaction) error {
		var err error
		doc, err = getDocument(tx, collection, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func getDocument(tx port.EngineReadTransaction, collection, id string) (*model.Document, error) {
	data, err := tx.Get(bucketsOf(collection).docs, []byte(id))
	if err != nil {
		return nil, err
	}

	var doc model.Document
	err = bson.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("invalid document %s/%s: %w", collection, id, err)
	}
	if doc.Data == nil {
		doc.Data = make(map[string]interface{})
	}
	doc.Data = model.Plain(doc.Data).(map[string]interface{})
	return &doc, nil
}

func (d *Database) ReadDocuments(ctx context.Context, collection string, fromEtag uint64, limit int) ([]*model.Document, error) {
	var docs []*model.Document
	err := d.docs.ReadTransaction(func(tx port.EngineReadTransaction) error {
		etags, all := allDocs, true
		if !model.SameCollection(collection, model.AllDocs) {
			etags, all = bucketsOf(collection).etags, false
		}

		return etags.Since(tx, fromEtag, limit, func(etag uint64, key []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			coll, id := collection, string(key)
			if all {
				coll, id = splitAllDocsKey(key)
			}
			doc, err := getDocument(tx, coll, id)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (d *Database) ReadTombstones(ctx context.Context, collection string, fromEtag uint64, limit int) ([]*model.Tombstone, error) {
	var tombstones []*model.Tombstone
	err := d.docs.ReadTransaction(func(tx port.EngineReadTransaction) error {
		etags, all := allTombstones, true
		if !model.SameCollection(collection, model.AllDocs) {
			etags, all = bucketsOf(collection).tombstones, false
		}

		return etags.Since(tx, fromEtag, limit, func(etag uint64, key []byte) error {
			coll, id := collection, string(key)
			if all {
				coll, id = splitAllDocsKey(key)
			}
			tombstones = append(tombstones, &model.Tombstone{
				ID:         id,
				Collection: coll,
				Etag:       etag,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return tombstones, nil
}

func (d *Database) CollectionStats(ctx context.Context, collection string) (*model.CollectionStats, error) {
	var stats model.CollectionStats
	err := d.docs.ReadTransaction(func(tx port.EngineReadTransaction) error {
		snap := docSnapshot{tx: tx}
		stats.Count = snap.count(collection)
		stats.LastEtag = snap.LastDocumentEtag(collection)
		stats.LastTombstoneEtag = snap.LastTombstoneEtag(collection)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
