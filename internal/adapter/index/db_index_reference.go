package index

import (
	"context"
	"fmt"
	"sort"

	"github.com/goydb/mrindex/internal/adapter/bbolt_engine"
	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
)

// ReferenceIndex records which source documents loaded which referenced
// documents while being mapped.
//
// reference key:    referenced collection, referenced id, source collection, source id
// invalidation key: source collection, source id, referenced collection, referenced id
type ReferenceIndex struct {
	name                 string
	bucket, invalidation []byte
}

func NewReferenceIndex(name string) *ReferenceIndex {
	return &ReferenceIndex{
		name:         name,
		bucket:       []byte(name),
		invalidation: []byte(name + invalidationSuffix),
	}
}

func (i *ReferenceIndex) String() string {
	return fmt.Sprintf("<ReferenceIndex name=%q>", i.name)
}

func (i *ReferenceIndex) Ensure(ctx context.Context, tx port.EngineWriteTransaction) {
	tx.EnsureBucket(i.bucket)
	tx.EnsureBucket(i.invalidation)
}

func (i *ReferenceIndex) Remove(ctx context.Context, tx port.EngineWriteTransaction) {
	tx.DeleteBucket(i.bucket)
	tx.DeleteBucket(i.invalidation)
}

func (i *ReferenceIndex) Count(tx port.EngineReadTransaction) uint64 {
	return tx.BucketStats(i.bucket).Keys
}

// Update replaces the references of the source document. refs contains
// the loaded ids by referenced collection.
func (i *ReferenceIndex) Update(ctx context.Context, tx port.EngineWriteTransaction, collection, id string, refs map[string][]string) {
	i.RemoveDocument(ctx, tx, collection, id)

	source := model.NormalizeCollection(collection)
	refColls := make([]string, 0, len(refs))
	for c := range refs {
		refColls = append(refColls, c)
	}
	sort.Strings(refColls)

	for _, refColl := range refColls {
		ref := model.NormalizeCollection(refColl)
		for _, refID := range refs[refColl] {
			key := joinKey(ref, refID, source, id)
			tx.Put(i.bucket, key, nil)
			tx.Put(i.invalidation, joinKey(source, id, ref, refID), key)
		}
	}
}

func (i *ReferenceIndex) RemoveDocument(ctx context.Context, tx port.EngineWriteTransaction, collection, id string) {
	prefix := append(joinKey(model.NormalizeCollection(collection), id), 0)
	_ = bbolt_engine.NewIterator(tx, i.invalidation, bbolt_engine.WithPrefix(prefix)).ForEach(func(k, v []byte) error {
		tx.Delete(i.bucket, copyBytes(v))
		tx.Delete(i.invalidation, copyBytes(k))
		return nil
	})
}

// Referencing returns the ids of the documents of ref.Collection that
// loaded one of the ids of ref.Referenced. The result is sorted and
// free of duplicates.
func (i *ReferenceIndex) Referencing(tx port.EngineReadTransaction, ref model.CollectionReference, ids []string) []string {
	seen := make(map[string]struct{})
	source := model.NormalizeCollection(ref.Collection)
	referenced := model.NormalizeCollection(ref.Referenced)

	for _, refID := range ids {
		prefix := append(joinKey(referenced, refID, source), 0)
		_ = bbolt_engine.NewIterator(tx, i.bucket, bbolt_engine.WithPrefix(prefix)).ForEach(func(k, _ []byte) error {
			seen[string(k[len(prefix):])] = struct{}{}
			return nil
		})
	}

	result := make([]string, 0, len(seen))
	for id := range seen {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}
