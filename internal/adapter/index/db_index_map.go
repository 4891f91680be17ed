package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/goydb/mrindex/internal/adapter/bbolt_engine"
	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
	"gopkg.in/mgo.v2/bson"
)

// MapEntryIndex stores the map outputs of all documents by reduce key.
// The same reduce key is stored multiple times by adding the bucket
// sequence to the key. The invalidation bucket records for every source
// document the keys created for it.
type MapEntryIndex struct {
	name                 string
	mu                   sync.RWMutex
	bucket, invalidation []byte
}

func NewMapEntryIndex(name string) *MapEntryIndex {
	return &MapEntryIndex{
		name:         name,
		bucket:       []byte(name),
		invalidation: []byte(name + invalidationSuffix),
	}
}

func (i *MapEntryIndex) String() string {
	return fmt.Sprintf("<MapEntryIndex name=%q>", i.name)
}

func (i *MapEntryIndex) Ensure(ctx context.Context, tx port.EngineWriteTransaction) {
	i.mu.Lock()
	defer i.mu.Unlock()
	tx.EnsureBucket(i.bucket)
	tx.EnsureBucket(i.invalidation)
}

func (i *MapEntryIndex) Remove(ctx context.Context, tx port.EngineWriteTransaction) {
	i.mu.Lock()
	defer i.mu.Unlock()
	tx.DeleteBucket(i.bucket)
	tx.DeleteBucket(i.invalidation)
}

// Stats returns the number of map entries and the size of both buckets.
func (i *MapEntryIndex) Stats(tx port.EngineReadTransaction) *port.BucketStats {
	s := tx.BucketStats(i.bucket)
	si := tx.BucketStats(i.invalidation)
	s.Allocated += si.Allocated
	s.Used += si.Used
	return s
}

// Update replaces the map entries of the source document with the
// outputs. Every output must carry its reduce key, an index without
// group-by fields uses the empty key. It returns the
// reduce keys of the removed and the added entries.
func (i *MapEntryIndex) Update(ctx context.Context, tx port.EngineWriteTransaction, source []byte, outputs []*model.MapOutput) ([][]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	// 1. remove all old entries of the document
	affected := i.removeOldKeys(tx, source)

	// 2. add new entries and invalidation records
	for _, out := range outputs {
		value, err := bson.Marshal(out)
		if err != nil {
			return nil, err
		}

		// the invalidation record stores the key created by the first put
		var entryKey []byte
		tx.PutWithSequence(i.bucket, out.ReduceKey, value, func(k, v []byte, seq uint64) ([]byte, []byte) {
			entryKey = keyWithSeq(k, seq)
			return entryKey, v
		})
		tx.PutWithSequence(i.invalidation, source, nil, func(k, _ []byte, seq uint64) ([]byte, []byte) {
			return keyWithSeq(k, seq), entryKey
		})
		affected = append(affected, out.ReduceKey)
	}

	return affected, nil
}

// RemoveDocument removes all map entries of the source document and
// returns their reduce keys.
func (i *MapEntryIndex) RemoveDocument(ctx context.Context, tx port.EngineWriteTransaction, source []byte) [][]byte {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.removeOldKeys(tx, source)
}

func (i *MapEntryIndex) removeOldKeys(tx port.EngineWriteTransaction, source []byte) [][]byte {
	var keys [][]byte
	iter := bbolt_engine.NewIterator(tx, i.invalidation, bbolt_engine.WithPrefix(source))
	for k, v := iter.First(); k != nil; k, v = iter.Next() {
		if keyLen(k) != len(source) {
			continue // other document with the same prefix
		}

		tx.Delete(i.bucket, copyBytes(v))
		tx.Delete(i.invalidation, copyBytes(k))
		if key := originalKey(v); key != nil {
			keys = append(keys, copyBytes(key))
		}
	}
	return keys
}

// Entries calls fn for all map outputs stored under the reduce key.
func (i *MapEntryIndex) Entries(ctx context.Context, tx port.EngineReadTransaction, key []byte, fn func(out *model.MapOutput) error) error {
	i.mu.RLock()
	defer i.mu.RUnlock()

	iter := bbolt_engine.NewIterator(tx, i.bucket, bbolt_engine.WithPrefix(key))
	for k, v := iter.First(); k != nil; k, v = iter.Next() {
		if keyLen(k) != len(key) {
			continue // longer key with the same prefix
		}
		var out model.MapOutput
		err := bson.Unmarshal(v, &out)
		if err != nil {
			return fmt.Errorf("invalid map entry in %s: %w", i, err)
		}
		err = fn(&out)
		if err != nil {
			return err
		}
	}
	return nil
}
