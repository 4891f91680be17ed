package index

import (
	"context"
	"fmt"

	"github.com/goydb/mrindex/internal/adapter/bbolt_engine"
	"github.com/goydb/mrindex/pkg/port"
)

const invalidationSuffix = ":invalidation"

// EtagIndex keeps the ids of a collection ordered by their last etag.
// Every id is stored once, with the etag of its last write.
type EtagIndex struct {
	name                 string
	bucket, invalidation []byte
}

func NewEtagIndex(name string) *EtagIndex {
	return &EtagIndex{
		name:         name,
		bucket:       []byte(name),
		invalidation: []byte(name + invalidationSuffix),
	}
}

func (i *EtagIndex) String() string {
	return fmt.Sprintf("<EtagIndex name=%q>", i.name)
}

func (i *EtagIndex) Ensure(ctx context.Context, tx port.EngineWriteTransaction) {
	tx.EnsureBucket(i.bucket)
	tx.EnsureBucket(i.invalidation)
}

func (i *EtagIndex) Remove(ctx context.Context, tx port.EngineWriteTransaction) {
	tx.DeleteBucket(i.bucket)
	tx.DeleteBucket(i.invalidation)
}

// Put moves the id to the etag. The buckets must have been ensured in
// the same or an earlier transaction.
func (i *EtagIndex) Put(ctx context.Context, tx port.EngineWriteTransaction, id []byte, etag uint64) {
	i.Delete(ctx, tx, id)
	tx.Put(i.bucket, uint64ToKey(etag), id)
	tx.Put(i.invalidation, id, uint64ToKey(etag))
}

func (i *EtagIndex) Delete(ctx context.Context, tx port.EngineWriteTransaction, id []byte) {
	old, err := tx.Get(i.invalidation, id)
	if err != nil {
		return // not indexed
	}
	tx.Delete(i.bucket, copyBytes(old))
	tx.Delete(i.invalidation, id)
}

// Etag returns the etag of the id or 0 if unknown.
func (i *EtagIndex) Etag(tx port.EngineReadTransaction, id []byte) uint64 {
	v, err := tx.Get(i.invalidation, id)
	if err != nil {
		return 0
	}
	return keyToUint64(v)
}

// Last returns the highest etag.
func (i *EtagIndex) Last(tx port.EngineReadTransaction) uint64 {
	k, _ := tx.Cursor(i.bucket).Last()
	return keyToUint64(k)
}

func (i *EtagIndex) Count(tx port.EngineReadTransaction) uint64 {
	return tx.BucketStats(i.invalidation).Keys
}

// Since calls fn in etag order for all ids with an etag greater than
// from. limit <= 0 is unlimited.
func (i *EtagIndex) Since(tx port.EngineReadTransaction, from uint64, limit int, fn func(etag uint64, id []byte) error) error {
	opts := []bbolt_engine.IteratorOption{bbolt_engine.WithRange(uint64ToKey(from+1), nil)}
	if limit > 0 {
		opts = append(opts, bbolt_engine.WithLimit(limit))
	}
	return bbolt_engine.NewIterator(tx, i.bucket, opts...).ForEach(func(k, v []byte) error {
		return fn(keyToUint64(k), v)
	})
}
