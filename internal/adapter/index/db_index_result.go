package index

import (
	"context"
	"fmt"

	"github.com/goydb/mrindex/internal/adapter/bbolt_engine"
	"github.com/goydb/mrindex/pkg/port"
)

// ResultIndex stores one reduce result per reduce key.
type ResultIndex struct {
	name   string
	bucket []byte
}

func NewResultIndex(name string) *ResultIndex {
	return &ResultIndex{
		name:   name,
		bucket: []byte(name),
	}
}

func (i *ResultIndex) String() string {
	return fmt.Sprintf("<ResultIndex name=%q>", i.name)
}

func (i *ResultIndex) Ensure(ctx context.Context, tx port.EngineWriteTransaction) {
	tx.EnsureBucket(i.bucket)
}

func (i *ResultIndex) Remove(ctx context.Context, tx port.EngineWriteTransaction) {
	tx.DeleteBucket(i.bucket)
}

func (i *ResultIndex) Stats(tx port.EngineReadTransaction) *port.BucketStats {
	return tx.BucketStats(i.bucket)
}

func (i *ResultIndex) Put(tx port.EngineWriteTransaction, key, raw []byte) {
	tx.Put(i.bucket, key, raw)
}

func (i *ResultIndex) Delete(tx port.EngineWriteTransaction, key []byte) {
	tx.Delete(i.bucket, key)
}

func (i *ResultIndex) Get(tx port.EngineReadTransaction, key []byte) ([]byte, error) {
	return tx.Get(i.bucket, key)
}

// ForEach calls fn for all results in key order, the slices are only
// valid during the call.
func (i *ResultIndex) ForEach(tx port.EngineReadTransaction, fn func(key, raw []byte) error) error {
	return bbolt_engine.NewIterator(tx, i.bucket).ForEach(fn)
}
