package bbolt_engine

import (
	"github.com/goydb/mrindex/pkg/port"
	"go.etcd.io/bbolt"
)

var _ port.EngineReadTransaction = (*ReadTransaction)(nil)

// ReadTransaction treats missing buckets as empty, index buckets are
// created lazily by the first batch that writes to them.
type ReadTransaction struct {
	tx *bbolt.Tx
}

func NewReadTransaction(tx *bbolt.Tx) *ReadTransaction {
	return &ReadTransaction{tx: tx}
}

func (tx *ReadTransaction) BucketStats(bucket []byte) *port.BucketStats {
	var stats port.BucketStats
	if b := tx.tx.Bucket(bucket); b != nil {
		s := b.Stats()
		stats.Keys = uint64(s.KeyN)
		stats.Used = uint64(s.BranchInuse + s.LeafInuse)
		stats.Allocated = uint64(s.BranchAlloc + s.LeafAlloc)
	}
	return &stats
}

func (tx *ReadTransaction) Get(bucket, key []byte) ([]byte, error) {
	var value []byte
	if b := tx.tx.Bucket(bucket); b != nil {
		value = b.Get(key)
	}
	if value == nil {
		return nil, port.ErrNotFound
	}
	return value, nil
}

func (tx *ReadTransaction) Cursor(bucket []byte) port.EngineCursor {
	if b := tx.tx.Bucket(bucket); b != nil {
		return b.Cursor()
	}
	return emptyCursor{}
}

func (tx *ReadTransaction) Sequence(bucket []byte) uint64 {
	if b := tx.tx.Bucket(bucket); b != nil {
		return b.Sequence()
	}
	return 0
}

// emptyCursor of a missing bucket.
type emptyCursor struct{}

func (emptyCursor) First() ([]byte, []byte)      { return nil, nil }
func (emptyCursor) Last() ([]byte, []byte)       { return nil, nil }
func (emptyCursor) Next() ([]byte, []byte)       { return nil, nil }
func (emptyCursor) Prev() ([]byte, []byte)       { return nil, nil }
func (emptyCursor) Seek([]byte) ([]byte, []byte) { return nil, nil }
