package port

import (
	"errors"
)

// ErrNotFound is returned for missing databases, documents, indexes
// and keys.
var ErrNotFound = errors.New("resource not found")

// DatabaseEngine is a key value file with buckets. Documents and index
// data of a database live in two engines so their read transactions
// are independent snapshots.
type DatabaseEngine interface {
	ReadTransaction(fn func(tx EngineReadTransaction) error) error
	// WriteTransaction applies the writes of fn atomically after fn
	// returned without error.
	WriteTransaction(fn func(tx EngineWriteTransaction) error) error
	Close() error
}

// KeyWithSeq derives the stored key and value from the next sequence
// of the bucket, used for etag ordered change buckets.
type KeyWithSeq func(key, value []byte, seq uint64) (newKey []byte, newValue []byte)

// EngineWriteTransaction reads the state before the transaction, its
// own writes are not visible until it is committed.
type EngineWriteTransaction interface {
	EngineReadTransaction

	EnsureBucket(bucket []byte)
	DeleteBucket(bucket []byte)
	Put(bucket, k, v []byte)
	PutWithSequence(bucket, k, v []byte, fn KeyWithSeq)
	// SetSequence sets the sequence of the bucket, the caller must
	// serialize writers that derive the value from Sequence
	SetSequence(bucket []byte, seq uint64)
	Delete(bucket, k []byte)
}

// EngineReadTransaction treats a missing bucket as empty.
type EngineReadTransaction interface {
	BucketStats(bucket []byte) *BucketStats
	Cursor(bucket []byte) EngineCursor
	// Get returns ErrNotFound for missing keys. The value is only
	// valid during the transaction.
	Get(bucket, key []byte) ([]byte, error)
	Sequence(bucket []byte) uint64
}

// EngineCursor iterates a bucket in key order, a nil key marks the end.
type EngineCursor interface {
	First() (key []byte, value []byte)
	Last() (key []byte, value []byte)
	Next() (key []byte, value []byte)
	Prev() (key []byte, value []byte)
	Seek(seek []byte) (key []byte, value []byte)
}

// BucketStats of a single bucket, a missing bucket has zero stats.
type BucketStats struct {
	Keys      uint64
	Used      uint64
	Allocated uint64
}
