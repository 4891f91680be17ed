package bbolt_engine

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goydb/mrindex/pkg/port"
	"go.etcd.io/bbolt"
)

var _ port.EngineWriteTransaction = (*WriteTransaction)(nil)

var errMissingBucket = errors.New("no bucket")

// op is applied inside the bbolt update transaction.
type op func(tx *bbolt.Tx) error

// WriteTransaction reads from a read only bbolt transaction and logs
// all writes. The log is applied at once by a short update transaction
// so an indexing batch only holds the bbolt writer lock while applying.
// Keys and values are copied when logged, they may come from a cursor
// of the read transaction that is closed before the log is applied.
type WriteTransaction struct {
	ReadTransaction
	log []op
}

func NewWriteTransaction(readTx *bbolt.Tx) *WriteTransaction {
	return &WriteTransaction{
		ReadTransaction: ReadTransaction{tx: readTx},
	}
}

// Len is the number of logged writes.
func (t *WriteTransaction) Len() int {
	return len(t.log)
}

func (t *WriteTransaction) EnsureBucket(bucket []byte) {
	bucket = bytes.Clone(bucket)
	t.log = append(t.log, func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
}

func (t *WriteTransaction) DeleteBucket(bucket []byte) {
	bucket = bytes.Clone(bucket)
	t.log = append(t.log, func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket(bucket)
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

func (t *WriteTransaction) Put(bucket, k, v []byte) {
	bucket, k, v = bytes.Clone(bucket), bytes.Clone(k), bytes.Clone(v)
	t.log = append(t.log, func(tx *bbolt.Tx) error {
		b, err := writeBucket(tx, bucket, k)
		if err != nil {
			return err
		}
		return b.Put(k, v)
	})
}

func (t *WriteTransaction) PutWithSequence(bucket, k, v []byte, fn port.KeyWithSeq) {
	bucket, k, v = bytes.Clone(bucket), bytes.Clone(k), bytes.Clone(v)
	t.log = append(t.log, func(tx *bbolt.Tx) error {
		b, err := writeBucket(tx, bucket, k)
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(fn(k, v, seq))
	})
}

func (t *WriteTransaction) SetSequence(bucket []byte, seq uint64) {
	bucket = bytes.Clone(bucket)
	t.log = append(t.log, func(tx *bbolt.Tx) error {
		b, err := writeBucket(tx, bucket, nil)
		if err != nil {
			return err
		}
		return b.SetSequence(seq)
	})
}

// Delete of a key in a missing bucket is a no-op.
func (t *WriteTransaction) Delete(bucket, k []byte) {
	bucket, k = bytes.Clone(bucket), bytes.Clone(k)
	t.log = append(t.log, func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		return b.Delete(k)
	})
}

// Commit applies the log in order and stops at the first error, bbolt
// then rolls back the whole update.
func (t *WriteTransaction) Commit(tx *bbolt.Tx) error {
	for i, apply := range t.log {
		err := apply(tx)
		if err != nil {
			return fmt.Errorf("write %d of %d: %w", i+1, len(t.log), err)
		}
	}
	return nil
}

func writeBucket(tx *bbolt.Tx, bucket, key []byte) (*bbolt.Bucket, error) {
	b := tx.Bucket(bucket)
	if b == nil {
		if key == nil {
			return nil, fmt.Errorf("bucket %q: %w", bucket, errMissingBucket)
		}
		return nil, fmt.Errorf("key %q in bucket %q: %w", key, bucket, errMissingBucket)
	}
	return b, nil
}
