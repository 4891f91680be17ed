package bbolt_engine

import (
	"bytes"

	"github.com/goydb/mrindex/pkg/port"
)

// Iterator walks the keys of a bucket in byte order. Either a prefix
// or a start and end key restrict the range.
type Iterator struct {
	Skip     int
	Limit    int
	StartKey []byte
	// EndKey is inclusive
	EndKey []byte
	Prefix []byte

	key, value []byte
	cursor     port.EngineCursor
}

type IteratorOption func(*Iterator)

func NewIterator(tx port.EngineReadTransaction, bucket []byte, opts ...IteratorOption) *Iterator {
	iter := &Iterator{
		Limit:  -1,
		cursor: tx.Cursor(bucket),
	}

	for _, opt := range opts {
		opt(iter)
	}

	return iter
}

func WithPrefix(prefix []byte) IteratorOption {
	return func(i *Iterator) {
		i.Prefix = prefix
		i.StartKey = prefix
	}
}

// WithRange iterates from start to end, nil is unbounded.
func WithRange(start, end []byte) IteratorOption {
	return func(i *Iterator) {
		i.StartKey = start
		i.EndKey = end
	}
}

func WithLimit(limit int) IteratorOption {
	return func(i *Iterator) {
		i.Limit = limit
	}
}

func WithSkip(skip int) IteratorOption {
	return func(i *Iterator) {
		i.Skip = skip
	}
}

// First positions the iterator on the first pair of the range.
func (i *Iterator) First() (key, value []byte) {
	if i.StartKey != nil {
		i.key, i.value = i.cursor.Seek(i.StartKey)
	} else {
		i.key, i.value = i.cursor.First()
	}

	for j := 0; j < i.Skip && i.Continue(); j++ {
		i.key, i.value = i.cursor.Next()
	}

	if !i.Continue() {
		return nil, nil
	}
	return i.key, i.value
}

func (i *Iterator) Next() (key, value []byte) {
	if i.Limit > 0 {
		i.Limit--
	}
	i.key, i.value = i.cursor.Next()
	if !i.Continue() {
		return nil, nil
	}
	return i.key, i.value
}

// Continue reports if the current pair is part of the range.
func (i *Iterator) Continue() bool {
	if i.key == nil { // last pair
		return false
	}

	if i.Limit == 0 { // no more limit
		return false
	}

	if i.Prefix != nil && !bytes.HasPrefix(i.key, i.Prefix) {
		return false
	}

	if i.EndKey == nil {
		return true
	}

	return bytes.Compare(i.key, i.EndKey) <= 0
}

// ForEach calls fn for all pairs of the range.
func (i *Iterator) ForEach(fn func(key, value []byte) error) error {
	for k, v := i.First(); k != nil; k, v = i.Next() {
		err := fn(k, v)
		if err != nil {
			return err
		}
	}
	return nil
}
