package bbolt_engine

import (
	"fmt"
	"os"
	"time"

	"github.com/goydb/mrindex/pkg/port"
	"go.etcd.io/bbolt"
)

var _ port.DatabaseEngine = (*DB)(nil)

// openTimeout bounds waiting for the file lock of another process.
const openTimeout = time.Second

// DB is one bbolt file.
type DB struct {
	db *bbolt.DB
}

func Open(path string) (*DB, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &DB{db: db}, nil
}

func (db *DB) Path() string {
	return db.db.Path()
}

// Size of the file in bytes.
func (db *DB) Size() (uint64, error) {
	fi, err := os.Stat(db.db.Path())
	if err != nil {
		return 0, err
	}
	return uint64(fi.Size()), nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// ReadTransaction runs fn in one consistent snapshot of the file.
func (db *DB) ReadTransaction(fn func(tx port.EngineReadTransaction) error) error {
	return db.db.View(func(btx *bbolt.Tx) error {
		return fn(NewReadTransaction(btx))
	})
}

// WriteTransaction runs fn on a read snapshot and applies the logged
// writes in one update afterwards. Reads inside fn don't see the
// writes of fn and an fn without writes never opens an update. If fn
// fails nothing is written.
func (db *DB) WriteTransaction(fn func(tx port.EngineWriteTransaction) error) error {
	var wtx *WriteTransaction
	err := db.db.View(func(btx *bbolt.Tx) error {
		wtx = NewWriteTransaction(btx)
		return fn(wtx)
	})
	if err != nil || wtx.Len() == 0 {
		return err
	}
	return db.db.Update(wtx.Commit)
}
