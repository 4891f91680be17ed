package storage

import (
	"context"
	"fmt"
	"path"
	"sync"
	"sync/atomic"

	"github.com/goydb/mrindex/internal/adapter/bbolt_engine"
	"github.com/goydb/mrindex/pkg/logger"
	"github.com/goydb/mrindex/pkg/port"
	"github.com/puzpuzpuz/xsync/v3"
)

var (
	_ port.DocumentStorage = (*Database)(nil)
	_ port.SnapshotSource  = (*Database)(nil)
)

// Database keeps documents and index data in two bbolt files, so a
// document snapshot and an index snapshot are independent.
type Database struct {
	name    string
	docs    *bbolt_engine.DB
	indexes *bbolt_engine.DB

	// mu serializes document writes, etags are derived from the
	// sequence read inside the write transaction
	mu          sync.Mutex
	listeners   *xsync.MapOf[uint64, *changeListener]
	listenerSeq atomic.Uint64
	logger      logger.Logger
}

func openDatabase(ctx context.Context, dir, name string, l logger.Logger) (*Database, error) {
	docs, err := bbolt_engine.Open(path.Join(dir, name))
	if err != nil {
		return nil, err
	}
	indexes, err := bbolt_engine.Open(path.Join(dir, name+indexFileSuffix))
	if err != nil {
		docs.Close()
		return nil, err
	}

	d := &Database{
		name:    name,
		docs:    docs,
		indexes:   indexes,
		listeners: xsync.NewMapOf[uint64, *changeListener](),
		logger:    l,
	}

	err = d.docs.WriteTransaction(func(tx port.EngineWriteTransaction) error {
		tx.EnsureBucket(metaBucket)
		tx.EnsureBucket(collectionsBucket)
		allDocs.Ensure(ctx, tx)
		allTombstones.Ensure(ctx, tx)
		return nil
	})
	if err == nil {
		err = d.indexes.WriteTransaction(func(tx port.EngineWriteTransaction) error {
			tx.EnsureBucket(definitionsBucket)
			return nil
		})
	}
	if err != nil {
		d.Close()
		return nil, err
	}

	return d, nil
}

func (d *Database) Name() string {
	return d.name
}

func (d *Database) String() string {
	stats, err := d.Stats(context.Background())
	if err == nil {
		return fmt.Sprintf("<Database name=%q stats=%+v>", d.name, stats)
	}

	return fmt.Sprintf("<Database name=%q stats=%v>", d.name, err)
}

func (d *Database) Close() error {
	err := d.docs.Close()
	ierr := d.indexes.Close()
	if err != nil {
		return err
	}
	return ierr
}
