package storage

import (
	"context"

	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
)

// Collections returns the names of all collections that ever had a
// document, in their first spelling.
func (d *Database) Collections(ctx context.Context) ([]string, error) {
	set := model.NewCollectionSet()
	err := d.docs.ReadTransaction(func(tx port.EngineReadTransaction) error {
		c := tx.Cursor(collectionsBucket)
		for k, v := c.First(); k != nil; k, v = c.Next() {
			set.Add(string(v))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set.Sorted(), nil
}

func (d *Database) Stats(ctx context.Context) (*model.DatabaseStats, error) {
	stats := new(model.DatabaseStats)

	var err error
	stats.FileSize, err = d.docs.Size()
	if err != nil {
		return nil, err
	}
	stats.IndexFileSize, err = d.indexes.Size()
	if err != nil {
		return nil, err
	}

	err = d.docs.ReadTransaction(func(tx port.EngineReadTransaction) error {
		stats.Documents = allDocs.Count(tx)
		stats.Tombstones = allTombstones.Count(tx)
		stats.Collections = tx.BucketStats(collectionsBucket).Keys
		stats.LastEtag = tx.Sequence(metaBucket)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
