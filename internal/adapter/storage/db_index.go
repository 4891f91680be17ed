package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
	uuid "github.com/satori/go.uuid"
	"gopkg.in/mgo.v2/bson"
)

var definitionsBucket = []byte("_definitions")

// definitionRecord maps an index name to the buckets of its data. A
// side-by-side index takes over the buckets of the index it replaces
// by pointing the name to its storage id.
type definitionRecord struct {
	Definition *model.IndexDefinition `bson:"definition"`
	StorageID  string                 `bson:"storage_id"`
}

func getDefinition(tx port.EngineReadTransaction, name string) (*definitionRecord, error) {
	data, err := tx.Get(definitionsBucket, []byte(name))
	if errors.Is(err, port.ErrNotFound) {
		return nil, fmt.Errorf("index %q: %w", name, model.ErrIndexNotFound)
	}
	if err != nil {
		return nil, err
	}

	var rec definitionRecord
	err = bson.Unmarshal(data, &rec)
	if err != nil {
		return nil, fmt.Errorf("invalid definition of index %q: %w", name, err)
	}
	rec.Definition.Name = name
	return &rec, nil
}

func putDefinition(tx port.EngineWriteTransaction, name string, rec *definitionRecord) error {
	data, err := bson.Marshal(rec)
	if err != nil {
		return err
	}
	tx.Put(definitionsBucket, []byte(name), data)
	return nil
}

// Definitions returns all index definitions ordered by name.
func (d *Database) Definitions(ctx context.Context) ([]*model.IndexDefinition, error) {
	var defs []*model.IndexDefinition
	err := d.indexes.ReadTransaction(func(tx port.EngineReadTransaction) error {
		var names []string
		c := tx.Cursor(definitionsBucket)
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			names = append(names, string(k))
		}
		for _, name := range names {
			rec, err := getDefinition(tx, name)
			if err != nil {
				return err
			}
			defs = append(defs, rec.Definition)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

// PutDefinition stores a new definition and creates its buckets.
func (d *Database) PutDefinition(ctx context.Context, def *model.IndexDefinition) (*IndexStore, error) {
	rec := &definitionRecord{
		Definition: def,
		StorageID:  uuid.NewV4().String(),
	}
	store := d.indexStore(rec)

	err := d.indexes.WriteTransaction(func(tx port.EngineWriteTransaction) error {
		if _, err := tx.Get(definitionsBucket, []byte(def.Name)); err == nil {
			return fmt.Errorf("index %q: %w", def.Name, model.ErrIndexExists)
		}
		store.ensure(ctx, tx)
		return putDefinition(tx, def.Name, rec)
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

// DeleteDefinition removes the definition and all its data.
func (d *Database) DeleteDefinition(ctx context.Context, name string) error {
	return d.indexes.WriteTransaction(func(tx port.EngineWriteTransaction) error {
		rec, err := getDefinition(tx, name)
		if err != nil {
			return err
		}
		d.indexStore(rec).remove(ctx, tx)
		tx.Delete(definitionsBucket, []byte(name))
		return nil
	})
}

// ReplaceDefinition makes the side-by-side index the active index of
// its logical name. The data of the replaced index is removed.
func (d *Database) ReplaceDefinition(ctx context.Context, replacement string) (*model.IndexDefinition, error) {
	var active *model.IndexDefinition
	err := d.indexes.WriteTransaction(func(tx port.EngineWriteTransaction) error {
		rec, err := getDefinition(tx, replacement)
		if err != nil {
			return err
		}
		if !rec.Definition.IsReplacement() {
			return fmt.Errorf("index %q is not a side-by-side index", replacement)
		}

		name := rec.Definition.LogicalName()
		old, err := getDefinition(tx, name)
		switch {
		case err == nil:
			d.indexStore(old).remove(ctx, tx)
		case !errors.Is(err, model.ErrIndexNotFound):
			return err
		}

		active = rec.Definition.Copy(name)
		tx.Delete(definitionsBucket, []byte(replacement))
		return putDefinition(tx, name, &definitionRecord{
			Definition: active,
			StorageID:  rec.StorageID,
		})
	})
	if err != nil {
		return nil, err
	}
	return active, nil
}

// IndexStore returns the store of the index data.
func (d *Database) IndexStore(ctx context.Context, name string) (*IndexStore, error) {
	var store *IndexStore
	err := d.indexes.ReadTransaction(func(tx port.EngineReadTransaction) error {
		rec, err := getDefinition(tx, name)
		if err != nil {
			return err
		}
		store = d.indexStore(rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}
