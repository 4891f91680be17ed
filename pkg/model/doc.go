package model

import (
	"encoding/binary"
	"reflect"
	"strings"
)

// Document is a stored document of a collection. The Etag is
// assigned by the storage on every write and is unique across
// all collections of a database.
type Document struct {
	ID         string                 `bson:"_id" json:"_id"`
	Collection string                 `bson:"collection" json:"collection"`
	Etag       uint64                 `bson:"etag" json:"etag"`
	Deleted    bool                   `bson:"deleted,omitempty" json:"deleted,omitempty"`
	Data       map[string]interface{} `bson:"data,omitempty" json:"data,omitempty"`
}

// Tombstone marks a deleted document, it keeps the etag of the deletion.
type Tombstone struct {
	ID         string `bson:"_id" json:"_id"`
	Collection string `bson:"collection" json:"collection"`
	Etag       uint64 `bson:"etag" json:"etag"`
}

func FormatEtag(etag uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, etag)
	return b
}

func ParseEtag(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (doc *Document) Field(path string) interface{} {
	parts := strings.Split(path, ".")
	v := reflect.ValueOf(doc.Data)
	if !v.IsValid() || v.IsZero() {
		return nil
	}

	// walk the path
	for _, part := range parts {
		// not a map return nil
		if v.Kind() != reflect.Map {
			return nil
		}

		value := v.MapIndex(reflect.ValueOf(part))
		if !value.IsValid() {
			return nil
		}
		v = reflect.ValueOf(value.Interface())
		if !v.IsValid() {
			return nil
		}
	}

	return v.Interface()
}

func (doc *Document) Exists(path string) bool {
	return doc.Field(path) != nil
}
