package model

import (
	"sort"
	"strings"

	"github.com/cespare/xxhash"
	"github.com/fxamacker/cbor/v2"
	"github.com/mitchellh/mapstructure"
)

// ReplacementPrefix is prepended to the name of a side-by-side index
// that is built to replace the active index of the same logical name.
const ReplacementPrefix = "ReplacementOf/"

const (
	LanguageJavaScript = "javascript"
	LanguageTengo      = "tengo"
)

// GroupByField is a field of the reduce key. Path is an optional
// json path (e.g. "$.Address.City") to extract a nested value,
// if empty the top-level property Name is used.
type GroupByField struct {
	Name string `mapstructure:"name" bson:"name" json:"name" cbor:"name"`
	Path string `mapstructure:"path" bson:"path,omitempty" json:"path,omitempty" cbor:"path,omitempty"`
}

// MapFunction maps the documents of one collection.
type MapFunction struct {
	Collection string `mapstructure:"collection" bson:"collection" json:"collection" cbor:"collection"`
	Source     string `mapstructure:"source" bson:"source" json:"source" cbor:"source"`
}

// IndexDefinition is immutable once compiled. Changing a definition
// creates a new definition (side-by-side) instead.
type IndexDefinition struct {
	Name     string        `mapstructure:"name" bson:"name" json:"name" cbor:"-"`
	Language string        `mapstructure:"language" bson:"language,omitempty" json:"language,omitempty" cbor:"language"`
	Maps     []MapFunction `mapstructure:"maps" bson:"maps" json:"maps" cbor:"maps"`
	Reduce   string        `mapstructure:"reduce" bson:"reduce" json:"reduce" cbor:"reduce"`
	// GroupBy is populated from the reduce key-selector if left empty
	GroupBy          []GroupByField `mapstructure:"group_by" bson:"group_by,omitempty" json:"group_by,omitempty" cbor:"group_by"`
	OutputCollection string         `mapstructure:"output_collection" bson:"output_collection,omitempty" json:"output_collection,omitempty" cbor:"output_collection"`
	// References lists the referenced collections per mapped collection
	References map[string][]string `mapstructure:"references" bson:"references,omitempty" json:"references,omitempty" cbor:"references"`
}

// DecodeIndexDefinition decodes a generic (json) object into a definition.
func DecodeIndexDefinition(raw map[string]interface{}) (*IndexDefinition, error) {
	var def IndexDefinition
	err := mapstructure.Decode(raw, &def)
	if err != nil {
		return nil, &InvalidDefinitionError{Reason: err.Error()}
	}
	return &def, nil
}

func (d *IndexDefinition) String() string {
	return "<IndexDefinition name=" + d.Name + " collections=" + strings.Join(d.Collections().Sorted(), ",") + ">"
}

// Validate checks the definition for structural problems, it does not
// check the relation to other indexes.
func (d *IndexDefinition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return &InvalidDefinitionError{Index: d.Name, Reason: "name is required"}
	}
	if len(d.Maps) == 0 {
		return &InvalidDefinitionError{Index: d.Name, Reason: "at least one map function is required"}
	}
	seen := NewCollectionSet()
	for _, m := range d.Maps {
		if NormalizeCollection(m.Collection) == "" {
			return &InvalidDefinitionError{Index: d.Name, Reason: "map function without collection"}
		}
		if seen.Contains(m.Collection) {
			return &InvalidDefinitionError{Index: d.Name, Reason: "collection " + m.Collection + " is mapped twice"}
		}
		seen.Add(m.Collection)
		if strings.TrimSpace(m.Source) == "" {
			return &InvalidDefinitionError{Index: d.Name, Reason: "map function for " + m.Collection + " has no source"}
		}
	}
	for coll := range d.References {
		if !seen.Contains(coll) {
			return &InvalidDefinitionError{Index: d.Name, Reason: "references for unmapped collection " + coll}
		}
		if SameCollection(coll, AllDocs) {
			return &InvalidDefinitionError{Index: d.Name, Reason: "references are not supported for " + AllDocs}
		}
	}
	for _, f := range d.GroupBy {
		if f.Name == "" {
			return &InvalidDefinitionError{Index: d.Name, Reason: "group by field without name"}
		}
	}
	return nil
}

// LogicalName is the name without the side-by-side prefix.
func (d *IndexDefinition) LogicalName() string {
	return strings.TrimPrefix(d.Name, ReplacementPrefix)
}

func (d *IndexDefinition) IsReplacement() bool {
	return strings.HasPrefix(d.Name, ReplacementPrefix)
}

// SameLogicalIndex reports if both definitions are the active and
// side-by-side version of one index.
func (d *IndexDefinition) SameLogicalIndex(o *IndexDefinition) bool {
	return d.LogicalName() == o.LogicalName()
}

func (d *IndexDefinition) LanguageOrDefault() string {
	if d.Language == "" {
		return LanguageJavaScript
	}
	return d.Language
}

func (d *IndexDefinition) HasReduce() bool {
	return strings.TrimSpace(d.Reduce) != ""
}

func (d *IndexDefinition) IsMultiMap() bool {
	return len(d.Maps) > 1
}

func (d *IndexDefinition) HasOutputCollection() bool {
	return NormalizeCollection(d.OutputCollection) != ""
}

// Collections returns the mapped collections.
func (d *IndexDefinition) Collections() CollectionSet {
	s := NewCollectionSet()
	for _, m := range d.Maps {
		s.Add(m.Collection)
	}
	return s
}

func (d *IndexDefinition) MapsAllDocs() bool {
	return d.Collections().Contains(AllDocs)
}

// ReferencedCollections returns the union of all referenced collections.
func (d *IndexDefinition) ReferencedCollections() CollectionSet {
	s := NewCollectionSet()
	for _, refs := range d.References {
		for _, ref := range refs {
			s.Add(ref)
		}
	}
	return s
}

// ReferencesOf returns the collections referenced by the map function
// of the given collection.
func (d *IndexDefinition) ReferencesOf(collection string) CollectionSet {
	s := NewCollectionSet()
	for coll, refs := range d.References {
		if SameCollection(coll, collection) {
			for _, ref := range refs {
				s.Add(ref)
			}
		}
	}
	return s
}

// ReferencePairs returns all (collection, referenced) pairs in a
// stable order.
func (d *IndexDefinition) ReferencePairs() []CollectionReference {
	var pairs []CollectionReference
	for _, coll := range d.Collections().Sorted() {
		for _, ref := range d.ReferencesOf(coll).Sorted() {
			pairs = append(pairs, CollectionReference{Collection: coll, Referenced: ref})
		}
	}
	return pairs
}

// ConsumedCollections are the mapped and referenced collections.
func (d *IndexDefinition) ConsumedCollections() CollectionSet {
	s := d.Collections()
	s.AddAll(d.ReferencedCollections())
	return s
}

// MapFor returns the map function of the collection.
func (d *IndexDefinition) MapFor(collection string) (MapFunction, bool) {
	for _, m := range d.Maps {
		if SameCollection(m.Collection, collection) {
			return m, true
		}
	}
	return MapFunction{}, false
}

var fingerprintEncMode, _ = cbor.CoreDetEncOptions().EncMode()

// Fingerprint of the definition content, the name is not part of the
// fingerprint so a side-by-side copy has the same fingerprint.
func (d *IndexDefinition) Fingerprint() uint64 {
	c := *d
	c.Maps = append([]MapFunction(nil), d.Maps...)
	sort.Slice(c.Maps, func(i, j int) bool {
		return NormalizeCollection(c.Maps[i].Collection) < NormalizeCollection(c.Maps[j].Collection)
	})
	if c.Language == "" {
		c.Language = LanguageJavaScript
	}
	data, err := fingerprintEncMode.Marshal(&c)
	if err != nil {
		panic(err) // definition only consists of encodable types
	}
	return xxhash.Sum64(data)
}

// Copy returns a deep copy of the definition with the passed name.
func (d *IndexDefinition) Copy(name string) *IndexDefinition {
	c := *d
	c.Name = name
	c.Maps = append([]MapFunction(nil), d.Maps...)
	c.GroupBy = append([]GroupByField(nil), d.GroupBy...)
	if d.References != nil {
		c.References = make(map[string][]string, len(d.References))
		for k, v := range d.References {
			c.References[k] = append([]string(nil), v...)
		}
	}
	return &c
}
