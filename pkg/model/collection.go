package model

import (
	"sort"
	"strings"
)

// AllDocs is the pseudo collection of an index that maps
// every document of the database.
const AllDocs = "@all_docs"

// NormalizeCollection returns the lookup form of a collection name,
// collection names are case-insensitive.
func NormalizeCollection(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func SameCollection(a, b string) bool {
	return NormalizeCollection(a) == NormalizeCollection(b)
}

// CollectionSet is a case-insensitive set of collection names that
// remembers the first spelling of every name.
type CollectionSet map[string]string

func NewCollectionSet(names ...string) CollectionSet {
	s := make(CollectionSet, len(names))
	for _, name := range names {
		s.Add(name)
	}
	return s
}

func (s CollectionSet) Add(name string) {
	key := NormalizeCollection(name)
	if key == "" {
		return
	}
	if _, ok := s[key]; !ok {
		s[key] = name
	}
}

func (s CollectionSet) AddAll(o CollectionSet) {
	for k, v := range o {
		if _, ok := s[k]; !ok {
			s[k] = v
		}
	}
}

func (s CollectionSet) Contains(name string) bool {
	_, ok := s[NormalizeCollection(name)]
	return ok
}

func (s CollectionSet) Intersects(o CollectionSet) bool {
	for k := range o {
		if _, ok := s[k]; ok {
			return true
		}
	}
	return false
}

// Sorted returns the names ordered by their normalized form.
func (s CollectionSet) Sorted() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = s[k]
	}
	return names
}

// CollectionReference is a (source collection, referenced collection)
// pair. Each pair has its own indexing progress.
type CollectionReference struct {
	Collection string `bson:"collection" json:"collection"`
	Referenced string `bson:"referenced" json:"referenced"`
}

func (r CollectionReference) String() string {
	return r.Collection + "/" + r.Referenced
}

// Key returns the normalized key used to store the progress of the pair.
func (r CollectionReference) Key() string {
	return NormalizeCollection(r.Collection) + "/" + NormalizeCollection(r.Referenced)
}
