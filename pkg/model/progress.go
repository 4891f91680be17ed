package model

// CollectionEtags is the indexing progress of one collection or one
// collection reference pair.
type CollectionEtags struct {
	Documents  uint64 `bson:"documents" json:"documents"`
	Tombstones uint64 `bson:"tombstones" json:"tombstones"`
}

// IndexProgress is the last processed etags of an index. Collections
// is keyed by the normalized collection name and References by
// CollectionReference.Key.
type IndexProgress struct {
	Collections map[string]CollectionEtags `bson:"collections" json:"collections"`
	References  map[string]CollectionEtags `bson:"references" json:"references"`
}

func NewIndexProgress() *IndexProgress {
	return &IndexProgress{
		Collections: make(map[string]CollectionEtags),
		References:  make(map[string]CollectionEtags),
	}
}

func (p *IndexProgress) Collection(name string) CollectionEtags {
	if p == nil || p.Collections == nil {
		return CollectionEtags{}
	}
	return p.Collections[NormalizeCollection(name)]
}

func (p *IndexProgress) SetCollection(name string, etags CollectionEtags) {
	if p.Collections == nil {
		p.Collections = make(map[string]CollectionEtags)
	}
	p.Collections[NormalizeCollection(name)] = etags
}

func (p *IndexProgress) Reference(ref CollectionReference) CollectionEtags {
	if p == nil || p.References == nil {
		return CollectionEtags{}
	}
	return p.References[ref.Key()]
}

func (p *IndexProgress) SetReference(ref CollectionReference, etags CollectionEtags) {
	if p.References == nil {
		p.References = make(map[string]CollectionEtags)
	}
	p.References[ref.Key()] = etags
}

// Clone returns a deep copy.
func (p *IndexProgress) Clone() *IndexProgress {
	c := NewIndexProgress()
	if p == nil {
		return c
	}
	for k, v := range p.Collections {
		c.Collections[k] = v
	}
	for k, v := range p.References {
		c.References[k] = v
	}
	return c
}
