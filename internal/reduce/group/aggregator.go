// Package group groups the map outputs of an indexing batch by their
// exact reduce key.
package group

import (
	"context"
	"encoding/hex"

	"github.com/goydb/mrindex/internal/reduce/reducekey"
	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
	"gopkg.in/mgo.v2/bson"
)

var _ port.OrderedValues = (*Group)(nil)

// Group is the set of map outputs that share one reduce key.
type Group struct {
	Hash      uint64
	Key       []byte
	KeyObject interface{}
	Values    []*model.MapOutput
}

func (g *Group) Len() int {
	return len(g.Values)
}

func (g *Group) At(i int) (map[string]interface{}, error) {
	return g.Values[i].Data()
}

// Fields returns the i-th member in its emitted field order.
func (g *Group) Fields(i int) (bson.D, error) {
	return g.Values[i].Fields()
}

func (g *Group) KeyString() string {
	return hex.EncodeToString(g.Key)
}

type Stats struct {
	// KeyComputations counts how often a reduce key was encoded
	KeyComputations int
	Comparisons     int
}

// Aggregator groups map outputs. The key of the inserted output (y) and
// the key of the group representative it is compared with (x) are kept
// in two processors, so a key is only encoded again if the output on
// that side changes.
//
// An aggregator is used by one batch and must be released afterwards.
type Aggregator struct {
	index     string
	extractor *reducekey.Extractor
	pool      *reducekey.Pool

	x, y sideKey

	buckets map[uint64][]*Group
	groups  []*Group
	stats   Stats
}

func New(index string, extractor *reducekey.Extractor, pool *reducekey.Pool) *Aggregator {
	return &Aggregator{
		index:     index,
		extractor: extractor,
		pool:      pool,
		x:         sideKey{proc: pool.Get()},
		y:         sideKey{proc: pool.Get()},
		buckets:   make(map[uint64][]*Group),
	}
}

// Add adds the map output to the group of its reduce key. Outputs that
// miss a group-by field are rejected.
func (a *Aggregator) Add(ctx context.Context, out *model.MapOutput) error {
	computed, err := a.y.ensure(ctx, out, a.computeKey)
	if computed {
		a.stats.KeyComputations++
	}
	if err != nil {
		return err
	}

	hash := a.y.proc.Hash()
	out.ReduceKeyHash = hash

	for _, g := range a.buckets[hash] {
		eq, err := a.equal(ctx, g.Values[0])
		if err != nil {
			return err
		}
		if eq {
			g.Values = append(g.Values, out)
			return nil
		}
	}

	data, err := out.Data()
	if err != nil {
		return err
	}
	keyObject, err := a.extractor.KeyObject(ctx, data)
	if err != nil {
		return err
	}

	g := &Group{
		Hash:      hash,
		Key:       a.y.proc.KeyCopy(),
		KeyObject: keyObject,
		Values:    []*model.MapOutput{out},
	}
	a.buckets[hash] = append(a.buckets[hash], g)
	a.groups = append(a.groups, g)
	return nil
}

func (a *Aggregator) equal(ctx context.Context, representative *model.MapOutput) (bool, error) {
	computed, err := a.x.ensure(ctx, representative, a.computeKey)
	if computed {
		a.stats.KeyComputations++
	}
	if err != nil {
		return false, err
	}
	a.stats.Comparisons++
	return equalKeys(a.x.proc, a.y.proc), nil
}

func (a *Aggregator) computeKey(ctx context.Context, p *reducekey.Processor, out *model.MapOutput) error {
	data, err := out.Data()
	if err != nil {
		return err
	}
	missing, err := a.extractor.Process(ctx, p, data)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return &model.MissingGroupByFieldError{
			Index:   a.index,
			Output:  out.String(),
			Missing: missing,
			Found:   p.Fields(),
		}
	}
	return nil
}

// Len returns the number of groups.
func (a *Aggregator) Len() int {
	return len(a.groups)
}

func (a *Aggregator) Stats() Stats {
	return a.stats
}

// ForEachGroup calls fn once per group in the order the groups were
// first seen. It stops between two groups if the context is done.
func (a *Aggregator) ForEachGroup(ctx context.Context, fn func(g *Group) error) error {
	for _, g := range a.groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(g)
		if err != nil {
			return err
		}
	}
	return nil
}

// Release returns the processors to the pool, the aggregator can't be
// used afterwards.
func (a *Aggregator) Release() {
	if a.x.proc == nil {
		return
	}
	a.pool.Put(a.x.proc)
	a.pool.Put(a.y.proc)
	a.x = sideKey{}
	a.y = sideKey{}
	a.buckets = nil
	a.groups = nil
}
