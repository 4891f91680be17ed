// Package validate checks that an index writing reduce results into an
// output collection can't feed itself.
package validate

import (
	"sort"

	"github.com/goydb/mrindex/pkg/model"
)

// OutputCollection validates the output collection of def against the
// definitions that already exist in the database. It returns a
// *model.SelfLoopError, *model.DuplicateOutputError or *model.CycleError.
// Definitions of the same logical index as def are ignored, since def
// replaces them.
func OutputCollection(def *model.IndexDefinition, existing []*model.IndexDefinition) error {
	if !def.HasOutputCollection() {
		return nil
	}
	out := def.OutputCollection

	if def.MapsAllDocs() {
		return &model.SelfLoopError{Index: def.Name, OutputCollection: out, AllDocs: true}
	}
	if def.Collections().Contains(out) {
		return &model.SelfLoopError{Index: def.Name, OutputCollection: out}
	}
	if def.ReferencedCollections().Contains(out) {
		return &model.SelfLoopError{Index: def.Name, OutputCollection: out, Referenced: true}
	}

	others := make([]*node, 0, len(existing))
	for _, o := range existing {
		if o.SameLogicalIndex(def) {
			continue
		}
		if o.HasOutputCollection() && model.SameCollection(o.OutputCollection, out) {
			return &model.DuplicateOutputError{Index: def.Name, OutputCollection: out, ExistingIndex: o.Name}
		}
		if o.HasOutputCollection() {
			others = append(others, &node{def: o, consumed: o.ConsumedCollections(), allDocs: o.MapsAllDocs()})
		}
	}
	sort.Slice(others, func(i, j int) bool { return others[i].def.Name < others[j].def.Name })

	if chain := findCycle(def, others); chain != nil {
		return &model.CycleError{Index: def.Name, Chain: chain}
	}
	return nil
}

type node struct {
	def      *model.IndexDefinition
	consumed model.CollectionSet
	allDocs  bool
}

func (n *node) consumes(collection string) bool {
	return n.allDocs || n.consumed.Contains(collection)
}

type step struct {
	link   model.CycleLink
	parent int
}

// findCycle walks the collections reachable from the output collection
// of def over the output collections of the other indexes. If one of
// them is consumed by def the chain of links is returned.
func findCycle(def *model.IndexDefinition, others []*node) []model.CycleLink {
	consumed := def.ConsumedCollections()

	steps := []step{{link: model.CycleLink{Index: def.Name, To: def.OutputCollection}, parent: -1}}
	queue := []int{0}
	visited := make(map[string]bool, len(others))
	reached := model.NewCollectionSet(def.OutputCollection)

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		coll := steps[cur].link.To

		for _, n := range others {
			if visited[n.def.Name] || !n.consumes(coll) {
				continue
			}
			visited[n.def.Name] = true
			o := n.def

			steps = append(steps, step{
				link:   model.CycleLink{Index: o.Name, From: coll, To: o.OutputCollection},
				parent: cur,
			})
			next := len(steps) - 1

			if consumed.Contains(o.OutputCollection) {
				return chainOf(steps, next)
			}
			if !reached.Contains(o.OutputCollection) {
				reached.Add(o.OutputCollection)
				queue = append(queue, next)
			}
		}
	}
	return nil
}

// chainOf returns the links from def to the step at i. The first link
// starts at the collection the last link writes into.
func chainOf(steps []step, i int) []model.CycleLink {
	var chain []model.CycleLink
	last := steps[i].link.To
	for ; i >= 0; i = steps[i].parent {
		chain = append(chain, steps[i].link)
	}
	for l, r := 0, len(chain)-1; l < r; l, r = l+1, r-1 {
		chain[l], chain[r] = chain[r], chain[l]
	}
	chain[0].From = last
	return chain
}
