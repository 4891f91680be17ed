// Package staleness decides if an index is behind the document storage
// and computes the etag of its results.
package staleness

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash"
	"github.com/goydb/mrindex/pkg/logger"
	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
)

// State of an index computed from one consistent pair of snapshots.
type State struct {
	Stale   bool
	Reasons []string
	Etag    []byte
}

// EtagString is the printable form of the etag, usable as HTTP ETag.
func (s *State) EtagString() string {
	return EtagString(s.Etag)
}

func EtagString(etag []byte) string {
	return strconv.Quote(strconv.FormatUint(xxhash.Sum64(etag), 16))
}

type Calculator struct {
	source port.SnapshotSource
	logger logger.Logger
}

func New(source port.SnapshotSource, l logger.Logger) *Calculator {
	return &Calculator{source: source, logger: l}
}

// State opens a document and an index snapshot and computes staleness
// and etag from both. On error the returned state is stale.
func (c *Calculator) State(ctx context.Context, def *model.IndexDefinition) (*State, error) {
	var state *State
	err := c.source.Snapshots(ctx, def.Name, func(docs port.DocumentSnapshot, idx port.IndexSnapshot) error {
		progress, err := idx.Progress()
		if err != nil {
			return err
		}
		state = compute(def, docs, progress, idx.PendingKeys())
		return nil
	})
	if err != nil {
		return &State{
			Stale:   true,
			Reasons: []string{"staleness unknown: " + err.Error()},
		}, fmt.Errorf("%w of index %q: %v", model.ErrStalenessUnknown, def.Name, err)
	}
	return state, nil
}

// IsStale reports if documents, tombstones or referenced documents
// exist that the index didn't process yet. Errors are reported as stale.
func (c *Calculator) IsStale(ctx context.Context, def *model.IndexDefinition) (bool, []string, error) {
	state, err := c.State(ctx, def)
	return state.Stale, state.Reasons, err
}

func (c *Calculator) Etag(ctx context.Context, def *model.IndexDefinition) ([]byte, error) {
	state, err := c.State(ctx, def)
	if err != nil {
		return nil, err
	}
	return state.Etag, nil
}

// CanReplace reports if the side-by-side index caught up and may
// replace the active index. The result must not be cached, documents
// are written concurrently.
func (c *Calculator) CanReplace(ctx context.Context, replacement *model.IndexDefinition) bool {
	if !replacement.IsReplacement() {
		return false
	}
	stale, reasons, err := c.IsStale(ctx, replacement)
	if err != nil {
		c.logger.WarnCtx(ctx, "replacement not eligible", "index", replacement.Name, "error", err)
		return false
	}
	if stale {
		c.logger.DebugCtx(ctx, "replacement still stale", "index", replacement.Name, "reasons", reasons)
	}
	return !stale
}

func compute(def *model.IndexDefinition, docs port.DocumentSnapshot, progress *model.IndexProgress, pending int) *State {
	state := new(State)

	etag := make([]byte, 0, 9+16*(len(def.Maps)+len(def.References)))
	etag = binary.BigEndian.AppendUint64(etag, def.Fingerprint())

	for _, coll := range def.Collections().Sorted() {
		p := progress.Collection(coll)
		if last := docs.LastDocumentEtag(coll); last > p.Documents {
			state.add("collection %s has documents after etag %d (last %d)", coll, p.Documents, last)
		}
		if last := docs.LastTombstoneEtag(coll); last > p.Tombstones {
			state.add("collection %s has tombstones after etag %d (last %d)", coll, p.Tombstones, last)
		}
		etag = binary.BigEndian.AppendUint64(etag, p.Documents)
		etag = binary.BigEndian.AppendUint64(etag, p.Tombstones)
	}

	for _, ref := range def.ReferencePairs() {
		p := progress.Reference(ref)
		if last := docs.LastDocumentEtag(ref.Referenced); last > p.Documents {
			state.add("referenced collection %s has documents after etag %d (last %d)", ref, p.Documents, last)
		}
		if last := docs.LastTombstoneEtag(ref.Referenced); last > p.Tombstones {
			state.add("referenced collection %s has tombstones after etag %d (last %d)", ref, p.Tombstones, last)
		}
		etag = binary.BigEndian.AppendUint64(etag, p.Documents)
		etag = binary.BigEndian.AppendUint64(etag, p.Tombstones)
	}

	// an interrupted batch advanced the progress but left keys to reduce
	if pending > 0 {
		state.add("%d reduce keys pending", pending)
	}

	if state.Stale {
		etag = append(etag, 1)
	} else {
		etag = append(etag, 0)
	}
	state.Etag = etag
	return state
}

func (s *State) add(format string, args ...interface{}) {
	s.Stale = true
	s.Reasons = append(s.Reasons, fmt.Sprintf(format, args...))
}
