package controller

import (
	"context"
	"time"

	"github.com/goydb/mrindex/pkg/model"
)

// loop runs the batches of one index. No two batches of an index run
// at the same time.
type loop struct {
	m    *Manager
	ix   *Index
	wake chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
	// after is closed when the loop that previously worked on the same
	// storage finished, the loop then took over from a side-by-side index
	after <-chan struct{}
}

func newLoop(m *Manager, ix *Index, after <-chan struct{}) *loop {
	return &loop{
		m:     m,
		ix:    ix,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		after: after,
	}
}

// DocumentChanged wakes the loop if the index consumes the collection.
func (l *loop) DocumentChanged(ctx context.Context, doc *model.Document) error {
	def := l.ix.def
	if def.MapsAllDocs() || def.ConsumedCollections().Contains(doc.Collection) {
		l.trigger()
	}
	return nil
}

func (l *loop) trigger() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *loop) stop() {
	l.cancel()
	<-l.done
}

func (l *loop) run(ctx context.Context) {
	defer close(l.done)

	if l.after != nil {
		select {
		case <-l.after:
		case <-ctx.Done():
			return
		}

		err := l.ix.syncOutputDocuments(ctx)
		if err != nil && !isCanceled(err) {
			l.ix.record(ctx, model.ActionMaterialize, "", "", err)
		}
	}

	err := l.m.db.AddListener(ctx, l)
	if err != nil {
		l.ix.logger.ErrorCtx(ctx, "unable to listen for changes, polling only", "error", err)
	}

	t := time.NewTicker(l.ix.opts.PollInterval)
	defer t.Stop()

	for {
		l.catchUp(ctx)
		if ctx.Err() != nil {
			return
		}

		if l.ix.def.IsReplacement() && l.m.trySwap(ctx, l) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		case <-t.C:
		}
	}
}

// catchUp runs batches until a batch finds nothing to process.
func (l *loop) catchUp(ctx context.Context) {
	for ctx.Err() == nil {
		stats, err := l.ix.RunBatch(ctx)
		if isCanceled(err) {
			return
		}
		if err != nil {
			l.ix.record(ctx, model.ActionStorage, "", "", err)
			return
		}
		if stats.Empty() {
			break
		}
		l.ix.logger.DebugCtx(ctx, "batch done", "batch", stats.String())
		if stats.Canceled {
			return
		}
	}

	stale, _, err := l.m.staleness.IsStale(ctx, l.ix.def)
	if err != nil && !isCanceled(err) {
		l.ix.logger.WarnCtx(ctx, "staleness unknown", "error", err)
	}
	v := 0.0
	if stale {
		v = 1
	}
	IndexStale.WithLabelValues(l.ix.db, l.ix.def.Name).Set(v)
}
