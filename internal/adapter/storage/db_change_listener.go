package storage

import (
	"context"
	"errors"

	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
)

type changeListener struct {
	ctx context.Context
	cl  port.ChangeListener
}

// AddListener registers cl for document changes until ctx is done.
// Index loops use it to wake up on writes to the collections they
// consume instead of waiting for the next poll.
func (d *Database) AddListener(ctx context.Context, cl port.ChangeListener) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := d.listenerSeq.Add(1)
	d.listeners.Store(id, &changeListener{ctx: ctx, cl: cl})
	context.AfterFunc(ctx, func() {
		d.listeners.Delete(id)
	})
	return nil
}

// NotifyDocumentUpdate calls all listeners with the stored document
// or tombstone in a separate goroutine, a listener failing with an
// error other than a context error is removed.
func (d *Database) NotifyDocumentUpdate(doc *model.Document) {
	go func() {
		d.listeners.Range(func(id uint64, l *changeListener) bool {
			if l.ctx.Err() != nil {
				return true
			}
			err := l.cl.DocumentChanged(l.ctx, doc)
			if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			d.listeners.Delete(id)
			d.logger.Warn("removing change listener", "db", d.name, "collection", doc.Collection, "error", err)
			return true
		})
	}()
}

// Listeners is the number of registered change listeners.
func (d *Database) Listeners() int {
	return d.listeners.Size()
}
