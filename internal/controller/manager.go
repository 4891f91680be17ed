package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goydb/mrindex/internal/adapter/reducer"
	"github.com/goydb/mrindex/internal/adapter/storage"
	"github.com/goydb/mrindex/internal/reduce/output"
	"github.com/goydb/mrindex/internal/staleness"
	"github.com/goydb/mrindex/internal/validate"
	"github.com/goydb/mrindex/pkg/logger"
	"github.com/goydb/mrindex/pkg/model"
	"github.com/puzpuzpuz/xsync/v3"
)

// Manager owns the index definitions and indexing loops of one database.
type Manager struct {
	db        *storage.Database
	deps      *indexDeps
	staleness *staleness.Calculator
	scripts   *ScriptCache
	schemas   *output.SchemaCache

	// definitions serializes definition changes of the database, it
	// is a channel so waiting for it respects cancellation
	definitions chan struct{}

	loops  *xsync.MapOf[string, *loop]
	errors *xsync.MapOf[string, *ErrorList]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
}

func newManager(db *storage.Database, deps indexDeps, scripts *ScriptCache, schemas *output.SchemaCache) *Manager {
	deps.db = db.Name()
	deps.docs = db
	deps.scripts = scripts
	deps.schemas = schemas
	deps.opts = deps.opts.withDefaults()
	deps.logger = deps.logger.With("db", db.Name())

	return &Manager{
		db:          db,
		deps:        &deps,
		staleness:   staleness.New(db, deps.logger),
		scripts:     scripts,
		schemas:     schemas,
		definitions: make(chan struct{}, 1),
		loops:       xsync.NewMapOf[string, *loop](),
		errors:      xsync.NewMapOf[string, *ErrorList](),
		logger:      deps.logger,
	}
}

func (m *Manager) lock(ctx context.Context) error {
	select {
	case m.definitions <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) unlock() {
	<-m.definitions
}

// Start loads the stored definitions and starts their loops. A
// definition that can't be compiled anymore is logged and skipped.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer m.unlock()

	defs, err := m.db.Definitions(ctx)
	if err != nil {
		return err
	}
	for _, def := range defs {
		err := m.startLoop(def, nil)
		if err != nil {
			m.errorList(def.Name).Record(model.ActionStorage, "", "", err)
			m.logger.ErrorCtx(ctx, "unable to start index", "index", def.Name, "error", err)
		}
	}
	m.logger.InfoCtx(ctx, "indexes started", "count", m.loops.Size())
	return nil
}

// Stop stops all loops and waits for them.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) errorList(name string) *ErrorList {
	list, _ := m.errors.LoadOrCompute(name, func() *ErrorList {
		return NewErrorList(name, m.deps.opts.ErrorListSize)
	})
	return list
}

// startLoop compiles the index and starts its loop, must be called
// with the definitions lock held.
func (m *Manager) startLoop(def *model.IndexDefinition, after <-chan struct{}) error {
	store, err := m.db.IndexStore(m.ctx, def.Name)
	if err != nil {
		return err
	}
	ix, err := compileIndex(m.deps, def, store, m.errorList(def.Name))
	if err != nil {
		return err
	}

	l := newLoop(m, ix, after)
	ctx, cancel := context.WithCancel(m.ctx)
	l.cancel = cancel
	m.loops.Store(def.Name, l)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		l.run(ctx)
	}()
	return nil
}

func (m *Manager) stopLoop(name string) {
	if l, ok := m.loops.LoadAndDelete(name); ok {
		l.stop()
	}
}

func (m *Manager) forget(name string) {
	m.scripts.Invalidate(m.db.Name(), name)
	m.schemas.Invalidate(name)
	forgetIndexMetrics(m.db.Name(), name)
}

// prepare validates the definition and fills the group-by fields from
// the key selector of the reduce function if they are not configured.
func (m *Manager) prepare(def *model.IndexDefinition) (*model.IndexDefinition, error) {
	if def.IsReplacement() {
		return nil, &model.InvalidDefinitionError{
			Index:  def.Name,
			Reason: "names starting with " + model.ReplacementPrefix + " are reserved",
		}
	}
	err := def.Validate()
	if err != nil {
		return nil, err
	}

	def = def.Copy(def.Name)
	def.Language = def.LanguageOrDefault()
	if len(def.GroupBy) > 0 || !def.HasReduce() || reducer.IsBuiltin(def.Reduce) {
		return def, nil
	}

	engine, err := scriptEngine(m.deps.engines, def)
	if err != nil {
		return nil, err
	}
	fields, err := engine.GroupByFields(def.Reduce)
	var kse *model.KeySelectorError
	if errors.As(err, &kse) {
		kse.Index = def.Name
		return nil, kse
	}
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, &model.InvalidDefinitionError{
			Index:  def.Name,
			Reason: "no group by fields configured and the reduce function has no key selector",
		}
	}
	def.GroupBy = fields
	return def, nil
}

// PutDefinition creates the index or, if an index with the name and a
// different definition exists, a side-by-side replacement that takes
// over once it caught up. The stored definition is returned.
func (m *Manager) PutDefinition(ctx context.Context, def *model.IndexDefinition) (*model.IndexDefinition, error) {
	def, err := m.prepare(def)
	if err != nil {
		return nil, err
	}

	err = m.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer m.unlock()

	existing, err := m.db.Definitions(ctx)
	if err != nil {
		return nil, err
	}

	var active, pending *model.IndexDefinition
	for _, e := range existing {
		switch e.Name {
		case def.Name:
			active = e
		case model.ReplacementPrefix + def.Name:
			pending = e
		}
	}

	fp := def.Fingerprint()
	switch {
	case pending != nil && pending.Fingerprint() == fp:
		return pending, nil
	case active != nil && active.Fingerprint() == fp && pending == nil:
		return active, nil
	}

	target := def
	if active != nil {
		target = def.Copy(model.ReplacementPrefix + def.Name)
	}

	err = validate.OutputCollection(target, existing)
	if err != nil {
		return nil, err
	}
	_, err = compileIndex(m.deps, target, nil, nil)
	if err != nil {
		return nil, err
	}

	if pending != nil {
		m.stopLoop(pending.Name)
		err = m.db.DeleteDefinition(ctx, pending.Name)
		if err != nil {
			return nil, err
		}
		m.forget(pending.Name)
		m.errors.Delete(pending.Name)
	}

	if active != nil && active.Fingerprint() == fp {
		// the pending replacement was reverted
		return active, nil
	}

	_, err = m.db.PutDefinition(ctx, target)
	if err != nil {
		return nil, err
	}
	err = m.startLoop(target, nil)
	if err != nil {
		return nil, err
	}

	m.logger.InfoCtx(ctx, "index definition stored", "index", target.Name, "replacement", target.IsReplacement())
	return target, nil
}

// DeleteDefinition removes the index and its pending replacement.
func (m *Manager) DeleteDefinition(ctx context.Context, name string) error {
	err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer m.unlock()

	found := false
	for _, n := range []string{model.ReplacementPrefix + name, name} {
		m.stopLoop(n)
		err := m.db.DeleteDefinition(ctx, n)
		if errors.Is(err, model.ErrIndexNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		found = true
		m.forget(n)
		m.errors.Delete(n)
	}
	if !found {
		return fmt.Errorf("index %q: %w", name, model.ErrIndexNotFound)
	}
	m.logger.InfoCtx(ctx, "index deleted", "index", name)
	return nil
}

// trySwap replaces the active index with the side-by-side index of the
// loop if the replacement caught up. It is called by the loop of the
// replacement, which ends if true is returned.
func (m *Manager) trySwap(ctx context.Context, l *loop) bool {
	def := l.ix.def
	if !m.staleness.CanReplace(ctx, def) {
		return false
	}

	if m.lock(ctx) != nil {
		return false
	}
	defer m.unlock()

	// documents are written concurrently, the earlier check may be outdated
	if !m.staleness.CanReplace(ctx, def) {
		return false
	}

	name := def.LogicalName()
	m.stopLoop(name)

	active, err := m.db.ReplaceDefinition(ctx, def.Name)
	if err != nil {
		m.logger.ErrorCtx(ctx, "unable to replace index", "index", name, "error", err)
		if def, err := m.Definition(ctx, name); err == nil {
			_ = m.startLoop(def, nil)
		}
		return false
	}

	m.loops.Delete(def.Name)
	m.forget(name)
	m.forget(def.Name)
	if list, ok := m.errors.LoadAndDelete(def.Name); ok {
		m.errors.Store(name, list)
	}
	IndexReplacements.WithLabelValues(m.db.Name(), name).Inc()

	err = m.startLoop(active, l.done)
	if err != nil {
		m.errorList(name).Record(model.ActionStorage, "", "", err)
		m.logger.ErrorCtx(ctx, "unable to start replaced index", "index", name, "error", err)
	}
	m.logger.InfoCtx(ctx, "side-by-side index replaced the active index", "index", name)
	return true
}

// ValidateOutputCollection checks the definition against the indexes of
// the database without storing it.
func (m *Manager) ValidateOutputCollection(ctx context.Context, def *model.IndexDefinition) error {
	err := def.Validate()
	if err != nil {
		return err
	}

	err = m.lock(ctx)
	if err != nil {
		return err
	}
	defer m.unlock()

	existing, err := m.db.Definitions(ctx)
	if err != nil {
		return err
	}
	return validate.OutputCollection(def, existing)
}

func (m *Manager) Definitions(ctx context.Context) ([]*model.IndexDefinition, error) {
	return m.db.Definitions(ctx)
}

func (m *Manager) Definition(ctx context.Context, name string) (*model.IndexDefinition, error) {
	defs, err := m.db.Definitions(ctx)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if def.Name == name {
			return def, nil
		}
	}
	return nil, fmt.Errorf("index %q: %w", name, model.ErrIndexNotFound)
}

// State returns staleness and etag of the index. If the state can't be
// determined the index is reported stale together with the error.
func (m *Manager) State(ctx context.Context, name string) (*staleness.State, error) {
	def, err := m.Definition(ctx, name)
	if err != nil {
		return nil, err
	}
	return m.staleness.State(ctx, def)
}

func (m *Manager) IsStale(ctx context.Context, name string) (bool, []string, error) {
	def, err := m.Definition(ctx, name)
	if err != nil {
		return true, nil, err
	}
	return m.staleness.IsStale(ctx, def)
}

// Etag returns the printable etag of the index results.
func (m *Manager) Etag(ctx context.Context, name string) (string, error) {
	def, err := m.Definition(ctx, name)
	if err != nil {
		return "", err
	}
	etag, err := m.staleness.Etag(ctx, def)
	if err != nil {
		return "", err
	}
	return staleness.EtagString(etag), nil
}

// ReferencedCollections returns the referenced collections of the index
// in a stable order.
func (m *Manager) ReferencedCollections(ctx context.Context, name string) ([]string, error) {
	def, err := m.Definition(ctx, name)
	if err != nil {
		return nil, err
	}
	return def.ReferencedCollections().Sorted(), nil
}

// Errors returns the recorded indexing errors, most recent first.
func (m *Manager) Errors(ctx context.Context, name string) ([]*model.IndexingError, error) {
	if _, err := m.Definition(ctx, name); err != nil {
		return nil, err
	}
	return m.errorList(name).Errors(), nil
}

func (m *Manager) ClearErrors(ctx context.Context, name string) error {
	if _, err := m.Definition(ctx, name); err != nil {
		return err
	}
	m.errorList(name).Clear()
	return nil
}

// IndexStats returns the storage statistics of the index.
func (m *Manager) IndexStats(ctx context.Context, name string) (*model.IndexStats, error) {
	store, err := m.db.IndexStore(ctx, name)
	if err != nil {
		return nil, err
	}
	return store.Stats(ctx)
}

// Results calls fn with every reduce result of the index in key order.
func (m *Manager) Results(ctx context.Context, name string, fn func(key []byte, doc map[string]interface{}) error) error {
	store, err := m.db.IndexStore(ctx, name)
	if err != nil {
		return err
	}
	return store.ReduceResults(ctx, func(key, raw []byte) error {
		doc, err := model.DecodeBinary(raw)
		if err != nil {
			return err
		}
		return fn(key, doc)
	})
}

// Trigger wakes the loop of the index.
func (m *Manager) Trigger(name string) {
	if l, ok := m.loops.Load(name); ok {
		l.trigger()
	}
}

// WaitForNonStale blocks until the index processed all documents or
// ctx is done.
func (m *Manager) WaitForNonStale(ctx context.Context, name string) error {
	t := time.NewTicker(25 * time.Millisecond)
	defer t.Stop()

	for {
		stale, _, err := m.IsStale(ctx, name)
		if errors.Is(err, model.ErrIndexNotFound) {
			return err
		}
		if err == nil && !stale {
			return nil
		}
		m.Trigger(name)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
