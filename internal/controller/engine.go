package controller

import (
	"context"
	"errors"

	"github.com/goydb/mrindex/internal/adapter/storage"
	"github.com/goydb/mrindex/internal/adapter/view/gojaview"
	"github.com/goydb/mrindex/internal/adapter/view/tengoview"
	"github.com/goydb/mrindex/internal/reduce/output"
	"github.com/goydb/mrindex/pkg/logger"
	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
	"github.com/puzpuzpuz/xsync/v3"
)

var ErrEngineNotStarted = errors.New("indexing engine not started")

type EngineConfig struct {
	Options
	ScriptCacheSize int
	SchemaCacheSize int
}

// Engine keeps one Manager per database. The compiled script and schema
// caches are shared by all databases.
type Engine struct {
	storage  *storage.Storage
	deps     indexDeps
	scripts  *ScriptCache
	schemas  *output.SchemaCache
	managers *xsync.MapOf[string, *Manager]

	ctx    context.Context
	logger logger.Logger
}

// DefaultScriptEngines returns the supported map/reduce languages.
func DefaultScriptEngines() port.ScriptEngines {
	return port.ScriptEngines{
		model.LanguageJavaScript: gojaview.NewEngine(),
		model.LanguageTengo:      tengoview.NewEngine(),
	}
}

func NewEngine(s *storage.Storage, cfg EngineConfig, l logger.Logger) *Engine {
	return &Engine{
		storage: s,
		deps: indexDeps{
			engines: DefaultScriptEngines(),
			opts:    cfg.Options.withDefaults(),
			logger:  l,
		},
		scripts:  NewScriptCache(cfg.ScriptCacheSize),
		schemas:  output.NewSchemaCache(cfg.SchemaCacheSize),
		managers: xsync.NewMapOf[string, *Manager](),
		logger:   l,
	}
}

// Start starts the indexes of all databases. They run until Stop is
// called or ctx is done.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx = ctx

	names, err := e.storage.Databases(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		_, err := e.Manager(ctx, name)
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) Stop() {
	e.managers.Range(func(name string, m *Manager) bool {
		m.Stop()
		return true
	})
	e.managers.Clear()
}

// Manager returns the started manager of the database.
func (e *Engine) Manager(ctx context.Context, name string) (*Manager, error) {
	if m, ok := e.managers.Load(name); ok {
		return m, nil
	}
	if e.ctx == nil {
		return nil, ErrEngineNotStarted
	}

	db, err := e.storage.Database(ctx, name)
	if err != nil {
		return nil, err
	}

	var startErr error
	m, ok := e.managers.Compute(name, func(old *Manager, loaded bool) (*Manager, bool) {
		if loaded {
			return old, false
		}
		m := newManager(db, e.deps, e.scripts, e.schemas)
		startErr = m.Start(e.ctx)
		if startErr != nil {
			return nil, true
		}
		return m, false
	})
	if !ok {
		return nil, startErr
	}
	return m, nil
}

func (e *Engine) CreateDatabase(ctx context.Context, name string) (*Manager, error) {
	_, err := e.storage.CreateDatabase(ctx, name)
	if err != nil {
		return nil, err
	}
	return e.Manager(ctx, name)
}

// DeleteDatabase stops the indexes of the database and removes it.
func (e *Engine) DeleteDatabase(ctx context.Context, name string) error {
	if m, ok := e.managers.LoadAndDelete(name); ok {
		m.Stop()
		defs, err := m.Definitions(ctx)
		if err == nil {
			for _, def := range defs {
				m.forget(def.Name)
			}
		}
	}
	return e.storage.DeleteDatabase(ctx, name)
}

// Database returns the document storage of the database.
func (e *Engine) Database(ctx context.Context, name string) (*storage.Database, error) {
	return e.storage.Database(ctx, name)
}

func (e *Engine) Databases(ctx context.Context) ([]string, error) {
	return e.storage.Databases(ctx)
}
