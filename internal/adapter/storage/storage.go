package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/goydb/mrindex/pkg/logger"
	"github.com/goydb/mrindex/pkg/port"
)

var ErrDatabaseExists = errors.New("database already exists")

// indexFileSuffix is the suffix of the index file next to the document
// file of a database.
const indexFileSuffix = ".indexes"

type Storage struct {
	path   string
	dbs    map[string]*Database
	mu     sync.RWMutex
	logger logger.Logger
}

func Open(path string, l logger.Logger) (*Storage, error) {
	s := &Storage{
		path:   path,
		dbs:    make(map[string]*Database),
		logger: l,
	}
	err := s.ReloadDatabases(context.Background())
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) String() string {
	return "<Storage path=" + s.path + ">"
}

func (s *Storage) ReloadDatabases(ctx context.Context) error {
	files, err := os.ReadDir(s.path)
	if err != nil {
		return err
	}

	for _, f := range files {
		if f.IsDir() || strings.HasSuffix(f.Name(), indexFileSuffix) {
			continue
		}

		s.mu.RLock()
		_, loaded := s.dbs[f.Name()]
		s.mu.RUnlock()
		if loaded {
			continue
		}

		database, err := s.CreateDatabase(ctx, path.Base(f.Name()))
		if err != nil {
			s.logger.ErrorCtx(ctx, "loading database failed", "database", f.Name(), "error", err)
			return err
		}
		s.logger.InfoCtx(ctx, "loaded database", "database", database.Name())
	}

	return nil
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, db := range s.dbs {
		err := db.Close()
		if err != nil {
			return fmt.Errorf("failed to close db %q: %w", name, err)
		}
		delete(s.dbs, name)
	}

	return nil
}

func validDatabaseName(name string) bool {
	return name != "" &&
		!strings.ContainsAny(name, "/\\\x00") &&
		!strings.HasPrefix(name, ".") &&
		!strings.HasSuffix(name, indexFileSuffix)
}

// CreateDatabase opens the database files, they are created if needed.
func (s *Storage) CreateDatabase(ctx context.Context, name string) (*Database, error) {
	if !validDatabaseName(name) {
		return nil, fmt.Errorf("invalid database name %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dbs[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDatabaseExists, name)
	}

	database, err := openDatabase(ctx, s.path, name, s.logger.With("database", name))
	if err != nil {
		return nil, err
	}
	s.dbs[name] = database

	return database, nil
}

func (s *Storage) DeleteDatabase(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, ok := s.dbs[name]
	if !ok {
		return fmt.Errorf("database %q: %w", name, port.ErrNotFound)
	}

	err := db.Close()
	if err != nil {
		return err
	}

	for _, file := range []string{name, name + indexFileSuffix} {
		err = os.Remove(path.Join(s.path, file))
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	delete(s.dbs, name)

	return nil
}

func (s *Storage) Databases(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.dbs))
	for name := range s.dbs {
		names = append(names, name)
	}
	sort.Strings(names)

	return names, nil
}

func (s *Storage) Database(ctx context.Context, name string) (*Database, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, ok := s.dbs[name]
	if !ok {
		return nil, fmt.Errorf("database %q: %w", name, port.ErrNotFound)
	}

	return db, nil
}
