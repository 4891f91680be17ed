package controller

import (
	"errors"
	"sort"
	"sync"

	"github.com/goydb/mrindex/pkg/model"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultErrorListSize is the number of distinct errors kept per index.
const DefaultErrorListSize = 100

// prominentErrorCount is the count after which a repeated failure is
// logged as error on every occurrence.
const prominentErrorCount = 3

// ErrorList keeps the most recent distinct indexing errors of an index.
// Identical errors are counted.
type ErrorList struct {
	index string
	mu    sync.Mutex
	list  *lru.Cache[string, *model.IndexingError]
	total int
}

func NewErrorList(index string, size int) *ErrorList {
	if size <= 0 {
		size = DefaultErrorListSize
	}
	list, err := lru.New[string, *model.IndexingError](size)
	if err != nil {
		panic(err) // only fails for size <= 0
	}
	return &ErrorList{index: index, list: list}
}

// Record adds the error and returns the recorded entry.
func (l *ErrorList) Record(action model.IndexingAction, key, document string, err error) *model.IndexingError {
	e := model.NewIndexingError(l.index, action, err)
	e.Key = key
	e.Document = document

	var mge *model.MissingGroupByFieldError
	if errors.As(err, &mge) && e.Document == "" {
		e.Document = mge.Output
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.total++

	sig := e.Signature()
	if existing, ok := l.list.Get(sig); ok {
		existing.Count++
		existing.LastSeen = e.LastSeen
		c := *existing
		return &c
	}
	l.list.Add(sig, e)
	c := *e
	return &c
}

// Errors returns copies of the recorded errors, most recent first.
func (l *ErrorList) Errors() []*model.IndexingError {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]*model.IndexingError, 0, l.list.Len())
	for _, e := range l.list.Values() {
		c := *e
		result = append(result, &c)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].LastSeen.After(result[j].LastSeen)
	})
	return result
}

// Total is the number of recorded errors including repetitions.
func (l *ErrorList) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

func (l *ErrorList) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.list.Purge()
	l.total = 0
}

func isProminent(e *model.IndexingError) bool {
	return e.Count >= prominentErrorCount
}
