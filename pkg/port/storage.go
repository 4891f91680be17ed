package port

import (
	"context"

	"github.com/goydb/mrindex/pkg/model"
)

// DocumentStorage is the document side of the storage collaborator.
type DocumentStorage interface {
	// ReadDocuments returns the live documents of the collection with
	// an etag greater than fromEtag in etag order.
	ReadDocuments(ctx context.Context, collection string, fromEtag uint64, limit int) ([]*model.Document, error)
	// ReadTombstones returns the deletions of the collection with
	// an etag greater than fromEtag in etag order.
	ReadTombstones(ctx context.Context, collection string, fromEtag uint64, limit int) ([]*model.Tombstone, error)
	CollectionStats(ctx context.Context, collection string) (*model.CollectionStats, error)
	GetDocument(ctx context.Context, collection, id string) (*model.Document, error)
	PutDocument(ctx context.Context, doc *model.Document) (uint64, error)
	DeleteDocument(ctx context.Context, collection, id string) (uint64, error)
	// Snapshot keeps one consistent read view open while fn runs.
	Snapshot(ctx context.Context, fn func(snap DocumentSnapshot) error) error
	// AddListener registers a listener until the context is done.
	AddListener(ctx context.Context, cl ChangeListener) error
}

// DocumentSnapshot is a consistent read view of the document storage.
type DocumentSnapshot interface {
	LastDocumentEtag(collection string) uint64
	LastTombstoneEtag(collection string) uint64
}

// IndexSnapshot is a consistent read view of the index storage of
// one index.
type IndexSnapshot interface {
	Progress() (*model.IndexProgress, error)
	// PendingKeys is the number of reduce keys waiting to be reduced
	PendingKeys() int
}

// SnapshotSource opens a document and an index snapshot and holds
// both while fn runs, so the numbers read from both are consistent.
type SnapshotSource interface {
	Snapshots(ctx context.Context, index string, fn func(docs DocumentSnapshot, idx IndexSnapshot) error) error
}

type ChangeListener interface {
	DocumentChanged(ctx context.Context, doc *model.Document) error
}

// DocumentMapping is the result of mapping one source document.
type DocumentMapping struct {
	Collection string
	ID         string
	Outputs    []*model.MapOutput
	// References loaded while mapping, by referenced collection
	References map[string][]string
}

// ReduceStore is the index side of the storage collaborator for one
// map-reduce index.
type ReduceStore interface {
	Ensure(ctx context.Context) error
	Remove(ctx context.Context) error
	Stats(ctx context.Context) (*model.IndexStats, error)
	Progress(ctx context.Context) (*model.IndexProgress, error)
	// UpdateMapEntries replaces the map entries of the mapped documents and
	// removes the entries of the deleted documents. It returns the reduce
	// keys whose entries changed, they stay dirty until marked clean.
	UpdateMapEntries(ctx context.Context, mapped []*DocumentMapping, deleted []*model.Tombstone) ([][]byte, error)
	DirtyKeys(ctx context.Context) ([][]byte, error)
	// MapEntries returns all stored map outputs of the reduce keys.
	MapEntries(ctx context.Context, keys [][]byte) ([]*model.MapOutput, error)
	// ReferencingDocuments returns the ids of the documents of collection
	// that loaded one of the referenced documents.
	ReferencingDocuments(ctx context.Context, ref model.CollectionReference, ids []string) ([]string, error)
	// Commit persists and deletes reduce results and stores the progress
	// in one transaction.
	Commit(ctx context.Context, fn func(w ReduceWriter) error, progress *model.IndexProgress) error
	ReduceResults(ctx context.Context, fn func(key []byte, raw []byte) error) error
	// ReduceResult returns the stored result of the key or ErrNotFound.
	ReduceResult(ctx context.Context, key []byte) ([]byte, error)
}

type ReduceWriter interface {
	PersistReduceResult(key []byte, raw []byte)
	DeleteReduceResult(key []byte)
	MarkClean(key []byte)
}
