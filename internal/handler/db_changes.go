package handler

import (
	"net/http"
	"sort"

	"github.com/gorilla/mux"
)

// DBChanges lists writes and deletions of a collection after the since
// etag, ordered by etag.
type DBChanges struct {
	Base
}

func (s *DBChanges) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	db := Database{Base: s.Base}.Do(w, r)
	if db == nil {
		return
	}

	query := r.URL.Query()
	collection := mux.Vars(r)["collection"]
	since := uintOption("since", 0, query)
	limit := int(intOption("limit", defaultLimit, query))
	includeDocs := boolOption("include_docs", false, query)

	docs, err := db.ReadDocuments(r.Context(), collection, since, limit)
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}
	tombstones, err := db.ReadTombstones(r.Context(), collection, since, limit)
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}

	changes := make([]*ChangeDoc, 0, len(docs)+len(tombstones))
	for _, doc := range docs {
		cd := &ChangeDoc{Etag: doc.Etag, ID: doc.ID, Collection: doc.Collection}
		if includeDocs {
			cd.Doc = doc.Data
		}
		changes = append(changes, cd)
	}
	for _, t := range tombstones {
		changes = append(changes, &ChangeDoc{Etag: t.Etag, ID: t.ID, Collection: t.Collection, Deleted: true})
	}
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Etag < changes[j].Etag
	})
	if len(changes) > limit {
		changes = changes[:limit]
	}

	lastEtag := since
	if len(changes) > 0 {
		lastEtag = changes[len(changes)-1].Etag
	}

	WriteJSON(w, http.StatusOK, ChangesResponse{
		Results:  changes,
		LastEtag: lastEtag,
	})
}

type ChangesResponse struct {
	Results  []*ChangeDoc `json:"results"`
	LastEtag uint64       `json:"last_etag"`
}

type ChangeDoc struct {
	Etag       uint64                 `json:"etag"`
	ID         string                 `json:"id"`
	Collection string                 `json:"collection"`
	Deleted    bool                   `json:"deleted,omitempty"`
	Doc        map[string]interface{} `json:"doc,omitempty"`
}
