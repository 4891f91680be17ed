package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/goydb/mrindex/pkg/model"
)

const defaultLimit = 1000

// DBDocsAll lists the documents of a collection in etag order,
// starting after the since etag.
type DBDocsAll struct {
	Base
}

func (s *DBDocsAll) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	db := Database{Base: s.Base}.Do(w, r)
	if db == nil {
		return
	}

	query := r.URL.Query()
	collection := mux.Vars(r)["collection"]
	docs, err := db.ReadDocuments(r.Context(), collection,
		uintOption("since", 0, query), int(intOption("limit", defaultLimit, query)))
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}

	stats, err := db.CollectionStats(r.Context(), collection)
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}

	if docs == nil {
		docs = []*model.Document{}
	}
	WriteJSON(w, http.StatusOK, AllDocsResponse{
		TotalRows: stats.Count,
		LastEtag:  stats.LastEtag,
		Rows:      docs,
	})
}

type AllDocsResponse struct {
	TotalRows uint64            `json:"total_rows"`
	LastEtag  uint64            `json:"last_etag"`
	Rows      []*model.Document `json:"rows"`
}
