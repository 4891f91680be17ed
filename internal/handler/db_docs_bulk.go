package handler

import (
	"encoding/json"
	"net/http"

	"github.com/goydb/mrindex/pkg/model"
)

// DBDocsBulk writes and deletes many documents. Every document is its
// own write, failures are reported per document.
type DBDocsBulk struct {
	Base
}

func (s *DBDocsBulk) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	db := Database{Base: s.Base}.Do(w, r)
	if db == nil {
		return
	}

	var req BulkDocRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := make([]DocResponse, len(req.Docs))
	for i, doc := range req.Docs {
		var etag uint64
		if doc.Deleted {
			etag, err = db.DeleteDocument(r.Context(), doc.Collection, doc.ID)
		} else {
			etag, err = db.PutDocument(r.Context(), doc)
		}

		resp[i] = DocResponse{ID: doc.ID, Collection: doc.Collection}
		if err != nil {
			resp[i].Error = err.Error()
			continue
		}
		resp[i].OK = true
		resp[i].Etag = etag
	}

	WriteJSON(w, http.StatusCreated, resp)
}

type BulkDocRequest struct {
	Docs []*model.Document `json:"docs"`
}
