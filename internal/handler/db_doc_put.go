package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/goydb/mrindex/pkg/model"
	uuid "github.com/satori/go.uuid"
)

// DBDocPut stores the request body as document data. Without docid in
// the path (POST) a uuid is assigned.
type DBDocPut struct {
	Base
}

func (s *DBDocPut) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	db := Database{Base: s.Base}.Do(w, r)
	if db == nil {
		return
	}

	var data map[string]interface{}
	err := json.NewDecoder(r.Body).Decode(&data)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	vars := mux.Vars(r)
	docID, ok := vars["docid"]
	if !ok {
		docID = uuid.NewV4().String()
	}

	doc := &model.Document{
		ID:         docID,
		Collection: vars["collection"],
		Data:       data,
	}
	etag, err := db.PutDocument(r.Context(), doc)
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}

	WriteJSON(w, http.StatusCreated, DocResponse{
		OK:         true,
		ID:         doc.ID,
		Collection: doc.Collection,
		Etag:       etag,
	})
}

type DocResponse struct {
	OK         bool   `json:"ok"`
	ID         string `json:"id"`
	Collection string `json:"collection"`
	Etag       uint64 `json:"etag"`
	Error      string `json:"error,omitempty"`
}
