package handler

import (
	"net/http"

	"github.com/gorilla/mux"
)

type DBDocDelete struct {
	Base
}

func (s *DBDocDelete) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	db := Database{Base: s.Base}.Do(w, r)
	if db == nil {
		return
	}

	vars := mux.Vars(r)
	etag, err := db.DeleteDocument(r.Context(), vars["collection"], vars["docid"])
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, DocResponse{
		OK:         true,
		ID:         vars["docid"],
		Collection: vars["collection"],
		Etag:       etag,
	})
}
