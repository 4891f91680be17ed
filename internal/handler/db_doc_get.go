package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

type DBDocGet struct {
	Base
}

func (s *DBDocGet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	db := Database{Base: s.Base}.Do(w, r)
	if db == nil {
		return
	}

	vars := mux.Vars(r)
	doc, err := db.GetDocument(r.Context(), vars["collection"], vars["docid"])
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}

	w.Header().Set("ETag", strconv.Quote(strconv.FormatUint(doc.Etag, 10)))
	WriteJSON(w, http.StatusOK, doc)
}
