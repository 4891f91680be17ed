package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/goydb/mrindex/pkg/model"
)

// IndexErrors returns the recorded indexing errors, DELETE clears them.
type IndexErrors struct {
	Base
	Clear bool
}

func (s *IndexErrors) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	m := Database{Base: s.Base}.Manager(w, r)
	if m == nil {
		return
	}

	name := mux.Vars(r)["name"]
	if s.Clear {
		err := m.ClearErrors(r.Context(), name)
		if err != nil {
			s.WriteErrorOf(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, OKResponse{OK: true})
		return
	}

	errs, err := m.Errors(r.Context(), name)
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, ErrorsResponse{Index: name, Errors: errs})
}

type ErrorsResponse struct {
	Index  string                 `json:"index"`
	Errors []*model.IndexingError `json:"errors"`
}
