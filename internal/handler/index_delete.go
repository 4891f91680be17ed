package handler

import (
	"net/http"

	"github.com/gorilla/mux"
)

type IndexDelete struct {
	Base
}

func (s *IndexDelete) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	m := Database{Base: s.Base}.Manager(w, r)
	if m == nil {
		return
	}

	err := m.DeleteDefinition(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, OKResponse{OK: true})
}
