package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/goydb/mrindex/pkg/model"
)

type IndexGet struct {
	Base
}

func (s *IndexGet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	m := Database{Base: s.Base}.Manager(w, r)
	if m == nil {
		return
	}

	def, err := m.Definition(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, def)
}

// IndexList returns all definitions of the database including pending
// side-by-side replacements.
type IndexList struct {
	Base
}

func (s *IndexList) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	m := Database{Base: s.Base}.Manager(w, r)
	if m == nil {
		return
	}

	defs, err := m.Definitions(r.Context())
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}
	if defs == nil {
		defs = []*model.IndexDefinition{}
	}

	WriteJSON(w, http.StatusOK, defs)
}
