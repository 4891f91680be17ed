package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/goydb/mrindex/pkg/model"
)

// IndexInfo returns definition, state and storage statistics.
type IndexInfo struct {
	Base
}

func (s *IndexInfo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	m := Database{Base: s.Base}.Manager(w, r)
	if m == nil {
		return
	}

	name := mux.Vars(r)["name"]
	def, err := m.Definition(r.Context(), name)
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}
	stats, err := m.IndexStats(r.Context(), name)
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}

	response := &InfoResponse{
		Name:       def.LogicalName(),
		Language:   def.LanguageOrDefault(),
		Definition: def,
		Stats:      stats,
		Stale:      true,
	}
	state, err := m.State(r.Context(), name)
	if err == nil {
		response.Stale = state.Stale
		response.Etag = state.EtagString()
	}
	if _, err := m.Definition(r.Context(), model.ReplacementPrefix+name); err == nil {
		response.ReplacementPending = true
	}

	WriteJSON(w, http.StatusOK, response)
}

type InfoResponse struct {
	Name               string                 `json:"name"`
	Language           string                 `json:"language"`
	Stale              bool                   `json:"stale"`
	Etag               string                 `json:"etag,omitempty"`
	ReplacementPending bool                   `json:"replacement_pending"`
	Definition         *model.IndexDefinition `json:"definition"`
	Stats              *model.IndexStats      `json:"stats"`
}
