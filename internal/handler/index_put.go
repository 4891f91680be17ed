package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/goydb/mrindex/pkg/model"
)

// decodeDefinition reads the definition from the request body, the name
// in the path wins over a name in the body.
func decodeDefinition(r *http.Request) (*model.IndexDefinition, error) {
	var raw map[string]interface{}
	err := json.NewDecoder(r.Body).Decode(&raw)
	if err != nil {
		return nil, &model.InvalidDefinitionError{Reason: err.Error()}
	}
	def, err := model.DecodeIndexDefinition(raw)
	if err != nil {
		return nil, err
	}
	if name, ok := mux.Vars(r)["name"]; ok {
		def.Name = name
	}
	return def, nil
}

// IndexPut creates an index. If the index exists with a different
// definition a side-by-side replacement is created.
type IndexPut struct {
	Base
}

func (s *IndexPut) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	m := Database{Base: s.Base}.Manager(w, r)
	if m == nil {
		return
	}

	def, err := decodeDefinition(r)
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}

	stored, err := m.PutDefinition(r.Context(), def)
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}

	WriteJSON(w, http.StatusCreated, IndexResponse{
		OK:          true,
		Name:        stored.LogicalName(),
		Replacement: stored.IsReplacement(),
		Definition:  stored,
	})
}

type IndexResponse struct {
	OK          bool                   `json:"ok"`
	Name        string                 `json:"name"`
	Replacement bool                   `json:"replacement"`
	Definition  *model.IndexDefinition `json:"definition"`
}
