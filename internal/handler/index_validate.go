package handler

import (
	"net/http"
)

// IndexValidate checks the output collection of a definition against
// the indexes of the database without storing it.
type IndexValidate struct {
	Base
}

func (s *IndexValidate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	err = m.ValidateOutputCollection(r.Context(), def)
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, OKResponse{OK: true})
}
