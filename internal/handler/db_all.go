package handler

import (
	"net/http"
)

type DBAll struct {
	Base
}

func (s *DBAll) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	names, err := s.Engine.Databases(r.Context())
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, names)
}
