package handler

import (
	"net/http"

	"github.com/gorilla/mux"
)

type DBDelete struct {
	Base
}

func (s *DBDelete) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	dbName := mux.Vars(r)["db"]
	err := s.Engine.DeleteDatabase(r.Context(), dbName)
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, OKResponse{OK: true})
}
