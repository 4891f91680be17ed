package handler

import (
	"net/http"

	"github.com/gorilla/mux"
)

type DBCreate struct {
	Base
}

func (s *DBCreate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	dbName := mux.Vars(r)["db"]
	_, err := s.Engine.CreateDatabase(r.Context(), dbName)
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}

	WriteJSON(w, http.StatusCreated, OKResponse{OK: true})
}

type OKResponse struct {
	OK bool `json:"ok"`
}
