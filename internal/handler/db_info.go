package handler

import (
	"net/http"

	"github.com/goydb/mrindex/pkg/model"
)

type DBInfo struct {
	Base
}

func (s *DBInfo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	db := Database{Base: s.Base}.Do(w, r)
	if db == nil {
		return
	}

	stats, err := db.Stats(r.Context())
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}
	collections, err := db.Collections(r.Context())
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, DBResponse{
		DbName:        db.Name(),
		Collections:   collections,
		DatabaseStats: stats,
	})
}

type DBResponse struct {
	DbName      string   `json:"db_name"`
	Collections []string `json:"collection_names"`
	*model.DatabaseStats
}
