package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/goydb/mrindex/internal/adapter/storage"
	"github.com/goydb/mrindex/internal/controller"
)

type Database struct {
	Base
}

func (c Database) Do(w http.ResponseWriter, r *http.Request) *storage.Database {
	dbName := mux.Vars(r)["db"]
	db, err := c.Engine.Database(r.Context(), dbName)
	if err != nil {
		c.WriteErrorOf(w, r, err)
		return nil
	}
	return db
}

// Manager returns the index manager of the database in the path.
func (c Database) Manager(w http.ResponseWriter, r *http.Request) *controller.Manager {
	dbName := mux.Vars(r)["db"]
	m, err := c.Engine.Manager(r.Context(), dbName)
	if err != nil {
		c.WriteErrorOf(w, r, err)
		return nil
	}
	return m
}
