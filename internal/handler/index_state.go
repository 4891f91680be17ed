package handler

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/goydb/mrindex/pkg/model"
)

// IndexStale reports if the index processed all documents. If the state
// can't be determined the index is reported stale with the reason.
type IndexStale struct {
	Base
}

func (s *IndexStale) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	m := Database{Base: s.Base}.Manager(w, r)
	if m == nil {
		return
	}

	stale, reasons, err := m.IsStale(r.Context(), mux.Vars(r)["name"])
	if errors.Is(err, model.ErrIndexNotFound) {
		s.WriteErrorOf(w, r, err)
		return
	}
	if err != nil {
		reasons = append(reasons, err.Error())
	}

	WriteJSON(w, http.StatusOK, StaleResponse{Stale: stale, Reasons: reasons})
}

type StaleResponse struct {
	Stale   bool     `json:"stale"`
	Reasons []string `json:"reasons,omitempty"`
}

// IndexEtag returns the etag of the index results. It changes whenever
// the results may have changed.
type IndexEtag struct {
	Base
}

func (s *IndexEtag) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	m := Database{Base: s.Base}.Manager(w, r)
	if m == nil {
		return
	}

	etag, err := m.Etag(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}

	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	WriteJSON(w, http.StatusOK, EtagResponse{Etag: etag})
}

type EtagResponse struct {
	Etag string `json:"etag"`
}

// IndexReferenced lists the collections the index loads documents from.
type IndexReferenced struct {
	Base
}

func (s *IndexReferenced) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	m := Database{Base: s.Base}.Manager(w, r)
	if m == nil {
		return
	}

	colls, err := m.ReferencedCollections(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}
	if colls == nil {
		colls = []string{}
	}

	WriteJSON(w, http.StatusOK, colls)
}
