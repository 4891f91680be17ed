package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const defaultWaitTimeout = 30 * time.Second

// IndexResults returns the reduce results in key order. With wait=true
// the request waits up to timeout (ms) for the index to catch up,
// the response tells if the results are stale.
type IndexResults struct {
	Base
}

func (s *IndexResults) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	m := Database{Base: s.Base}.Manager(w, r)
	if m == nil {
		return
	}

	name := mux.Vars(r)["name"]
	query := r.URL.Query()
	limit := int(intOption("limit", -1, query))

	if boolOption("wait", false, query) {
		ctx, cancel := context.WithTimeout(r.Context(), durationOption("timeout", time.Millisecond, defaultWaitTimeout, query))
		err := m.WaitForNonStale(ctx, name)
		cancel()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			s.WriteErrorOf(w, r, err)
			return
		}
	}

	state, err := m.State(r.Context(), name)
	if err != nil && state == nil {
		s.WriteErrorOf(w, r, err)
		return
	}
	etag := state.EtagString()
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	response := ResultsResponse{
		Index:   name,
		Stale:   state.Stale,
		Etag:    etag,
		Results: make([]map[string]interface{}, 0),
	}
	err = m.Results(r.Context(), name, func(key []byte, doc map[string]interface{}) error {
		if limit >= 0 && len(response.Results) >= limit {
			return errLimitReached
		}
		response.Results = append(response.Results, doc)
		return nil
	})
	if err != nil && !errors.Is(err, errLimitReached) {
		s.WriteErrorOf(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, response)
}

var errLimitReached = errors.New("limit reached")

type ResultsResponse struct {
	Index   string                   `json:"index"`
	Stale   bool                     `json:"stale"`
	Etag    string                   `json:"etag"`
	Results []map[string]interface{} `json:"results"`
}
