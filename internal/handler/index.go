package handler

import (
	"net/http"
	"sort"

	"github.com/goydb/mrindex/internal/controller"
)

// Version of the server, set at build time.
var Version = "0.1.0"

type Index struct{}

func (s *Index) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	languages := make([]string, 0, 2)
	for name := range controller.DefaultScriptEngines() {
		languages = append(languages, name)
	}
	sort.Strings(languages)

	WriteJSON(w, http.StatusOK, &Info{
		Welcome:   "mrindex",
		Version:   Version,
		Languages: languages,
		Reducers:  []string{"_count", "_sum:<field>", "_stats:<field>"},
	})
}

type Info struct {
	Welcome   string   `json:"welcome"`
	Version   string   `json:"version"`
	Languages []string `json:"languages"`
	Reducers  []string `json:"reducers"`
}
