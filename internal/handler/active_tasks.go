package handler

import (
	"net/http"
)

// ActiveTasks lists the indexes of all databases with their state.
type ActiveTasks struct {
	Base
}

func (s *ActiveTasks) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	names, err := s.Engine.Databases(r.Context())
	if err != nil {
		s.WriteErrorOf(w, r, err)
		return
	}

	tasks := make([]*Task, 0, 10)
	for _, name := range names {
		m, err := s.Engine.Manager(r.Context(), name)
		if err != nil {
			s.WriteErrorOf(w, r, err)
			return
		}
		defs, err := m.Definitions(r.Context())
		if err != nil {
			s.WriteErrorOf(w, r, err)
			return
		}

		for _, def := range defs {
			task := &Task{
				Database:    name,
				Index:       def.LogicalName(),
				Replacement: def.IsReplacement(),
				Type:        "indexer",
			}
			state, err := m.State(r.Context(), def.Name)
			task.Stale = state == nil || state.Stale
			if state != nil {
				task.Reasons = state.Reasons
			}
			if err != nil {
				task.Reasons = append(task.Reasons, err.Error())
			}
			errs, err := m.Errors(r.Context(), def.Name)
			if err == nil {
				task.Errors = len(errs)
			}
			tasks = append(tasks, task)
		}
	}

	WriteJSON(w, http.StatusOK, tasks)
}

type Task struct {
	Database    string   `json:"database"`
	Index       string   `json:"index"`
	Replacement bool     `json:"replacement,omitempty"`
	Type        string   `json:"type"`
	Stale       bool     `json:"stale"`
	Reasons     []string `json:"reasons,omitempty"`
	Errors      int      `json:"errors"`
}
