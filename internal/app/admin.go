package app

import (
	"encoding/json"
	"net/http"
)

// ActorStatus is one row of the /actors listing.
type ActorStatus struct {
	Name    string `json:"name"`
	State   string `json:"state"`
	Pending int    `json:"pending"`
	Error   string `json:"error,omitempty"`
}

// Actors reports every registered actor, the dispatcher last.
func (a *App) Actors() []ActorStatus {
	names := a.reg.Names()
	out := make([]ActorStatus, 0, len(names)+1)
	for _, n := range names {
		if act := a.reg.Lookup(n); act != nil {
			out = append(out, status(act.Name(), act.State().String(), act.Pending(), act.Err()))
		}
	}
	d := a.reg.Dispatcher()
	return append(out, status(d.Name(), d.State().String(), d.Pending(), d.Err()))
}

func status(name, state string, pending int, err error) ActorStatus {
	s := ActorStatus{Name: name, State: state, Pending: pending}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

// Register mounts the actor admin endpoints on mux:
//
//   - GET /actors lists actor states.
//   - POST /actors/restart restarts every faulted actor and lists them.
func (a *App) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /actors", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, a.Actors())
	})
	mux.HandleFunc("POST /actors/restart", func(w http.ResponseWriter, r *http.Request) {
		restarted := a.reg.RestartFaulted(r.Context())
		if restarted == nil {
			restarted = []string{}
		}
		writeJSON(w, http.StatusOK, map[string][]string{"restarted": restarted})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
