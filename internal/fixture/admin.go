package fixture

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
)

// adminRoutes mounts the /admin control plane.
func (s *Server) adminRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Post("/reset", s.handleReset)
		r.Get("/state", s.handleGetState)
		r.Post("/state", s.handleLoadState)
		r.Get("/health", s.handleHealth)
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.db.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.db.Snapshot())
}

func (s *Server) handleLoadState(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body: " + err.Error()})
		return
	}
	var st State
	if err := json.Unmarshal(body, &st); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to load state: " + err.Error()})
		return
	}
	if err := s.db.Load(st); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to load state: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
