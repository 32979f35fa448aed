// Package fixture is an in-memory reference backend that implements the
// list/query contract the verifier judges: filtered, sorted, paginated
// collection endpoints with view expansion, single-resource CRUD, and the
// /admin control plane used for reset and seeding.
package fixture

import (
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/wondertwin-ai/qverify/internal/testcase"
)

// Server serves the fixture API.
type Server struct {
	db      *DB
	apiRoot string
	log     zerolog.Logger
}

// NewServer creates a fixture server over db. Collection routes are mounted
// under /{apiRoot}.
func NewServer(db *DB, apiRoot string, log zerolog.Logger) *Server {
	if apiRoot == "" {
		apiRoot = "api"
	}
	return &Server{db: db, apiRoot: apiRoot, log: log}
}

// LoadStateFile reads a State from a JSON file.
func LoadStateFile(path string) (State, error) {
	var st State
	data, err := os.ReadFile(path)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, err
	}
	return st, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/"+s.apiRoot+"/{entity}", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)
		r.Get("/{id}", s.handleGet)
		r.Put("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
	})
	s.adminRoutes(r)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("url", r.URL.RequestURI()).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("fixture request")
	})
}

type envelope struct {
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Warnings   []string    `json:"warnings"`
	Errors     []apiError  `json:"errors"`
}

type apiError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	params, err := testcase.ParseQuery(r.URL.String())
	if err != nil {
		writeError(w, http.StatusBadRequest, apiError{Message: err.Error()})
		return
	}

	res, err := s.db.List(entity, params)
	if err != nil {
		writeError(w, http.StatusNotFound, apiError{Message: "unknown entity " + entity})
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Data:       res.Data,
		Pagination: &res.Pagination,
		Warnings:   nonNil(res.Warnings),
		Errors:     []apiError{},
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	created, err := t.Insert(rec)
	if err != nil {
		writeWriteError(w, err)
		return
	}
	writeData(w, http.StatusCreated, created)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	t, id, ok := s.tableAndID(w, r)
	if !ok {
		return
	}
	rec, found := t.Get(id)
	if !found {
		writeError(w, http.StatusNotFound, apiError{Message: ErrNotFound.Error()})
		return
	}
	writeData(w, http.StatusOK, rec)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	t, id, ok := s.tableAndID(w, r)
	if !ok {
		return
	}
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	updated, err := t.Update(id, rec)
	if err != nil {
		writeWriteError(w, err)
		return
	}
	writeData(w, http.StatusOK, updated)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	t, id, ok := s.tableAndID(w, r)
	if !ok {
		return
	}
	rec, found := t.Delete(id)
	if !found {
		writeError(w, http.StatusNotFound, apiError{Message: ErrNotFound.Error()})
		return
	}
	writeData(w, http.StatusOK, rec)
}

func (s *Server) table(w http.ResponseWriter, r *http.Request) (*Table, bool) {
	entity := chi.URLParam(r, "entity")
	t, ok := s.db.Table(entity)
	if !ok {
		writeError(w, http.StatusNotFound, apiError{Message: "unknown entity " + entity})
		return nil, false
	}
	return t, true
}

func (s *Server) tableAndID(w http.ResponseWriter, r *http.Request) (*Table, int, bool) {
	t, ok := s.table(w, r)
	if !ok {
		return nil, 0, false
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, apiError{Message: ErrNotFound.Error()})
		return nil, 0, false
	}
	return t, id, true
}

func decodeRecord(w http.ResponseWriter, r *http.Request) (Record, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, apiError{Message: "failed to read body: " + err.Error()})
		return nil, false
	}
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil || rec == nil {
		writeError(w, http.StatusBadRequest, apiError{Message: "body must be a JSON object"})
		return nil, false
	}
	return rec, true
}

func writeWriteError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	var cerr *ConstraintError
	switch {
	case errors.As(err, &verr):
		errs := make([]apiError, len(verr.Fields))
		for i, f := range verr.Fields {
			errs[i] = apiError{Field: f, Message: f + " is required"}
		}
		writeError(w, http.StatusUnprocessableEntity, errs...)
	case errors.As(err, &cerr):
		writeError(w, http.StatusConflict, apiError{Field: cerr.Field, Message: cerr.Error()})
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, apiError{Message: err.Error()})
	default:
		writeError(w, http.StatusInternalServerError, apiError{Message: err.Error()})
	}
}

func writeData(w http.ResponseWriter, status int, rec Record) {
	writeJSON(w, status, envelope{Data: rec, Warnings: []string{}, Errors: []apiError{}})
}

func writeError(w http.ResponseWriter, status int, errs ...apiError) {
	writeJSON(w, status, envelope{Data: nil, Warnings: []string{}, Errors: errs})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
