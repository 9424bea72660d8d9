package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lotas/laterread/internal/metrics"
	"github.com/lotas/laterread/internal/protocol"
	"github.com/lotas/laterread/internal/types"
)

// Routes mounts the websocket endpoint, the REST API used by page contexts
// as a fallback and by the CLI, plus metrics and health.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":    true,
			"host":  s.Connected(),
			"pages": s.Pages(),
		})
	})
	r.Handle("/metrics", metrics.Handler())
	r.Handle("/ws", s.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/items", s.apiList)
		r.Post("/items", s.apiSave)
		r.Delete("/items", s.apiClear)
		r.Delete("/items/{id}", s.apiRemove)
		r.Post("/items/open", s.apiOpen)
		r.Get("/settings", s.apiGetSettings)
		r.Put("/settings", s.apiPutSettings)
	})
	return r
}

func (s *Server) apiList(w http.ResponseWriter, r *http.Request) {
	s.answer(w, r, protocol.Message{Action: protocol.ActionList})
}

func (s *Server) apiSave(w http.ResponseWriter, r *http.Request) {
	var cand types.Candidate
	if err := json.NewDecoder(r.Body).Decode(&cand); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.answer(w, r, protocol.Message{Action: protocol.ActionSave, Data: &cand})
}

func (s *Server) apiRemove(w http.ResponseWriter, r *http.Request) {
	s.answer(w, r, protocol.Message{Action: protocol.ActionRemove, ID: chi.URLParam(r, "id")})
}

func (s *Server) apiClear(w http.ResponseWriter, r *http.Request) {
	s.answer(w, r, protocol.Message{Action: protocol.ActionClear})
}

func (s *Server) apiOpen(w http.ResponseWriter, r *http.Request) {
	var item types.SavedItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.answer(w, r, protocol.Message{Action: protocol.ActionOpen, Item: &item})
}

func (s *Server) apiGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.LoadSettings(r.Context()))
}

func (s *Server) apiPutSettings(w http.ResponseWriter, r *http.Request) {
	var settings types.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.backend.SaveSettings(r.Context(), settings); err != nil {
		writeJSON(w, http.StatusInternalServerError, protocol.Message{Action: protocol.ActionResponse}.Failed(err))
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// answer runs req through the backend and writes the response envelope.
func (s *Server) answer(w http.ResponseWriter, r *http.Request, req protocol.Message) {
	resp := s.backend.Handle(r.Context(), req)
	status := http.StatusOK
	if !resp.OK() {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
