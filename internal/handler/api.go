package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/scoring"
)

const maxAPIBody = 4 << 20

type scoreRequest struct {
	Answer      string   `json:"answer"`
	ModelAnswer string   `json:"model_answer"`
	KeyPoints   []string `json:"key_points"`
}

type sourceRequest struct {
	Question    string              `json:"question"`
	ModelAnswer string              `json:"model_answer"`
	Pages       []model.ContextPage `json:"pages"`
}

func (h *Handler) apiRoutes(r chi.Router) {
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.config.CORSOrigins,
		AllowedMethods:   []string{"POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.AllowContentType("application/json"))
	r.Use(h.requireAPIAuth)

	r.Post("/score", h.handleAPIScore)
	r.Post("/source", h.handleAPISource)
}

// requireAPIAuth is requireAuth for JSON clients: it answers 401 instead
// of redirecting.
func (h *Handler) requireAPIAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.sessionUser(r)
		if err != nil {
			slog.Error("failed to resolve session", "error", err)
		}
		if user == nil {
			respondError(w, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithUser(r.Context(), user)))
	})
}

func (h *Handler) handleAPIScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	res, err := scoring.Score(req.Answer, req.ModelAnswer, req.KeyPoints)
	if err != nil {
		respondError(w, apiStatus(err), err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handler) handleAPISource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	src, err := scoring.BestSourceContext(r.Context(), req.Question, req.ModelAnswer, req.Pages)
	if err != nil {
		respondError(w, apiStatus(err), err)
		return
	}
	respondJSON(w, http.StatusOK, src)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAPIBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func apiStatus(err error) int {
	if errors.Is(err, scoring.ErrInvalidArgument) {
		return http.StatusUnprocessableEntity
	}
	slog.Error("api request failed", "error", err)
	return http.StatusInternalServerError
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": err.Error()})
}
