package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"

	"github.com/pavelanni/examgen/internal/exam"
	"github.com/pavelanni/examgen/internal/handler/views"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/scoring"
	"github.com/pavelanni/examgen/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store   *store.Store
	exam    *exam.Service
	config  model.AppConfig
	oauth   *oauth2.Config
	metrics http.Handler

	// userInfoURL is where the Google profile is fetched after the code exchange.
	userInfoURL string
}

// New creates a new Handler. gatherer backs /metrics; nil means the
// default registry.
func New(s *store.Store, svc *exam.Service, cfg model.AppConfig, gatherer prometheus.Gatherer) (*Handler, error) {
	if s == nil || svc == nil {
		return nil, errors.New("handler needs a store and an exam service")
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 20
	}
	h := &Handler{
		store:       s,
		exam:        svc,
		config:      cfg,
		metrics:     promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		userInfoURL: googleUserInfoURL,
	}
	if cfg.Google.Enabled() {
		h.oauth = newOAuthConfig(cfg.Google)
	}
	return h, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", h.metrics)

	r.Route("/api", h.apiRoutes)

	r.Group(func(r chi.Router) {
		r.Use(h.limitBody)
		r.Use(h.csrfMiddleware)

		r.Get("/login", h.handleLoginPage)
		r.Post("/login", h.handleLogin)
		r.Post("/signup", h.handleSignup)
		r.Get("/auth/google/login", h.handleGoogleLogin)
		r.Get("/auth/google/callback", h.handleGoogleCallback)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Post("/logout", h.handleLogout)
			r.Get("/", h.handleIndex)
			r.Get("/upload", h.handleUploadPage)
			r.Post("/upload", h.handleUpload)
			r.Get("/batches/{batchID}", h.handleQuizPage)
			r.Post("/batches/{batchID}/submit", h.handleSubmit)
			r.Get("/batches/{batchID}/results", h.handleResults)
			r.Post("/batches/{batchID}/delete", h.handleDeleteBatch)
			r.Get("/history", h.handleHistory)
			r.Post("/documents/{documentID}/delete", h.handleDeleteDocument)
			r.Post("/documents/{documentID}/regenerate", h.handleRegenerate)
			r.Post("/tutor", h.handleTutor)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin))
				r.Get("/admin/users", h.handleAdminUsersPage)
				r.Post("/admin/users/{userID}/plan", h.handleSetPlan)
				r.Post("/admin/users/{userID}/approve", h.handleApprove)
			})
		})
	})
}

// BasePathMiddleware stores the configured URL prefix in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

// limitBody caps request bodies at the upload limit plus room for form fields.
func (h *Handler) limitBody(next http.Handler) http.Handler {
	limit := int64(h.config.MaxUploadMB+1) << 20
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		slog.Error("health check failed", "error", err)
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	u := model.UserFromContext(r.Context())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.LandingPage(u).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleUploadPage(w http.ResponseWriter, r *http.Request) {
	msg := ""
	if err := exam.CanGenerate(model.UserFromContext(r.Context())); err != nil {
		msg = errorMessage(err)
	}
	h.renderUpload(w, r, http.StatusOK, msg)
}

func (h *Handler) renderUpload(w http.ResponseWriter, r *http.Request, status int, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := views.UploadPage(msg, h.config.MaxUploadMB).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	u := model.UserFromContext(r.Context())
	if err := r.ParseMultipartForm(int64(h.config.MaxUploadMB) << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.renderUpload(w, r, http.StatusBadRequest, "NoFilesError")
		return
	}

	files, err := readUploads(r.MultipartForm.File["files"])
	if err != nil {
		slog.Error("failed to read upload", "error", err)
		http.Error(w, "failed to read file", http.StatusBadRequest)
		return
	}

	req := generateRequest(r)
	req.Files = files
	batchID, err := h.exam.Generate(r.Context(), u, req)
	if err != nil {
		slog.Error("question generation failed", "user_id", u.ID, "error", err)
		h.renderUpload(w, r, errorStatus(err), errorMessage(err))
		return
	}
	http.Redirect(w, r, h.path("/batches/"+batchID), http.StatusSeeOther)
}

func readUploads(headers []*multipart.FileHeader) ([]model.UploadedFile, error) {
	var files []model.UploadedFile
	for _, fh := range headers {
		if !strings.EqualFold(filepath.Ext(fh.Filename), ".pdf") {
			slog.Warn("ignoring non-PDF upload", "filename", fh.Filename)
			continue
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, model.UploadedFile{Name: fh.Filename, Data: data})
	}
	return files, nil
}

func generateRequest(r *http.Request) model.GenerateRequest {
	n, _ := strconv.Atoi(r.FormValue("num_questions"))
	return model.GenerateRequest{
		Difficulty:   model.Difficulty(r.FormValue("difficulty")),
		Kind:         model.QuestionKind(r.FormValue("kind")),
		NumQuestions: n,
		Style:        strings.TrimSpace(r.FormValue("style")),
	}
}

func (h *Handler) handleQuizPage(w http.ResponseWriter, r *http.Request) {
	u := model.UserFromContext(r.Context())
	view, err := h.exam.Batch(r.Context(), u, chi.URLParam(r, "batchID"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.QuizPage(view).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

const answerField = "answer_"

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	u := model.UserFromContext(r.Context())
	batchID := chi.URLParam(r, "batchID")
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	answers := make(map[int64]string)
	for key, vals := range r.PostForm {
		if !strings.HasPrefix(key, answerField) || len(vals) == 0 {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(key, answerField), 10, 64)
		if err != nil {
			http.Error(w, "invalid answer field", http.StatusBadRequest)
			return
		}
		answers[id] = vals[0]
	}

	if err := h.exam.Grade(r.Context(), u, batchID, answers); err != nil {
		h.serviceError(w, err)
		return
	}
	http.Redirect(w, r, h.path("/batches/"+batchID+"/results"), http.StatusSeeOther)
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	u := model.UserFromContext(r.Context())
	withFeedback := r.URL.Query().Get("feedback") != "off"
	view, err := h.exam.Results(r.Context(), u, chi.URLParam(r, "batchID"), withFeedback)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.ResultsPage(view).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	u := model.UserFromContext(r.Context())
	view, err := h.exam.History(r.Context(), u)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.HistoryPage(view).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "documentID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid document ID", http.StatusBadRequest)
		return
	}
	if err := h.exam.DeleteDocument(r.Context(), model.UserFromContext(r.Context()), id); err != nil {
		h.serviceError(w, err)
		return
	}
	http.Redirect(w, r, h.path("/history"), http.StatusSeeOther)
}

func (h *Handler) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	u := model.UserFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "documentID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid document ID", http.StatusBadRequest)
		return
	}
	batchID, err := h.exam.Regenerate(r.Context(), u, id, generateRequest(r))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	http.Redirect(w, r, h.path("/batches/"+batchID), http.StatusSeeOther)
}

func (h *Handler) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	if err := h.exam.DeleteBatch(r.Context(), model.UserFromContext(r.Context()), chi.URLParam(r, "batchID")); err != nil {
		h.serviceError(w, err)
		return
	}
	http.Redirect(w, r, h.path("/history"), http.StatusSeeOther)
}

func (h *Handler) handleTutor(w http.ResponseWriter, r *http.Request) {
	u := model.UserFromContext(r.Context())
	question := strings.TrimSpace(r.FormValue("question"))
	if question == "" {
		http.Error(w, "question cannot be empty", http.StatusBadRequest)
		return
	}

	answer, err := h.exam.Ask(r.Context(), u, question, r.FormValue("batch_id"))
	failed := err != nil
	if failed {
		slog.Error("tutor request failed", "user_id", u.ID, "error", err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.TutorAnswer(question, answer, failed).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

// serviceError maps exam errors to HTTP responses.
func (h *Handler) serviceError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		http.Error(w, "internal error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, exam.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, exam.ErrPendingApproval), errors.Is(err, exam.ErrQuotaExceeded):
		return http.StatusForbidden
	case errors.Is(err, exam.ErrNoFiles), errors.Is(err, exam.ErrUnreadable), errors.Is(err, scoring.ErrInvalidArgument):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// errorMessage returns the translation ID shown on the upload page.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, exam.ErrPendingApproval):
		return "PendingApproval"
	case errors.Is(err, exam.ErrQuotaExceeded):
		return "QuotaExceeded"
	case errors.Is(err, exam.ErrNoFiles):
		return "NoFilesError"
	case errors.Is(err, exam.ErrUnreadable):
		return "UnreadableError"
	}
	return "GenerationFailed"
}
