package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examgen/internal/handler/views"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/store"
)

func (h *Handler) handleAdminUsersPage(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		slog.Error("failed to list users", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.AdminUsersPage(users, h.config.AdminEmail).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

// targetUser loads the user named in the URL. It writes the error response
// itself and returns nil when the request cannot proceed.
func (h *Handler) targetUser(w http.ResponseWriter, r *http.Request) *model.User {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return nil
	}
	u, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		slog.Error("failed to get user", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil
	}
	if u == nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return nil
	}
	return u
}

// handleSetPlan switches a user between free and pro. Going back to free
// resets the quota ceiling to the free allowance.
func (h *Handler) handleSetPlan(w http.ResponseWriter, r *http.Request) {
	u := h.targetUser(w, r)
	if u == nil {
		return
	}
	if h.isAdminEmail(u.Email) {
		http.Error(w, "the admin account's plan cannot be changed", http.StatusBadRequest)
		return
	}

	plan := model.Plan(r.FormValue("plan"))
	quota := u.QuotaTotal
	switch plan {
	case model.PlanPro:
	case model.PlanFree:
		quota = h.config.FreeQuota
	default:
		http.Error(w, "plan must be free or pro", http.StatusBadRequest)
		return
	}
	if u.Plan == model.PlanPending {
		http.Error(w, "approve the account first", http.StatusBadRequest)
		return
	}

	if err := h.store.SetUserPlan(r.Context(), u.ID, plan, quota); err != nil {
		slog.Error("failed to set plan", "id", u.ID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	slog.Info("user plan changed", "user_id", u.ID, "from", u.Plan, "to", plan)
	http.Redirect(w, r, h.path("/admin/users"), http.StatusSeeOther)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	u := h.targetUser(w, r)
	if u == nil {
		return
	}
	if err := h.store.ApproveUser(r.Context(), u.ID, h.config.FreeQuota); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "user is not pending", http.StatusConflict)
			return
		}
		slog.Error("failed to approve user", "id", u.ID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	slog.Info("user approved", "user_id", u.ID)
	http.Redirect(w, r, h.path("/admin/users"), http.StatusSeeOther)
}
