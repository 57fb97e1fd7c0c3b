package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/pavelanni/examgen/internal/handler/views"
	"github.com/pavelanni/examgen/internal/model"
)

const (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
	oauthStateCookie  = "oauth_state"
	oauthStateTTL     = 10 * time.Minute
	maxUserInfoBody   = 1 << 20
)

func newOAuthConfig(g model.GoogleOAuthConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		RedirectURL:  g.RedirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{"openid", "email", "profile"},
	}
}

type googleProfile struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

func (h *Handler) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		http.NotFound(w, r)
		return
	}
	state, err := generateCSRFToken()
	if err != nil {
		slog.Error("failed to generate oauth state", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     h.cookiePath(),
		MaxAge:   int(oauthStateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

func (h *Handler) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		http.NotFound(w, r)
		return
	}
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		slog.Warn("oauth state mismatch")
		h.renderLogin(w, r, http.StatusBadRequest, views.LoginData{Error: "OAuthFailed"})
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Path: h.cookiePath(), MaxAge: -1})

	profile, err := h.exchangeGoogle(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		slog.Error("google login failed", "error", err)
		h.renderLogin(w, r, http.StatusUnauthorized, views.LoginData{Error: "OAuthFailed"})
		return
	}

	email := normalizeEmail(profile.Email)
	user, err := h.store.GetUserByEmail(r.Context(), email)
	if err != nil {
		slog.Error("failed to get user", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if user == nil {
		u := h.newUser(email, strings.TrimSpace(profile.Name), model.PlanFree)
		id, err := h.store.CreateUser(r.Context(), u)
		if err != nil {
			slog.Error("failed to create user", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		u.ID = id
		user = &u
		slog.Info("user created from google login", "user_id", id, "plan", u.Plan)
	}
	if user.Plan == model.PlanPending {
		h.renderLogin(w, r, http.StatusForbidden, views.LoginData{Error: "PendingApproval"})
		return
	}
	h.startSession(w, r, user)
}

// exchangeGoogle trades the authorization code for a token and fetches the
// user's profile with it.
func (h *Handler) exchangeGoogle(ctx context.Context, code string) (googleProfile, error) {
	if code == "" {
		return googleProfile{}, fmt.Errorf("google: missing authorization code")
	}
	tok, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		return googleProfile{}, fmt.Errorf("google: exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.userInfoURL, nil)
	if err != nil {
		return googleProfile{}, err
	}
	resp, err := h.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return googleProfile{}, fmt.Errorf("google: user info request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBody))
		return googleProfile{}, fmt.Errorf("google: user info failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var p googleProfile
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBody)).Decode(&p); err != nil {
		return googleProfile{}, fmt.Errorf("google: decode user info: %w", err)
	}
	if strings.TrimSpace(p.Email) == "" {
		return googleProfile{}, fmt.Errorf("google: user info missing email")
	}
	return p, nil
}
