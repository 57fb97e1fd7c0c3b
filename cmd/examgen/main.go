package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examgen/internal/exam"
	"github.com/pavelanni/examgen/internal/handler"
	appI18n "github.com/pavelanni/examgen/internal/i18n"
	"github.com/pavelanni/examgen/internal/llm"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/store"
)

// adminQuota is stored for the seeded admin; pro accounts ignore it.
const adminQuota = 9999

func main() {
	// A missing .env is fine; flags and the environment still apply.
	_ = godotenv.Load()
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examgen",
		Short: "Generate exam questions from PDFs and grade the answers",
	}

	serve := serveCmd()
	root.AddCommand(serve, scoreCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examgen --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addStoreFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "examgen.db", "SQLite database path")
	f.String("database-url", "", "PostgreSQL URL; overrides --db when set")
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	addStoreFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("llm-provider", "openai", "LLM backend (openai, gemini)")
	f.String("llm-url", "https://api.openai.com/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the OpenAI-compatible backend")
	f.String("llm-model", "gpt-4o-mini", "LLM model name")
	f.String("gemini-key", "", "Gemini API key (defaults to --llm-key)")
	f.String("gemini-model", "gemini-1.5-flash", "Gemini model name")
	f.Float64("llm-rps", 2, "Maximum LLM requests per second (0 = unlimited)")
	f.Int("prompt-token-budget", llm.DefaultTokenBudget, "Token budget for PDF text sent to the model")
	f.Int("page-cache-size", 64, "Documents whose pages are kept in memory")
	f.StringP("lang", "l", "ko", "UI and question language (ko, en)")
	f.String("admin-email", "admin@exam.com", "Email of the administrator account")
	f.String("admin-password", "", "Initial admin password (or set EXAMGEN_ADMIN_PASSWORD)")
	f.Int("free-quota", 10, "Questions a free account may generate")
	f.Int("max-upload-mb", 20, "Maximum upload size in MB")
	f.String("google-client-id", "", "Google OAuth client ID")
	f.String("google-client-secret", "", "Google OAuth client secret")
	f.String("oauth-redirect-url", "http://localhost:8080/auth/google/callback", "Google OAuth redirect URL")
	f.StringSlice("cors-origins", nil, "Origins allowed to call the JSON API (repeatable)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /exam)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	addLogFlags(cmd)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examgen")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examgen")
	v.AddConfigPath("/etc/examgen")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func openStore(ctx context.Context, v *viper.Viper) (*store.Store, error) {
	if url := v.GetString("database-url"); url != "" {
		return store.Open(ctx, store.DriverPostgres, url)
	}
	return store.Open(ctx, store.DriverSQLite, v.GetString("db"))
}

func llmConfig(v *viper.Viper) llm.Config {
	cfg := llm.Config{
		Provider:    strings.ToLower(v.GetString("llm-provider")),
		BaseURL:     v.GetString("llm-url"),
		APIKey:      v.GetString("llm-key"),
		Model:       v.GetString("llm-model"),
		RPS:         v.GetFloat64("llm-rps"),
		TokenBudget: v.GetInt("prompt-token-budget"),
		Lang:        v.GetString("lang"),
	}
	if cfg.Provider == "gemini" {
		if key := v.GetString("gemini-key"); key != "" {
			cfg.APIKey = key
		}
		cfg.Model = v.GetString("gemini-model")
	}
	return cfg
}

func normalizeBasePath(p string) string {
	p = strings.TrimRight(p, "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, v)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	adminEmail := strings.ToLower(strings.TrimSpace(v.GetString("admin-email")))
	if err := seedAdmin(ctx, db, adminEmail, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	users, err := db.UserCount(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	lcfg := llmConfig(v)
	llmClient, err := llm.New(ctx, lcfg)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	defer llmClient.Close()
	if err := llmClient.Ping(ctx); err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "provider", lcfg.Provider, "model", lcfg.Model)

	metrics, err := exam.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	svc, err := exam.New(db, llmClient, metrics, exam.Config{PageCacheSize: v.GetInt("page-cache-size")})
	if err != nil {
		return fmt.Errorf("create exam service: %w", err)
	}

	basePath := normalizeBasePath(v.GetString("base-path"))
	appCfg := model.AppConfig{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		AdminEmail:    adminEmail,
		FreeQuota:     v.GetInt("free-quota"),
		MaxUploadMB:   v.GetInt("max-upload-mb"),
		CORSOrigins:   v.GetStringSlice("cors-origins"),
		Google: model.GoogleOAuthConfig{
			ClientID:     v.GetString("google-client-id"),
			ClientSecret: v.GetString("google-client-secret"),
			RedirectURL:  v.GetString("oauth-redirect-url"),
		},
	}

	h, err := handler.New(db, svc, appCfg, prometheus.DefaultGatherer)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	go cleanupSessions(ctx, db, time.Hour)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	slog.Info("starting server",
		"addr", addr,
		"provider", lcfg.Provider,
		"model", lcfg.Model,
		"lang", lang,
		"base_path", basePath,
		"google_login", appCfg.Google.Enabled(),
		"users", users,
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func cleanupSessions(ctx context.Context, db *store.Store, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := db.CleanupExpiredSessions(ctx); err != nil {
				slog.Warn("session cleanup failed", "error", err)
			}
		}
	}
}

// seedAdmin creates the admin account on first start. An existing account
// with the admin email is promoted instead.
func seedAdmin(ctx context.Context, db *store.Store, email, password string) error {
	if email == "" {
		return errors.New("admin email is required")
	}
	existing, err := db.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Plan != model.PlanPro {
			if err := db.SetUserPlan(ctx, existing.ID, model.PlanPro, adminQuota); err != nil {
				return fmt.Errorf("promote admin: %w", err)
			}
		}
		if existing.Role != model.UserRoleAdmin {
			if err := db.SetUserRole(ctx, existing.ID, model.UserRoleAdmin); err != nil {
				return fmt.Errorf("grant admin role: %w", err)
			}
		}
		// Accounts created through Google login have no password yet.
		if existing.PasswordHash == "" && password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash admin password: %w", err)
			}
			if err := db.SetPassword(ctx, existing.ID, string(hash)); err != nil {
				return fmt.Errorf("set admin password: %w", err)
			}
		}
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or EXAMGEN_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(ctx, model.User{
		Email:        email,
		Name:         "Administrator",
		PasswordHash: string(hash),
		Plan:         model.PlanPro,
		Role:         model.UserRoleAdmin,
		QuotaTotal:   adminQuota,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded admin user", "email", email)
	return nil
}
