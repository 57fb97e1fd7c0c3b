package model

import (
	"context"
	"time"
)

// Plan is the subscription tier of an account.
type Plan string

const (
	// PlanPending marks a self-registered account waiting for admin approval.
	PlanPending Plan = "pending"
	// PlanFree is the quota-limited tier.
	PlanFree Plan = "free"
	// PlanPro has no generation quota.
	PlanPro Plan = "pro"
)

// Unlimited reports whether the plan ignores the generation quota.
func (p Plan) Unlimited() bool {
	return p == PlanPro
}

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleUser is a regular learner.
	UserRoleUser UserRole = "user"
	// UserRoleAdmin can manage accounts and plans.
	UserRoleAdmin UserRole = "admin"
)

// User represents an account.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	School       string    `json:"school,omitempty"`
	PasswordHash string    `json:"-"`
	Plan         Plan      `json:"plan"`
	Role         UserRole  `json:"role"`
	QuotaTotal   int       `json:"quota_total"`
	QuotaUsed    int       `json:"quota_used"`
	CreatedAt    time.Time `json:"created_at"`
}

// QuotaLeft returns how many questions the user may still generate.
// Negative means unlimited.
func (u User) QuotaLeft() int {
	if u.Plan.Unlimited() {
		return -1
	}
	left := u.QuotaTotal - u.QuotaUsed
	if left < 0 {
		return 0
	}
	return left
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyLow    Difficulty = "low"
	DifficultyMedium Difficulty = "medium"
	DifficultyHigh   Difficulty = "high"
)

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyLow, DifficultyMedium, DifficultyHigh:
		return true
	}
	return false
}

// QuestionKind is the answer format requested from the generator.
type QuestionKind string

const (
	KindEssay          QuestionKind = "essay"
	KindMultipleChoice QuestionKind = "multiple_choice"
	KindTrueFalse      QuestionKind = "true_false"
)

// Valid reports whether k is a known question kind.
func (k QuestionKind) Valid() bool {
	switch k {
	case KindEssay, KindMultipleChoice, KindTrueFalse:
		return true
	}
	return false
}

// Document is one upload: one or more PDFs generated from together.
type Document struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Filename    string    `json:"filename"`
	TextPreview string    `json:"text_preview"`
	FullText    string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Question is a generated question together with the user's graded answer.
type Question struct {
	ID         int64            `json:"id"`
	UserID     int64            `json:"user_id"`
	DocumentID int64            `json:"document_id"`
	PromptText string           `json:"prompt_text"`
	AnswerText string           `json:"answer_text"`
	Kind       QuestionKind     `json:"kind"`
	Difficulty Difficulty       `json:"difficulty"`
	Score      *float64         `json:"score,omitempty"`
	Meta       QuestionMetadata `json:"meta"`
	CreatedAt  time.Time        `json:"created_at"`
}

// ScoreOrZero returns the stored score, treating ungraded as zero.
func (q Question) ScoreOrZero() float64 {
	if q.Score == nil {
		return 0
	}
	return *q.Score
}

// UploadedFile is a PDF received from the upload form.
type UploadedFile struct {
	Name string
	Data []byte
}

// GenerateRequest holds the upload form parameters.
type GenerateRequest struct {
	Files        []UploadedFile
	Difficulty   Difficulty
	Kind         QuestionKind
	NumQuestions int
	Style        string
}

const (
	MinQuestions     = 3
	MaxQuestions     = 20
	DefaultQuestions = 8
)

// Normalize fills defaults and clamps the question count.
func (r *GenerateRequest) Normalize() {
	if !r.Difficulty.Valid() {
		r.Difficulty = DifficultyMedium
	}
	if !r.Kind.Valid() {
		r.Kind = KindEssay
	}
	switch {
	case r.NumQuestions == 0:
		r.NumQuestions = DefaultQuestions
	case r.NumQuestions < MinQuestions:
		r.NumQuestions = MinQuestions
	case r.NumQuestions > MaxQuestions:
		r.NumQuestions = MaxQuestions
	}
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	BasePath      string // URL prefix for sub-path deployments
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
	AdminEmail    string
	FreeQuota     int
	MaxUploadMB   int
	CORSOrigins   []string // origins allowed to call the JSON API
	Google        GoogleOAuthConfig
}

// GoogleOAuthConfig configures the optional Google login button.
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled reports whether Google login is configured.
func (g GoogleOAuthConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// QuestionView is a graded question prepared for display.
type QuestionView struct {
	Index    int
	Question Question
}

// PDFStat is the per-file correctness summary of one batch.
type PDFStat struct {
	Filename    string  `json:"filename"`
	Correct     int     `json:"correct"`
	Total       int     `json:"total"`
	Rate        float64 `json:"rate"`
	NeedsReview bool    `json:"needs_review"`
}

// PDFWeakness is the average score of all questions attributed to one file.
type PDFWeakness struct {
	Filename string  `json:"pdf"`
	Average  float64 `json:"avg"`
	Count    int     `json:"count"`
}

// ResultsView is everything the results page shows for one batch.
type ResultsView struct {
	BatchID   string
	Questions []QuestionView
	Stats     []PDFStat
	Feedback  string
}

// BatchView groups the questions generated in one batch.
type BatchView struct {
	BatchID   string
	Questions []Question
	Average   float64
}

// DocumentHistory is one document with its batches.
type DocumentHistory struct {
	Document      Document
	QuestionCount int
	Average       float64
	Batches       []BatchView
}

// HistoryView is the usage history of one user.
type HistoryView struct {
	Documents []DocumentHistory
	Weakness  []PDFWeakness
}
