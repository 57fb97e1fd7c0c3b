// Package views renders the HTML pages. Every page is a templ.Component so
// handlers render them the same way regardless of how they are built.
package views

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/examgen/internal/i18n"
	"github.com/pavelanni/examgen/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// base holds the parsed templates with placeholder functions. Each render
// works on a clone whose request-bound functions see the render context.
var base = template.Must(template.New("views").Funcs(funcs(context.Background())).ParseFS(templateFS, "templates/*.html"))

func funcs(ctx context.Context) template.FuncMap {
	return template.FuncMap{
		"t": func(id string) string { return appI18n.T(ctx, id) },
		"td": func(id string, kv ...any) string {
			return appI18n.Td(ctx, id, pairs(kv))
		},
		"tp":   func(id string, n int) string { return appI18n.Tp(ctx, id, n) },
		"path": func(p string) string { return model.BasePathFromContext(ctx) + p },
		"csrf": func() string { return model.CSRFTokenFromContext(ctx) },
		"user": func() *model.User { return model.UserFromContext(ctx) },
		"isAdmin": func() bool {
			u := model.UserFromContext(ctx)
			return u != nil && u.Role == model.UserRoleAdmin
		},
		"join":  strings.Join,
		"score": formatScore,
		"avg":   func(f float64) string { return fmt.Sprintf("%.1f", f) },
		"pct":   func(f float64) string { return fmt.Sprintf("%.1f", f*100) },
		"date":  func(v any) string { return fmt.Sprintf("%.10s", fmt.Sprint(v)) },
		"upper": strings.ToUpper,
		"inc":   func(i int) int { return i + 1 },
	}
}

func pairs(kv []any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return m
}

func formatScore(s *float64) string {
	if s == nil {
		return "0"
	}
	return fmt.Sprintf("%g", *s)
}

func render(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		t, err := base.Clone()
		if err != nil {
			return err
		}
		return t.Funcs(funcs(ctx)).ExecuteTemplate(w, name, data)
	})
}

// LoginData feeds the login and signup page.
type LoginData struct {
	Error       string
	Notice      string
	GoogleLogin bool
}

// LoginPage renders the login and signup forms.
func LoginPage(d LoginData) templ.Component {
	return render("login", d)
}

// LandingPage shows the user's plan and usage.
func LandingPage(u *model.User) templ.Component {
	return render("landing", u)
}

// Option is a select option whose Label is a translation ID.
type Option struct {
	Value    string
	Label    string
	Selected bool
}

// UploadData feeds the upload form.
type UploadData struct {
	Error       string
	MaxUploadMB int
	Min, Max    int
	Default     int
	Difficulty  []Option
	Kinds       []Option
}

func difficultyOptions() []Option {
	return []Option{
		{Value: string(model.DifficultyLow), Label: "DifficultyLow"},
		{Value: string(model.DifficultyMedium), Label: "DifficultyMedium", Selected: true},
		{Value: string(model.DifficultyHigh), Label: "DifficultyHigh"},
	}
}

func kindOptions() []Option {
	return []Option{
		{Value: string(model.KindEssay), Label: "KindEssay", Selected: true},
		{Value: string(model.KindMultipleChoice), Label: "KindMultipleChoice"},
		{Value: string(model.KindTrueFalse), Label: "KindTrueFalse"},
	}
}

// UploadPage renders the PDF upload form. errMsg is a translation ID.
func UploadPage(errMsg string, maxUploadMB int) templ.Component {
	return render("upload", UploadData{
		Error:       errMsg,
		MaxUploadMB: maxUploadMB,
		Min:         model.MinQuestions,
		Max:         model.MaxQuestions,
		Default:     model.DefaultQuestions,
		Difficulty:  difficultyOptions(),
		Kinds:       kindOptions(),
	})
}

// QuizPage renders the answer form of a batch.
func QuizPage(v model.BatchView) templ.Component {
	return render("quiz", v)
}

// ResultsPage renders a graded batch.
func ResultsPage(v model.ResultsView) templ.Component {
	return render("results", v)
}

// HistoryPage renders the user's documents and batches.
func HistoryPage(v model.HistoryView) templ.Component {
	return render("history", struct {
		model.HistoryView
		Difficulty []Option
	}{v, difficultyOptions()})
}

// AdminUsersData feeds the admin user list.
type AdminUsersData struct {
	Users      []model.User
	AdminEmail string
}

// AdminUsersPage renders the user management table.
func AdminUsersPage(users []model.User, adminEmail string) templ.Component {
	return render("admin_users", AdminUsersData{Users: users, AdminEmail: adminEmail})
}

// TutorAnswer is the htmx fragment with the tutor's reply.
func TutorAnswer(question, answer string, failed bool) templ.Component {
	return render("tutor_answer", struct {
		Question, Answer string
		Failed           bool
	}{question, answer, failed})
}
