package views

import (
	"bytes"
	"context"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appI18n "github.com/pavelanni/examgen/internal/i18n"
	"github.com/pavelanni/examgen/internal/model"
)

func renderString(t *testing.T, ctx context.Context, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(ctx, &buf))
	return buf.String()
}

func testContext(t *testing.T, lang string, u *model.User) context.Context {
	t.Helper()
	require.NoError(t, appI18n.Init("ko"))
	ctx := appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer(lang))
	ctx = model.ContextWithCSRFToken(ctx, "tok123")
	ctx = model.ContextWithBasePath(ctx, "/app")
	if u != nil {
		ctx = model.ContextWithUser(ctx, u)
	}
	return ctx
}

func TestLoginPage(t *testing.T) {
	ctx := testContext(t, "ko", nil)

	out := renderString(t, ctx, LoginPage(LoginData{Error: "PendingApproval"}))
	assert.Contains(t, out, "관리자 승인 대기중입니다.")
	assert.Contains(t, out, `value="tok123"`)
	assert.Contains(t, out, `action="/app/signup"`)
	assert.NotContains(t, out, "/auth/google/login")
	assert.NotContains(t, out, "/logout", "no navigation without a user")

	out = renderString(t, ctx, LoginPage(LoginData{GoogleLogin: true}))
	assert.Contains(t, out, `href="/app/auth/google/login"`)
}

func TestNavigationForAdmin(t *testing.T) {
	admin := &model.User{Email: "a@x", Plan: model.PlanPro, Role: model.UserRoleAdmin}
	out := renderString(t, testContext(t, "en", admin), LandingPage(admin))
	assert.Contains(t, out, `href="/app/admin/users"`)
	assert.Contains(t, out, "Plan: PRO | Usage: 0/unlimited")
}

func TestResultsPage(t *testing.T) {
	ctx := testContext(t, "en", &model.User{ID: 1, Plan: model.PlanFree})
	score := 7.0
	name, page := "bio.pdf", 3
	view := model.ResultsView{
		BatchID: "ab12cd34",
		Questions: []model.QuestionView{
			{Index: 1, Question: model.Question{
				PromptText: "How do cells divide?",
				AnswerText: "mitosis <b>",
				Score:      &score,
				Meta: model.QuestionMetadata{
					ModelAnswer: "By mitosis",
					KeyPoints:   []string{"mitosis", "chromosomes"},
					Source:      &model.SourceAttribution{SourceName: &name, PageNumber: &page, MatchScore: 80},
				},
			}},
			{Index: 2, Question: model.Question{PromptText: "Unanswered"}},
		},
		Stats:    []model.PDFStat{{Filename: "bio.pdf", Correct: 1, Total: 2, Rate: 0.5, NeedsReview: true}},
		Feedback: "Keep going.",
	}
	out := renderString(t, ctx, ResultsPage(view))

	assert.Contains(t, out, "Question 1")
	assert.Contains(t, out, "mitosis &lt;b&gt;")
	assert.Contains(t, out, "7/10")
	assert.Contains(t, out, "mitosis, chromosomes")
	assert.Contains(t, out, "bio.pdf p.3")
	assert.Contains(t, out, "(no answer)")
	assert.Contains(t, out, "(no information)")
	assert.Contains(t, out, "bio.pdf: 1/2 correct (50.0%)")
	assert.Contains(t, out, "Consider reviewing bio.pdf.")
	assert.Contains(t, out, "Keep going.")
	assert.Contains(t, out, `name="batch_id" value="ab12cd34"`)
}

func TestUploadAndHistoryPages(t *testing.T) {
	ctx := testContext(t, "en", &model.User{ID: 1, Plan: model.PlanFree})

	out := renderString(t, ctx, UploadPage("QuotaExceeded", 20))
	assert.Contains(t, out, "You have used up your free quota.")
	assert.Contains(t, out, `<option value="medium" selected>Medium</option>`)
	assert.Contains(t, out, `enctype="multipart/form-data"`)

	out = renderString(t, ctx, HistoryPage(model.HistoryView{}))
	assert.Contains(t, out, "No records yet.")

	score := 4.0
	out = renderString(t, ctx, HistoryPage(model.HistoryView{
		Documents: []model.DocumentHistory{{
			Document:      model.Document{ID: 5, Filename: "chem.pdf"},
			QuestionCount: 1,
			Average:       4,
			Batches: []model.BatchView{{
				BatchID:   "b1",
				Questions: []model.Question{{PromptText: "What is water?", Score: &score}},
				Average:   4,
			}},
		}},
		Weakness: []model.PDFWeakness{{Filename: "chem.pdf", Average: 4, Count: 1}},
	}))
	assert.Contains(t, out, "chem.pdf · 1 question · Average 4.0/10")
	assert.Contains(t, out, `action="/app/documents/5/delete"`)
	assert.Contains(t, out, `action="/app/batches/b1/delete"`)
	assert.Contains(t, out, "Set b1")
}

func TestAdminUsersPage(t *testing.T) {
	ctx := testContext(t, "en", &model.User{ID: 1, Role: model.UserRoleAdmin, Plan: model.PlanPro})
	out := renderString(t, ctx, AdminUsersPage([]model.User{
		{ID: 1, Email: "admin@exam.com", Plan: model.PlanPro},
		{ID: 2, Email: "f@x", Plan: model.PlanFree, QuotaTotal: 10, QuotaUsed: 3},
		{ID: 3, Email: "p@x", Plan: model.PlanPending},
	}, "admin@exam.com"))

	assert.NotContains(t, out, `action="/app/admin/users/1/plan"`)
	assert.Contains(t, out, `action="/app/admin/users/2/plan"`)
	assert.Contains(t, out, "3/10")
	assert.Contains(t, out, `action="/app/admin/users/3/approve"`)
}

func TestTutorAnswer(t *testing.T) {
	ctx := testContext(t, "en", nil)
	assert.Contains(t, renderString(t, ctx, TutorAnswer("q?", "Because.", false)), "Because.")
	assert.Contains(t, renderString(t, ctx, TutorAnswer("q?", "", true)), "could not answer")
}
