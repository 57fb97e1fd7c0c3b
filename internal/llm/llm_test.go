package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/pavelanni/examgen/internal/model"
)

type fakeBackend struct {
	reply string
	err   error
	calls []completion
}

func (f *fakeBackend) name() string { return "fake" }

func (f *fakeBackend) complete(_ context.Context, c completion) (string, error) {
	f.calls = append(f.calls, c)
	return f.reply, f.err
}

func (f *fakeBackend) ping(context.Context) error { return f.err }
func (f *fakeBackend) close() error              { return nil }

func newFakeClient(t *testing.T, b *fakeBackend) *Client {
	t.Helper()
	c, err := newClient(b, Config{Lang: "en"})
	if err != nil {
		t.Fatalf("newClient: %v", err)
	}
	return c
}

func TestParseQuestions(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"numbered", "Here you go:\n1. What is H2O?\n2.  Define osmosis.\n 3. Why?", 0, []string{"What is H2O?", "Define osmosis.", "Why?"}},
		{"limit", "1. a\n2. b\n3. c", 2, []string{"a", "b"}},
		{"bullets fallback", "- first question\n• second question\n\n  third  ", 0, []string{"first question", "second question", "third"}},
		{"empty", "  \n ", 5, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseQuestions(tt.text, tt.limit)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("ParseQuestions() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseReference(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		ref, err := ParseReference(`{"model_answer": " Water is H2O. ", "key_points": ["H2O", 3, "물"]}`)
		if err != nil {
			t.Fatal(err)
		}
		if ref.ModelAnswer != "Water is H2O." {
			t.Errorf("ModelAnswer = %q", ref.ModelAnswer)
		}
		if strings.Join(ref.KeyPoints, ",") != "H2O,물" {
			t.Errorf("KeyPoints = %q", ref.KeyPoints)
		}
	})

	t.Run("code fences", func(t *testing.T) {
		ref, err := ParseReference("```json\n{\"model_answer\": \"a\", \"key_points\": []}\n```")
		if err != nil {
			t.Fatal(err)
		}
		if ref.ModelAnswer != "a" {
			t.Errorf("ModelAnswer = %q", ref.ModelAnswer)
		}
	})

	t.Run("repairs trailing comma", func(t *testing.T) {
		ref, err := ParseReference(`{"model_answer": "a", "key_points": ["x", "y",],}`)
		if err != nil {
			t.Fatal(err)
		}
		if len(ref.KeyPoints) != 2 {
			t.Errorf("KeyPoints = %q", ref.KeyPoints)
		}
	})

	t.Run("key points not a list", func(t *testing.T) {
		ref, err := ParseReference(`{"model_answer": "a", "key_points": "x"}`)
		if err != nil {
			t.Fatal(err)
		}
		if ref.KeyPoints == nil || len(ref.KeyPoints) != 0 {
			t.Errorf("KeyPoints = %#v, want empty non-nil", ref.KeyPoints)
		}
	})

	t.Run("caps key points", func(t *testing.T) {
		ref, err := ParseReference(`{"model_answer": "a", "key_points": ["1","2","3","4","5","6","7","8","9","10"]}`)
		if err != nil {
			t.Fatal(err)
		}
		if len(ref.KeyPoints) != 8 {
			t.Errorf("len(KeyPoints) = %d, want 8", len(ref.KeyPoints))
		}
	})
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{}\n```", `{}`},
	}
	for _, tt := range tests {
		if got := StripCodeFences(tt.in); got != tt.want {
			t.Errorf("StripCodeFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClientGenerateQuestions(t *testing.T) {
	b := &fakeBackend{reply: "1. Q one\n2. Q two\n3. Q three"}
	c := newFakeClient(t, b)
	qs, err := c.GenerateQuestions(context.Background(), QuestionRequest{
		Text: "material", Num: 2, Difficulty: model.DifficultyLow, Kind: model.KindEssay,
		Exclude: []string{"Old question"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(qs) != 2 || qs[0] != "Q one" {
		t.Errorf("questions = %q", qs)
	}
	if len(b.calls) != 1 {
		t.Fatalf("calls = %d", len(b.calls))
	}
	if b.calls[0].JSON {
		t.Error("question generation should not request JSON")
	}
	if !strings.Contains(b.calls[0].User, "Old question") {
		t.Error("prompt should carry excluded questions")
	}
}

func TestClientReference(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		b := &fakeBackend{reply: `{"model_answer": "H2O", "key_points": ["H2O"]}`}
		c := newFakeClient(t, b)
		ref, err := c.Reference(context.Background(), "Formula of water?", []model.ContextPage{{SourceName: "a.pdf", PageNumber: 1, Text: "water"}}, model.DifficultyMedium)
		if err != nil {
			t.Fatal(err)
		}
		if ref.ModelAnswer != "H2O" {
			t.Errorf("ModelAnswer = %q", ref.ModelAnswer)
		}
		if !b.calls[0].JSON || b.calls[0].System == "" {
			t.Error("reference call should request JSON with a system prompt")
		}
	})

	t.Run("unparseable reply", func(t *testing.T) {
		c := newFakeClient(t, &fakeBackend{reply: "I cannot help with that."})
		_, err := c.Reference(context.Background(), "q", nil, model.DifficultyMedium)
		var ge *GenerationError
		if !errors.As(err, &ge) {
			t.Fatalf("err = %v, want *GenerationError", err)
		}
		if ge.Op != OpReference {
			t.Errorf("Op = %q", ge.Op)
		}
	})

	t.Run("backend failure", func(t *testing.T) {
		boom := errors.New("boom")
		c := newFakeClient(t, &fakeBackend{err: boom})
		_, err := c.Reference(context.Background(), "q", nil, model.DifficultyMedium)
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v, want wrapped boom", err)
		}
	})
}

func TestClientEmptyReply(t *testing.T) {
	c := newFakeClient(t, &fakeBackend{reply: ""})
	_, err := c.Feedback(context.Background(), nil)
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestClientPing(t *testing.T) {
	c := newFakeClient(t, &fakeBackend{err: errors.New("unauthorized")})
	err := c.Ping(context.Background())
	var ge *GenerationError
	if !errors.As(err, &ge) || ge.Op != OpPing {
		t.Fatalf("err = %v, want ping GenerationError", err)
	}
}

func TestClientRateLimitHonorsContext(t *testing.T) {
	b := &fakeBackend{reply: "ok"}
	c, err := newClient(b, Config{RPS: 0.001})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Tutor(context.Background(), "first", ""); err != nil {
		t.Fatalf("first call: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Tutor(ctx, "second", ""); err == nil {
		t.Fatal("second call should fail on a cancelled context")
	}
	if len(b.calls) != 1 {
		t.Errorf("backend calls = %d, want 1", len(b.calls))
	}
}

func TestNewUnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), Config{Provider: "claude"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestTruncateTokens(t *testing.T) {
	if got := TruncateTokens("short text", 100); got != "short text" {
		t.Errorf("short text changed: %q", got)
	}
	if got := TruncateTokens("anything", 0); got != "anything" {
		t.Errorf("zero budget should not cut: %q", got)
	}
	long := strings.Repeat("물은 H2O이다. ", 500)
	got := TruncateTokens(long, 20)
	if utf8.RuneCountInString(got) >= utf8.RuneCountInString(long) {
		t.Error("long text should be cut")
	}
	if !utf8.ValidString(got) {
		t.Error("cut text must stay valid UTF-8")
	}
}
