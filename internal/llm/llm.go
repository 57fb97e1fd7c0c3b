// Package llm talks to the language model that writes questions, model
// answers, feedback and tutor replies. Two backends share one Client: an
// OpenAI-compatible chat API and Google Gemini.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/pavelanni/examgen/internal/llm/prompts"
	"github.com/pavelanni/examgen/internal/model"
)

// Generator is everything the exam service needs from a model.
type Generator interface {
	GenerateQuestions(ctx context.Context, req QuestionRequest) ([]string, error)
	Reference(ctx context.Context, question string, pages []model.ContextPage, difficulty model.Difficulty) (model.Reference, error)
	Feedback(ctx context.Context, questions []model.Question) (string, error)
	Tutor(ctx context.Context, question, background string) (string, error)
	Ping(ctx context.Context) error
}

// QuestionRequest describes one batch of questions to write.
type QuestionRequest struct {
	Text       string
	Num        int
	Difficulty model.Difficulty
	Kind       model.QuestionKind
	Style      string
	// Exclude lists questions already asked for the same document.
	Exclude []string
}

// Operation names used in errors and metrics labels.
const (
	OpQuestions = "questions"
	OpReference = "reference"
	OpFeedback  = "feedback"
	OpTutor     = "tutor"
	OpPing      = "ping"
)

// GenerationError wraps any failure of a model call or of parsing its reply.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("empty response")

// Config selects and configures a backend.
type Config struct {
	Provider string // "openai" or "gemini"
	BaseURL  string
	APIKey   string
	Model    string
	// RPS limits model calls per second; 0 disables limiting.
	RPS float64
	// TokenBudget caps the material sent for question generation, in tokens.
	TokenBudget int
	Lang        string
}

// DefaultTokenBudget is used when Config.TokenBudget is unset.
const DefaultTokenBudget = 6000

// completion is one request to a backend.
type completion struct {
	System      string
	User        string
	Temperature float32
	JSON        bool
}

type backend interface {
	name() string
	complete(ctx context.Context, c completion) (string, error)
	ping(ctx context.Context) error
	close() error
}

// Client implements Generator on top of a backend.
type Client struct {
	backend backend
	prompts *prompts.Set
	limiter *rate.Limiter
	budget  int
}

var _ Generator = (*Client)(nil)

// New builds a Client for cfg.Provider.
func New(ctx context.Context, cfg Config) (*Client, error) {
	var (
		b   backend
		err error
	)
	switch cfg.Provider {
	case "", "openai":
		b = newOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case "gemini":
		b, err = newGemini(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	return newClient(b, cfg)
}

func newClient(b backend, cfg Config) (*Client, error) {
	ps, err := prompts.Default(cfg.Lang)
	if err != nil {
		return nil, err
	}
	c := &Client{backend: b, prompts: ps, budget: cfg.TokenBudget}
	if c.budget <= 0 {
		c.budget = DefaultTokenBudget
	}
	if cfg.RPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	return c, nil
}

// Close releases the backend's resources.
func (c *Client) Close() error {
	return c.backend.close()
}

func (c *Client) call(ctx context.Context, op string, req completion) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", &GenerationError{Op: op, Err: err}
		}
	}
	start := time.Now()
	out, err := c.backend.complete(ctx, req)
	if err != nil {
		return "", &GenerationError{Op: op, Err: err}
	}
	slog.Debug("llm call", "op", op, "backend", c.backend.name(), "duration", time.Since(start), "chars", len(out))
	if out == "" {
		return "", &GenerationError{Op: op, Err: ErrEmptyResponse}
	}
	return out, nil
}

// GenerateQuestions asks for req.Num questions and parses the numbered list
// in the reply. Fewer questions than requested is not an error.
func (c *Client) GenerateQuestions(ctx context.Context, req QuestionRequest) ([]string, error) {
	prompt, err := c.prompts.Questions(prompts.QuestionData{
		Text:       TruncateTokens(req.Text, c.budget),
		Num:        req.Num,
		Difficulty: req.Difficulty,
		Kind:       req.Kind,
		Style:      req.Style,
		Exclude:    req.Exclude,
	})
	if err != nil {
		return nil, &GenerationError{Op: OpQuestions, Err: err}
	}
	raw, err := c.call(ctx, OpQuestions, completion{User: prompt, Temperature: 0.5})
	if err != nil {
		return nil, err
	}
	qs := ParseQuestions(raw, req.Num)
	if len(qs) == 0 {
		return nil, &GenerationError{Op: OpQuestions, Err: ErrEmptyResponse}
	}
	return qs, nil
}

// Reference asks for a model answer and key points grounded on pages.
func (c *Client) Reference(ctx context.Context, question string, pages []model.ContextPage, difficulty model.Difficulty) (model.Reference, error) {
	system, user, err := c.prompts.Reference(question, pages, difficulty)
	if err != nil {
		return model.Reference{}, &GenerationError{Op: OpReference, Err: err}
	}
	raw, err := c.call(ctx, OpReference, completion{System: system, User: user, Temperature: 0.2, JSON: true})
	if err != nil {
		return model.Reference{}, err
	}
	ref, err := ParseReference(raw)
	if err != nil {
		return model.Reference{}, &GenerationError{Op: OpReference, Err: err}
	}
	return ref, nil
}

// Feedback summarizes strengths and weaknesses over a graded batch.
func (c *Client) Feedback(ctx context.Context, questions []model.Question) (string, error) {
	prompt, err := c.prompts.Feedback(questions)
	if err != nil {
		return "", &GenerationError{Op: OpFeedback, Err: err}
	}
	return c.call(ctx, OpFeedback, completion{User: prompt, Temperature: 0.4})
}

// Tutor answers a free-form student question, optionally with context.
func (c *Client) Tutor(ctx context.Context, question, background string) (string, error) {
	prompt, err := c.prompts.Tutor(question, TruncateTokens(background, c.budget))
	if err != nil {
		return "", &GenerationError{Op: OpTutor, Err: err}
	}
	return c.call(ctx, OpTutor, completion{User: prompt, Temperature: 0.4})
}

// Ping checks that the backend is reachable with the configured key.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.backend.ping(ctx); err != nil {
		return &GenerationError{Op: OpPing, Err: err}
	}
	return nil
}
