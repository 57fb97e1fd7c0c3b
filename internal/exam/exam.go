// Package exam is the application service: it turns uploaded PDFs into
// question batches, grades submitted answers and builds the result and
// history views.
package exam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/examgen/internal/llm"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/pdftext"
	"github.com/pavelanni/examgen/internal/scoring"
	"github.com/pavelanni/examgen/internal/store"
)

var (
	// ErrPendingApproval is returned for accounts an admin has not approved yet.
	ErrPendingApproval = errors.New("account is pending approval")
	// ErrQuotaExceeded is returned when a free account has used its quota.
	ErrQuotaExceeded = errors.New("free quota exhausted")
	// ErrNoFiles is returned when a generation request carries no PDF.
	ErrNoFiles = errors.New("no PDF uploaded")
	// ErrUnreadable is returned when none of the uploaded PDFs has text.
	ErrUnreadable = errors.New("no readable text in the uploaded PDFs")
	// ErrNotFound is returned for documents and batches the user does not own.
	ErrNotFound = store.ErrNotFound
)

const (
	// ReferencePages is how many leading pages are offered to reference generation.
	ReferencePages = 10
	// PreviewRunes is the stored document preview length.
	PreviewRunes = 800

	defaultConcurrency = 4
	defaultCacheSize   = 64
)

// Store is the persistence the service needs.
type Store interface {
	CreateDocument(ctx context.Context, d model.Document, pages []model.ContextPage) (int64, error)
	GetDocument(ctx context.Context, userID, id int64) (model.Document, error)
	ListDocumentsByUser(ctx context.Context, userID int64) ([]model.Document, error)
	GetDocumentPages(ctx context.Context, documentID int64) ([]model.ContextPage, error)
	DeleteDocument(ctx context.Context, userID, id int64) error
	InsertQuestion(ctx context.Context, q model.Question) (int64, error)
	ListQuestionsByBatch(ctx context.Context, userID int64, batchID string) ([]model.Question, error)
	ListQuestionsByDocument(ctx context.Context, documentID int64) ([]model.Question, error)
	ListPreviousPrompts(ctx context.Context, documentID int64) ([]string, error)
	SaveGrade(ctx context.Context, id int64, answer string, score float64, meta model.QuestionMetadata) error
	DeleteBatch(ctx context.Context, userID int64, batchID string) error
	AddQuotaUsed(ctx context.Context, userID int64, n int) error
}

// Config tunes the service.
type Config struct {
	// Concurrency bounds parallel reference generation per batch.
	Concurrency int
	// PageCacheSize is the number of documents whose pages stay in memory.
	PageCacheSize int
}

// Service implements the exam workflow.
type Service struct {
	store       Store
	gen         llm.Generator
	metrics     *Metrics
	pages       *lru.Cache[int64, []model.ContextPage]
	concurrency int
}

// New creates a Service. metrics may be nil.
func New(st Store, gen llm.Generator, metrics *Metrics, cfg Config) (*Service, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.PageCacheSize <= 0 {
		cfg.PageCacheSize = defaultCacheSize
	}
	cache, err := lru.New[int64, []model.ContextPage](cfg.PageCacheSize)
	if err != nil {
		return nil, fmt.Errorf("page cache: %w", err)
	}
	return &Service{
		store:       st,
		gen:         gen,
		metrics:     metrics,
		pages:       cache,
		concurrency: cfg.Concurrency,
	}, nil
}

// CanGenerate reports why u may not generate questions, or nil.
func CanGenerate(u *model.User) error {
	switch {
	case u.Plan == model.PlanPending:
		return ErrPendingApproval
	case u.Plan == model.PlanFree && u.QuotaUsed >= u.QuotaTotal:
		return ErrQuotaExceeded
	}
	return nil
}

// Generate extracts the uploaded PDFs, stores them as a document and
// generates the first batch of questions. It returns the batch ID.
func (s *Service) Generate(ctx context.Context, u *model.User, req model.GenerateRequest) (string, error) {
	if err := CanGenerate(u); err != nil {
		return "", err
	}
	if len(req.Files) == 0 {
		return "", ErrNoFiles
	}
	req.Normalize()

	pages, skipped := pdftext.ExtractFiles(req.Files)
	for _, err := range skipped {
		slog.Warn("skipping unreadable upload", "user_id", u.ID, "error", err)
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("%w: %w", ErrUnreadable, errors.Join(skipped...))
	}

	names := make([]string, 0, len(req.Files))
	for _, f := range req.Files {
		names = append(names, f.Name)
	}
	full := pdftext.JoinText(pages, pdftext.DefaultJoinLimit)
	doc := model.Document{
		UserID:      u.ID,
		Filename:    strings.Join(names, ", "),
		TextPreview: pdftext.Preview(pages, PreviewRunes),
		FullText:    full,
	}
	id, err := s.store.CreateDocument(ctx, doc, pages)
	if err != nil {
		return "", fmt.Errorf("save document: %w", err)
	}
	doc.ID = id
	s.pages.Add(id, pages)
	slog.Info("document stored", "user_id", u.ID, "document_id", id, "files", len(req.Files), "pages", len(pages))

	return s.generateBatch(ctx, u, doc, pages, req, nil)
}

// Regenerate creates a new batch for an existing document, avoiding the
// questions already asked for it.
func (s *Service) Regenerate(ctx context.Context, u *model.User, documentID int64, req model.GenerateRequest) (string, error) {
	if err := CanGenerate(u); err != nil {
		return "", err
	}
	req.Normalize()
	doc, err := s.store.GetDocument(ctx, u.ID, documentID)
	if err != nil {
		return "", err
	}
	pages, err := s.documentPages(ctx, documentID)
	if err != nil {
		return "", err
	}
	exclude, err := s.store.ListPreviousPrompts(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("previous prompts: %w", err)
	}
	return s.generateBatch(ctx, u, doc, pages, req, exclude)
}

func (s *Service) generateBatch(ctx context.Context, u *model.User, doc model.Document, pages []model.ContextPage, req model.GenerateRequest, exclude []string) (string, error) {
	start := time.Now()
	prompts, err := s.gen.GenerateQuestions(ctx, llm.QuestionRequest{
		Text:       doc.FullText,
		Num:        req.NumQuestions,
		Difficulty: req.Difficulty,
		Kind:       req.Kind,
		Style:      req.Style,
		Exclude:    exclude,
	})
	if err != nil {
		s.metrics.llmError(llm.OpQuestions)
		return "", err
	}

	batchID := NewBatchID()
	metas := make([]model.QuestionMetadata, len(prompts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, prompt := range prompts {
		g.Go(func() error {
			metas[i] = s.buildMetadata(gctx, model.QuestionMetadata{BatchID: batchID}, prompt, pages, req.Difficulty)
			return gctx.Err()
		})
	}
	// Model failures are soft and leave an empty reference; only
	// cancellation aborts the batch.
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("build references: %w", err)
	}

	for i, prompt := range prompts {
		if _, err := s.store.InsertQuestion(ctx, model.Question{
			UserID:     u.ID,
			DocumentID: doc.ID,
			PromptText: prompt,
			Kind:       req.Kind,
			Difficulty: req.Difficulty,
			Meta:       metas[i],
		}); err != nil {
			return "", fmt.Errorf("save question %d: %w", i+1, err)
		}
	}
	if u.Plan == model.PlanFree {
		if err := s.store.AddQuotaUsed(ctx, u.ID, len(prompts)); err != nil {
			return "", fmt.Errorf("update quota: %w", err)
		}
		u.QuotaUsed += len(prompts)
	}

	s.metrics.generated(len(prompts), time.Since(start))
	slog.Info("batch generated", "user_id", u.ID, "document_id", doc.ID, "batch_id", batchID,
		"questions", len(prompts), "duration", time.Since(start))
	return batchID, nil
}

// buildMetadata asks for a reference answer and attributes the question to
// a page. Failures leave the reference empty so grading can retry later.
func (s *Service) buildMetadata(ctx context.Context, meta model.QuestionMetadata, prompt string, pages []model.ContextPage, difficulty model.Difficulty) model.QuestionMetadata {
	ref, err := s.gen.Reference(ctx, prompt, pages[:min(len(pages), ReferencePages)], difficulty)
	if err != nil {
		s.metrics.llmError(llm.OpReference)
		slog.Warn("reference generation failed", "question", prompt, "error", err)
		ref = model.Reference{}
	}
	var src *model.SourceAttribution
	if attr, err := scoring.BestSourceContext(ctx, prompt, ref.ModelAnswer, pages); err != nil {
		slog.Warn("source attribution failed", "question", prompt, "error", err)
	} else {
		src = &attr
	}
	return meta.WithReference(ref, src)
}

// documentPages returns a document's pages from the cache or the store.
func (s *Service) documentPages(ctx context.Context, documentID int64) ([]model.ContextPage, error) {
	if pages, ok := s.pages.Get(documentID); ok {
		return pages, nil
	}
	pages, err := s.store.GetDocumentPages(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load pages of document %d: %w", documentID, err)
	}
	s.pages.Add(documentID, pages)
	return pages, nil
}

// NewBatchID returns a short random batch identifier.
func NewBatchID() string {
	return uuid.NewString()[:8]
}
