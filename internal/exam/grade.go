package exam

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/pavelanni/examgen/internal/llm"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/scoring"
)

// Batch returns the questions of one batch for answering.
func (s *Service) Batch(ctx context.Context, u *model.User, batchID string) (model.BatchView, error) {
	qs, err := s.batch(ctx, u, batchID)
	if err != nil {
		return model.BatchView{}, err
	}
	return model.BatchView{BatchID: batchID, Questions: qs, Average: scoring.AverageScore(qs)}, nil
}

func (s *Service) batch(ctx context.Context, u *model.User, batchID string) ([]model.Question, error) {
	qs, err := s.store.ListQuestionsByBatch(ctx, u.ID, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch %s: %w", batchID, err)
	}
	if len(qs) == 0 {
		return nil, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	return qs, nil
}

// Grade scores the submitted answers of a batch, keyed by question ID.
// Questions without an entry are graded as blank. References missing since
// generation are rebuilt first. Nothing is saved unless every answer can be
// scored.
func (s *Service) Grade(ctx context.Context, u *model.User, batchID string, answers map[int64]string) error {
	qs, err := s.batch(ctx, u, batchID)
	if err != nil {
		return err
	}
	for _, q := range qs {
		if !utf8.ValidString(answers[q.ID]) {
			return fmt.Errorf("%w: answer to question %d is not valid UTF-8 text", scoring.ErrInvalidArgument, q.ID)
		}
	}

	type graded struct {
		answer string
		total  float64
		meta   model.QuestionMetadata
	}
	results := make([]graded, len(qs))
	for i, q := range qs {
		meta := q.Meta
		if meta.NeedsReference() {
			meta = s.rebuildReference(ctx, q)
		}

		answer := strings.TrimSpace(answers[q.ID])
		var total float64
		if answer != "" {
			res, err := scoring.Score(answer, meta.ModelAnswer, meta.KeyPoints)
			if err != nil {
				return fmt.Errorf("grade question %d: %w", q.ID, err)
			}
			total = float64(res.Total)
		}
		results[i] = graded{answer: answer, total: total, meta: meta}
	}

	for i, q := range qs {
		g := results[i]
		if err := s.store.SaveGrade(ctx, q.ID, g.answer, g.total, g.meta); err != nil {
			return fmt.Errorf("save grade of question %d: %w", q.ID, err)
		}
		s.metrics.graded(g.total)
	}
	slog.Info("batch graded", "user_id", u.ID, "batch_id", batchID, "questions", len(qs))
	return nil
}

func (s *Service) rebuildReference(ctx context.Context, q model.Question) model.QuestionMetadata {
	pages, err := s.documentPages(ctx, q.DocumentID)
	if err != nil {
		slog.Warn("cannot rebuild reference", "question_id", q.ID, "error", err)
		return q.Meta
	}
	slog.Debug("rebuilding reference", "question_id", q.ID)
	return s.buildMetadata(ctx, q.Meta, q.PromptText, pages, q.Difficulty)
}

// Results builds the results page of a graded batch. withFeedback asks the
// model for an overall summary; its failure only leaves Feedback empty.
func (s *Service) Results(ctx context.Context, u *model.User, batchID string, withFeedback bool) (model.ResultsView, error) {
	qs, err := s.batch(ctx, u, batchID)
	if err != nil {
		return model.ResultsView{}, err
	}
	view := model.ResultsView{BatchID: batchID, Stats: scoring.PDFStats(qs)}
	for i, q := range qs {
		view.Questions = append(view.Questions, model.QuestionView{Index: i + 1, Question: q})
	}
	if withFeedback {
		fb, err := s.gen.Feedback(ctx, qs)
		if err != nil {
			s.metrics.llmError(llm.OpFeedback)
			slog.Warn("feedback generation failed", "batch_id", batchID, "error", err)
		}
		view.Feedback = fb
	}
	return view, nil
}

// History lists the user's documents newest first, each with its batches
// in creation order, plus the per-file weakness table.
func (s *Service) History(ctx context.Context, u *model.User) (model.HistoryView, error) {
	docs, err := s.store.ListDocumentsByUser(ctx, u.ID)
	if err != nil {
		return model.HistoryView{}, fmt.Errorf("list documents: %w", err)
	}
	var (
		view model.HistoryView
		all  []model.Question
	)
	for _, d := range docs {
		qs, err := s.store.ListQuestionsByDocument(ctx, d.ID)
		if err != nil {
			return model.HistoryView{}, fmt.Errorf("list questions of document %d: %w", d.ID, err)
		}
		all = append(all, qs...)
		view.Documents = append(view.Documents, model.DocumentHistory{
			Document:      d,
			QuestionCount: len(qs),
			Average:       scoring.AverageScore(qs),
			Batches:       groupBatches(qs),
		})
	}
	view.Weakness = scoring.WeaknessByPDF(all)
	return view, nil
}

func groupBatches(qs []model.Question) []model.BatchView {
	var batches []model.BatchView
	index := make(map[string]int)
	for _, q := range qs {
		id := q.Meta.BatchID
		i, ok := index[id]
		if !ok {
			i = len(batches)
			index[id] = i
			batches = append(batches, model.BatchView{BatchID: id})
		}
		batches[i].Questions = append(batches[i].Questions, q)
	}
	for i := range batches {
		batches[i].Average = scoring.AverageScore(batches[i].Questions)
	}
	return batches
}

// DeleteDocument removes a document with all of its batches.
func (s *Service) DeleteDocument(ctx context.Context, u *model.User, documentID int64) error {
	if err := s.store.DeleteDocument(ctx, u.ID, documentID); err != nil {
		return err
	}
	s.pages.Remove(documentID)
	slog.Info("document deleted", "user_id", u.ID, "document_id", documentID)
	return nil
}

// DeleteBatch removes one batch of questions.
func (s *Service) DeleteBatch(ctx context.Context, u *model.User, batchID string) error {
	if err := s.store.DeleteBatch(ctx, u.ID, batchID); err != nil {
		return err
	}
	slog.Info("batch deleted", "user_id", u.ID, "batch_id", batchID)
	return nil
}

// Ask answers a tutor question. When batchID is set, the batch's document
// preview is passed along as context.
func (s *Service) Ask(ctx context.Context, u *model.User, question, batchID string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: empty question", scoring.ErrInvalidArgument)
	}
	var background string
	if batchID != "" {
		if qs, err := s.store.ListQuestionsByBatch(ctx, u.ID, batchID); err == nil && len(qs) > 0 {
			if doc, err := s.store.GetDocument(ctx, u.ID, qs[0].DocumentID); err == nil {
				background = doc.TextPreview
			}
		}
	}
	answer, err := s.gen.Tutor(ctx, question, background)
	if err != nil {
		s.metrics.llmError(llm.OpTutor)
		return "", err
	}
	return answer, nil
}
