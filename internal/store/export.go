package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/examgen/internal/model"
)

// ExportUserHistory builds the export record of one user.
func (s *Store) ExportUserHistory(ctx context.Context, userID int64) (model.UserHistory, error) {
	u, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return model.UserHistory{}, fmt.Errorf("get user %d: %w", userID, err)
	}
	if u == nil {
		return model.UserHistory{}, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return s.exportUser(ctx, *u)
}

// ExportAll builds export records for every user.
func (s *Store) ExportAll(ctx context.Context) (model.HistoryExport, error) {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return model.HistoryExport{}, fmt.Errorf("list users: %w", err)
	}
	out := model.HistoryExport{ExportedAt: time.Now().UTC()}
	for _, u := range users {
		h, err := s.exportUser(ctx, u)
		if err != nil {
			return model.HistoryExport{}, err
		}
		out.Users = append(out.Users, h)
	}
	return out, nil
}

func (s *Store) exportUser(ctx context.Context, u model.User) (model.UserHistory, error) {
	h := model.UserHistory{
		Email:     u.Email,
		Name:      u.Name,
		School:    u.School,
		Plan:      u.Plan,
		QuotaUsed: u.QuotaUsed,
	}
	docs, err := s.ListDocumentsByUser(ctx, u.ID)
	if err != nil {
		return h, fmt.Errorf("list documents of %s: %w", u.Email, err)
	}
	for _, d := range docs {
		qs, err := s.ListQuestionsByDocument(ctx, d.ID)
		if err != nil {
			return h, fmt.Errorf("list questions of document %d: %w", d.ID, err)
		}
		de := model.DocumentExport{Filename: d.Filename, CreatedAt: d.CreatedAt}
		for _, q := range qs {
			qe := model.QuestionExport{
				BatchID:     q.Meta.BatchID,
				Prompt:      q.PromptText,
				Kind:        q.Kind,
				Difficulty:  q.Difficulty,
				Answer:      q.AnswerText,
				Score:       q.Score,
				ModelAnswer: q.Meta.ModelAnswer,
				KeyPoints:   q.Meta.KeyPoints,
			}
			if src := q.Meta.Source; src != nil && src.Found() {
				qe.Source = src.Name()
				qe.SourcePage = src.Page()
			}
			de.Questions = append(de.Questions, qe)
		}
		h.Documents = append(h.Documents, de)
	}
	return h, nil
}
