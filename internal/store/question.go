package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pavelanni/examgen/internal/model"
)

const questionColumns = `id, user_id, document_id, prompt_text, answer_text, kind, difficulty, score, meta_json, created_at`

func scanQuestion(row interface{ Scan(...any) error }) (model.Question, error) {
	var (
		q     model.Question
		score sql.NullFloat64
		meta  string
	)
	if err := row.Scan(&q.ID, &q.UserID, &q.DocumentID, &q.PromptText, &q.AnswerText, &q.Kind, &q.Difficulty, &score, &meta, &q.CreatedAt); err != nil {
		return q, err
	}
	if score.Valid {
		q.Score = &score.Float64
	}
	m, err := model.UnmarshalMetadata(meta)
	if err != nil {
		return q, fmt.Errorf("question %d: %w", q.ID, err)
	}
	q.Meta = m
	return q, nil
}

func (s *Store) queryQuestions(ctx context.Context, query string, args ...any) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var qs []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		qs = append(qs, q)
	}
	return qs, rows.Err()
}

// InsertQuestion stores a generated question. The batch ID is taken from q.Meta.
func (s *Store) InsertQuestion(ctx context.Context, q model.Question) (int64, error) {
	meta, err := model.MarshalMetadata(q.Meta)
	if err != nil {
		return 0, err
	}
	var score sql.NullFloat64
	if q.Score != nil {
		score = sql.NullFloat64{Float64: *q.Score, Valid: true}
	}
	var id int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO questions (user_id, document_id, batch_id, prompt_text, answer_text, kind, difficulty, score, meta_json, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		q.UserID, q.DocumentID, q.Meta.BatchID, q.PromptText, q.AnswerText, q.Kind, q.Difficulty, score, meta, now(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert question: %w", err)
	}
	return id, nil
}

// ListQuestionsByBatch returns one batch in creation order.
func (s *Store) ListQuestionsByBatch(ctx context.Context, userID int64, batchID string) ([]model.Question, error) {
	return s.queryQuestions(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE user_id = $1 AND batch_id = $2 ORDER BY id`, userID, batchID)
}

// ListQuestionsByDocument returns every question of a document in creation order.
func (s *Store) ListQuestionsByDocument(ctx context.Context, documentID int64) ([]model.Question, error) {
	return s.queryQuestions(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE document_id = $1 ORDER BY id`, documentID)
}

// SaveGrade records the answer, its score and the possibly rebuilt metadata.
func (s *Store) SaveGrade(ctx context.Context, id int64, answer string, score float64, meta model.QuestionMetadata) error {
	raw, err := model.MarshalMetadata(meta)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET answer_text = $1, score = $2, meta_json = $3 WHERE id = $4`,
		answer, score, raw, id)
	if err != nil {
		return err
	}
	return expectOne(res, "question", id)
}

// DeleteBatch removes one batch of a user's questions.
func (s *Store) DeleteBatch(ctx context.Context, userID int64, batchID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE user_id = $1 AND batch_id = $2`, userID, batchID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	return nil
}

// ListPreviousPrompts returns the distinct question texts already asked for a document.
func (s *Store) ListPreviousPrompts(ctx context.Context, documentID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT prompt_text FROM questions WHERE document_id = $1 ORDER BY id`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seen := make(map[string]bool)
	var prompts []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		if !seen[p] {
			seen[p] = true
			prompts = append(prompts, p)
		}
	}
	return prompts, rows.Err()
}
