package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pavelanni/examgen/internal/model"
)

const questionColumns = `id, exam_id, position, type, variations, is_bonus`

// InsertQuestions stores a batch of questions in one transaction.
func (s *Store) InsertQuestions(ctx context.Context, qs []model.Question) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	insert := s.rebind(`INSERT INTO questions (` + questionColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	for _, q := range qs {
		vars, err := json.Marshal(q.Variations)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insert,
			q.ID, q.ExamID, q.Position, q.Type, string(vars), q.IsBonus); err != nil {
			return fmt.Errorf("insert question %s: %w", q.ID, err)
		}
	}
	return tx.Commit()
}

// ListQuestions returns the questions of an exam in generation order.
func (s *Store) ListQuestions(ctx context.Context, examID string) ([]model.Question, error) {
	rows, err := s.query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE exam_id = ? ORDER BY position, id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(ctx context.Context, id string) (model.Question, error) {
	q, err := scanQuestion(s.queryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Question{}, fmt.Errorf("question %s: %w", id, model.ErrNotFound)
	}
	return q, err
}

// UpdateQuestion rewrites the type and variations of a question.
func (s *Store) UpdateQuestion(ctx context.Context, q model.Question) error {
	vars, err := json.Marshal(q.Variations)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, `UPDATE questions SET type = ?, variations = ? WHERE id = ?`,
		q.Type, string(vars), q.ID)
	if err != nil {
		return err
	}
	return expectOne(res, "question "+q.ID)
}

func scanQuestion(row rowScanner) (model.Question, error) {
	var (
		q    model.Question
		vars string
	)
	if err := row.Scan(&q.ID, &q.ExamID, &q.Position, &q.Type, &vars, &q.IsBonus); err != nil {
		return model.Question{}, err
	}
	if err := json.Unmarshal([]byte(vars), &q.Variations); err != nil {
		return model.Question{}, fmt.Errorf("decode variations of question %s: %w", q.ID, err)
	}
	return q, nil
}
