package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/examgen/internal/model"
)

const resultColumns = `id, exam_id, user_id, status, start_time, completed_at, score, bonus_score,
	total_questions, total_bonus_questions, answers, version`

// CreateResult inserts a new attempt. It returns model.ErrDuplicate when the
// user already has a result for the exam.
func (s *Store) CreateResult(ctx context.Context, r model.Result) error {
	answers, err := encodeAnswers(r.Answers)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx,
		`INSERT INTO results (`+resultColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (exam_id, user_id) DO NOTHING`,
		r.ID, r.ExamID, r.UserID, r.Status, toMillis(r.StartTime), nullMillis(r.CompletedAt),
		r.Score, r.BonusScore, r.TotalQuestions, r.TotalBonusQuestions, answers, r.Version,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("result for user %s on exam %s: %w", r.UserID, r.ExamID, model.ErrDuplicate)
	}
	return nil
}

// GetResult returns a result by ID.
func (s *Store) GetResult(ctx context.Context, id string) (model.Result, error) {
	r, err := scanResult(s.queryRow(ctx, `SELECT `+resultColumns+` FROM results WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Result{}, fmt.Errorf("result %s: %w", id, model.ErrNotFound)
	}
	return r, err
}

// FindResult returns the result of a user on an exam.
func (s *Store) FindResult(ctx context.Context, examID, userID string) (model.Result, error) {
	r, err := scanResult(s.queryRow(ctx,
		`SELECT `+resultColumns+` FROM results WHERE exam_id = ? AND user_id = ?`, examID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Result{}, fmt.Errorf("result for user %s on exam %s: %w", userID, examID, model.ErrNotFound)
	}
	return r, err
}

// ListResults returns all results of an exam, most recently finished first.
func (s *Store) ListResults(ctx context.Context, examID string) ([]model.Result, error) {
	return s.listResults(ctx,
		`SELECT `+resultColumns+` FROM results WHERE exam_id = ?
		 ORDER BY COALESCE(completed_at, start_time) DESC, id`, examID)
}

// ListResultsByCreator returns the results of every exam owned by creatorID.
func (s *Store) ListResultsByCreator(ctx context.Context, creatorID string) ([]model.Result, error) {
	return s.listResults(ctx,
		`SELECT r.id, r.exam_id, r.user_id, r.status, r.start_time, r.completed_at, r.score, r.bonus_score,
			r.total_questions, r.total_bonus_questions, r.answers, r.version
		 FROM results r JOIN exams e ON e.id = r.exam_id
		 WHERE e.creator_id = ?
		 ORDER BY COALESCE(r.completed_at, r.start_time) DESC, r.id`, creatorID)
}

func (s *Store) listResults(ctx context.Context, query string, args ...any) ([]model.Result, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// CompleteResult moves an in-progress result to completed, storing its
// answers, scores and totals. It returns model.ErrConflict when the result is
// no longer in progress, so a result is completed at most once.
func (s *Store) CompleteResult(ctx context.Context, r model.Result) error {
	answers, err := encodeAnswers(r.Answers)
	if err != nil {
		return err
	}
	completed := time.Now()
	if r.CompletedAt != nil {
		completed = *r.CompletedAt
	}
	res, err := s.exec(ctx,
		`UPDATE results SET status = ?, completed_at = ?, score = ?, bonus_score = ?,
			total_questions = ?, total_bonus_questions = ?, answers = ?, version = version + 1
		 WHERE id = ? AND status = ?`,
		model.ResultCompleted, toMillis(completed), r.Score, r.BonusScore,
		r.TotalQuestions, r.TotalBonusQuestions, answers,
		r.ID, model.ResultInProgress,
	)
	if err != nil {
		return err
	}
	return expectChanged(res, "complete result "+r.ID)
}

// SaveGrades persists re-graded answers and scores if the stored version
// still equals r.Version. Otherwise it returns model.ErrConflict.
func (s *Store) SaveGrades(ctx context.Context, r model.Result) error {
	answers, err := encodeAnswers(r.Answers)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx,
		`UPDATE results SET answers = ?, score = ?, bonus_score = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		answers, r.Score, r.BonusScore, r.ID, r.Version,
	)
	if err != nil {
		return err
	}
	return expectChanged(res, "save grades of result "+r.ID)
}

// DeleteResult removes a result.
func (s *Store) DeleteResult(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM results WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res, "result "+id)
}

func scanResult(row rowScanner) (model.Result, error) {
	var (
		r         model.Result
		start     int64
		completed sql.NullInt64
		answers   string
	)
	err := row.Scan(&r.ID, &r.ExamID, &r.UserID, &r.Status, &start, &completed,
		&r.Score, &r.BonusScore, &r.TotalQuestions, &r.TotalBonusQuestions, &answers, &r.Version)
	if err != nil {
		return model.Result{}, err
	}
	r.StartTime = fromMillis(start)
	if completed.Valid {
		t := fromMillis(completed.Int64)
		r.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
		return model.Result{}, fmt.Errorf("decode answers of result %s: %w", r.ID, err)
	}
	return r, nil
}

func encodeAnswers(answers []model.Answer) (string, error) {
	if answers == nil {
		answers = []model.Answer{}
	}
	b, err := json.Marshal(answers)
	if err != nil {
		return "", fmt.Errorf("encode answers: %w", err)
	}
	return string(b), nil
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func expectChanged(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, model.ErrConflict)
	}
	return nil
}
