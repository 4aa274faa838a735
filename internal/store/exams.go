package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pavelanni/examgen/internal/model"
)

const examColumns = `id, title, creator_id, status, access_type, allowed_emails, time_limit, source_ref, created_at`

// CreateExam inserts an exam.
func (s *Store) CreateExam(ctx context.Context, e model.Exam) error {
	emails, err := json.Marshal(nonNil(e.AllowedEmails))
	if err != nil {
		return err
	}
	_, err = s.exec(ctx,
		`INSERT INTO exams (`+examColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.CreatorID, e.Status, e.AccessType, string(emails),
		nullInt(e.TimeLimit), e.SourceRef, toMillis(e.CreatedAt),
	)
	return err
}

// UpdateExam rewrites the mutable exam fields: title, status, sharing and time limit.
func (s *Store) UpdateExam(ctx context.Context, e model.Exam) error {
	emails, err := json.Marshal(nonNil(e.AllowedEmails))
	if err != nil {
		return err
	}
	res, err := s.exec(ctx,
		`UPDATE exams SET title = ?, status = ?, access_type = ?, allowed_emails = ?, time_limit = ? WHERE id = ?`,
		e.Title, e.Status, e.AccessType, string(emails), nullInt(e.TimeLimit), e.ID,
	)
	if err != nil {
		return err
	}
	return expectOne(res, "exam "+e.ID)
}

// GetExam returns an exam by ID.
func (s *Store) GetExam(ctx context.Context, id string) (model.Exam, error) {
	e, err := scanExam(s.queryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Exam{}, fmt.Errorf("exam %s: %w", id, model.ErrNotFound)
	}
	return e, err
}

// ListExamsByCreator returns the creator's exams, newest first.
func (s *Store) ListExamsByCreator(ctx context.Context, creatorID string) ([]model.Exam, error) {
	rows, err := s.query(ctx,
		`SELECT `+examColumns+` FROM exams WHERE creator_id = ? ORDER BY created_at DESC`, creatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// DeleteExam removes an exam together with its questions and results.
func (s *Store) DeleteExam(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM results WHERE exam_id = ?`,
		`DELETE FROM questions WHERE exam_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, s.rebind(q), id); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM exams WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if err := expectOne(res, "exam "+id); err != nil {
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExam(row rowScanner) (model.Exam, error) {
	var (
		e         model.Exam
		emails    string
		timeLimit sql.NullInt64
		created   int64
	)
	err := row.Scan(&e.ID, &e.Title, &e.CreatorID, &e.Status, &e.AccessType, &emails,
		&timeLimit, &e.SourceRef, &created)
	if err != nil {
		return model.Exam{}, err
	}
	if err := json.Unmarshal([]byte(emails), &e.AllowedEmails); err != nil {
		return model.Exam{}, fmt.Errorf("decode allowed emails of exam %s: %w", e.ID, err)
	}
	if timeLimit.Valid {
		v := int(timeLimit.Int64)
		e.TimeLimit = &v
	}
	e.CreatedAt = fromMillis(created)
	return e, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return nil
}
