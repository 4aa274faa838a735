package store

import (
	"context"

	"github.com/pavelanni/examgen/internal/model"
)

// InsertAILog records one AI collaborator call.
func (s *Store) InsertAILog(ctx context.Context, l model.AILog) error {
	_, err := s.exec(ctx,
		`INSERT INTO ai_logs (id, exam_id, user_id, kind, summary, response, error, requested_at, responded_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.ExamID, l.UserID, l.Kind, l.Summary, l.Response, l.Error,
		toMillis(l.RequestedAt), toMillis(l.RespondedAt), l.DurationMS,
	)
	return err
}

// ListAILogs returns the AI calls recorded for an exam, oldest first.
func (s *Store) ListAILogs(ctx context.Context, examID string) ([]model.AILog, error) {
	rows, err := s.query(ctx,
		`SELECT id, exam_id, user_id, kind, summary, response, error, requested_at, responded_at, duration_ms
		 FROM ai_logs WHERE exam_id = ? ORDER BY requested_at, id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []model.AILog
	for rows.Next() {
		var (
			l              model.AILog
			req, responded int64
		)
		if err := rows.Scan(&l.ID, &l.ExamID, &l.UserID, &l.Kind, &l.Summary, &l.Response, &l.Error,
			&req, &responded, &l.DurationMS); err != nil {
			return nil, err
		}
		l.RequestedAt = fromMillis(req)
		l.RespondedAt = fromMillis(responded)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
