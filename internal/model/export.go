package model

import "time"

// ExamExport is the top-level JSON structure for exam result export.
type ExamExport struct {
	ExamID         string          `json:"exam_id"`
	Title          string          `json:"title"`
	ExportedAt     time.Time       `json:"exported_at"`
	NumQuestions   int             `json:"num_questions"`
	NumBonus       int             `json:"num_bonus_questions"`
	PendingAnswers int             `json:"pending_answers"`
	Results        []StudentResult `json:"results"`
}

// StudentResult holds one taker's attempt for export.
type StudentResult struct {
	ResultID    string           `json:"result_id"`
	UserID      string           `json:"user_id"`
	Status      ResultStatus     `json:"status"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Score       int              `json:"score"`
	BonusScore  int              `json:"bonus_score"`
	Questions   []QuestionResult `json:"questions"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	QuestionID    string        `json:"question_id"`
	Type          QuestionType  `json:"type"`
	IsBonus       bool          `json:"is_bonus"`
	Text          string        `json:"text"`
	Selected      []string      `json:"selected"`
	IsCorrect     bool          `json:"is_correct"`
	GradingStatus GradingStatus `json:"grading_status,omitempty"`
	Feedback      string        `json:"feedback,omitempty"`
}
