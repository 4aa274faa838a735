package model

import (
	"context"
	"strings"
	"time"
)

// Actor is the authenticated identity performing an operation.
type Actor struct {
	ID    string
	Email string
}

type actorCtxKey struct{}

// ContextWithActor stores the authenticated actor in the request context.
func ContextWithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, a)
}

// ActorFromContext retrieves the authenticated actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorCtxKey{}).(Actor)
	return a, ok
}

// ExamStatus is the generation state of an exam.
type ExamStatus string

const (
	ExamProcessing ExamStatus = "processing"
	ExamReady      ExamStatus = "ready"
	ExamFailed     ExamStatus = "failed"
)

// AccessType controls who may open an exam besides its creator.
type AccessType string

const (
	AccessPrivate AccessType = "private"
	AccessPublic  AccessType = "public"
)

// QuestionType is the answer format of a question.
type QuestionType string

const (
	QuestionSingle QuestionType = "single"
	QuestionMulti  QuestionType = "multi"
	QuestionText   QuestionType = "text"
)

// ParseQuestionType normalizes a type name, accepting the generator's
// "Radio" and "MultiChoice" spellings. ok is false for unknown names.
func ParseQuestionType(s string) (QuestionType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single", "single-select", "radio":
		return QuestionSingle, true
	case "multi", "multi-select", "multichoice", "multiple":
		return QuestionMulti, true
	case "text", "free-text":
		return QuestionText, true
	}
	return "", false
}

// Objective reports whether answers of this type are graded at submit time.
func (t QuestionType) Objective() bool {
	return t == QuestionSingle || t == QuestionMulti
}

// ResultStatus is the lifecycle state of an attempt.
type ResultStatus string

const (
	ResultInProgress ResultStatus = "in-progress"
	ResultCompleted  ResultStatus = "completed"
)

// GradingStatus tracks review progress of a text answer.
type GradingStatus string

const (
	GradingPending GradingStatus = "pending"
	GradingAI      GradingStatus = "ai-graded"
	GradingManual  GradingStatus = "manual-graded"
)

// Exam is a generated quiz owned by its creator.
type Exam struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	CreatorID     string     `json:"creator_id"`
	Status        ExamStatus `json:"status"`
	AccessType    AccessType `json:"access_type"`
	AllowedEmails []string   `json:"allowed_emails"`
	TimeLimit     *int       `json:"time_limit"` // minutes; nil means unlimited
	SourceRef     string     `json:"source_ref,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Variation is one interchangeable phrasing of a question.
type Variation struct {
	Text           string   `json:"text" yaml:"text"`
	Options        []string `json:"options" yaml:"options"`
	CorrectAnswers []string `json:"correct_answers" yaml:"correct_answers"`
}

// Question belongs to one exam and holds at least one variation.
type Question struct {
	ID         string       `json:"id"`
	ExamID     string       `json:"exam_id"`
	Type       QuestionType `json:"type"`
	Variations []Variation  `json:"variations"`
	IsBonus    bool         `json:"is_bonus"`
	Position   int          `json:"position"`
}

// Answer is one graded response embedded in a Result. QuestionType and
// IsBonus are snapshots taken at submission.
type Answer struct {
	QuestionID      string        `json:"question_id"`
	QuestionType    QuestionType  `json:"question_type"`
	IsBonus         bool          `json:"is_bonus"`
	SelectedOptions []string      `json:"selected_options"`
	IsCorrect       bool          `json:"is_correct"`
	GradingStatus   GradingStatus `json:"grading_status,omitempty"`
	AIFeedback      string        `json:"ai_feedback,omitempty"`
}

// Result is the single attempt record of one user at one exam.
type Result struct {
	ID                  string       `json:"id"`
	ExamID              string       `json:"exam_id"`
	UserID              string       `json:"user_id"`
	Status              ResultStatus `json:"status"`
	StartTime           time.Time    `json:"start_time"`
	CompletedAt         *time.Time   `json:"completed_at,omitempty"`
	Score               int          `json:"score"`
	BonusScore          int          `json:"bonus_score"`
	TotalQuestions      int          `json:"total_questions"`
	TotalBonusQuestions int          `json:"total_bonus_questions"`
	Answers             []Answer     `json:"answers"`
	Version             int64        `json:"version"`
}

// AnswerFor returns the index of the answer for questionID, or -1.
func (r Result) AnswerFor(questionID string) int {
	for i, a := range r.Answers {
		if a.QuestionID == questionID {
			return i
		}
	}
	return -1
}

// AILogKind labels the collaborator call recorded in an AILog.
type AILogKind string

const (
	AILogGenerate AILogKind = "generate"
	AILogGrade    AILogKind = "grade"
)

// AILog records one call to an AI collaborator.
type AILog struct {
	ID          string    `json:"id"`
	ExamID      string    `json:"exam_id"`
	UserID      string    `json:"user_id"`
	Kind        AILogKind `json:"kind"`
	Summary     string    `json:"summary"`
	Response    string    `json:"response"`
	Error       string    `json:"error,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
	RespondedAt time.Time `json:"responded_at"`
	DurationMS  int64     `json:"duration_ms"`
}

// BonusSource tells the generator where bonus questions may come from.
type BonusSource string

const (
	BonusFromFile      BonusSource = "file"
	BonusFromInference BonusSource = "inference"
	BonusFromExternal  BonusSource = "external"
)

// BonusConfig describes the optional bonus section of a generated exam.
type BonusConfig struct {
	Enabled    bool        `json:"enabled" yaml:"enabled"`
	Count      int         `json:"count" yaml:"count"`
	Difficulty string      `json:"difficulty" yaml:"difficulty"`
	Source     BonusSource `json:"source" yaml:"source"`
}

// GenerationConfig holds the recognized question-generation options.
type GenerationConfig struct {
	Difficulty   string               `json:"difficulty" yaml:"difficulty"`
	ManualCounts bool                 `json:"manual_counts" yaml:"manual_counts"`
	Distribution map[QuestionType]int `json:"distribution,omitempty" yaml:"distribution,omitempty"`
	Bonus        *BonusConfig         `json:"bonus,omitempty" yaml:"bonus,omitempty"`
}

// BonusEnabled reports whether bonus questions were requested.
func (c GenerationConfig) BonusEnabled() bool {
	return c.Bonus != nil && c.Bonus.Enabled && c.Bonus.Count > 0
}

// QuestionTemplate is a generated question before ingestion. Type is kept as
// the raw string the generator produced.
type QuestionTemplate struct {
	Type       string      `json:"type" yaml:"type"`
	Variations []Variation `json:"variations" yaml:"variations"`
}

// GeneratedQuestions is the output of a question generator.
type GeneratedQuestions struct {
	Questions      []QuestionTemplate `json:"questions" yaml:"questions"`
	BonusQuestions []QuestionTemplate `json:"bonus_questions" yaml:"bonus_questions"`
}

// GradingItem is one text answer sent for AI evaluation.
type GradingItem struct {
	ID           string `json:"id"`
	QuestionText string `json:"questionText"`
	Guideline    string `json:"guideline"`
	AnswerText   string `json:"answerText"`
}

// GradingVerdict is the AI's decision on one GradingItem.
type GradingVerdict struct {
	ID        string `json:"id"`
	IsCorrect bool   `json:"isCorrect"`
	Feedback  string `json:"feedback"`
}
