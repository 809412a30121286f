package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// StudentAnswer is one response to one question within one session.
// IsCorrect nil means not yet marked (or not auto-markable).
type StudentAnswer struct {
	ID         uuid.UUID       `json:"id"`
	SessionID  uuid.UUID       `json:"session_id"`
	QuestionID uuid.UUID       `json:"question_id"`
	Answer     json.RawMessage `json:"answer"`
	IsCorrect  *bool           `json:"is_correct"`
	Score      *float64        `json:"score"`
	Feedback   *string         `json:"feedback"`
}

// MarkableAnswer is a StudentAnswer joined with the metadata of its question.
type MarkableAnswer struct {
	StudentAnswer
	Section      Section         `json:"section"`
	QuestionType QuestionType    `json:"question_type"`
	Content      json.RawMessage `json:"content,omitempty"`
	AnswerKey    json.RawMessage `json:"answer_key,omitempty"`
}

// AnswerMark is the marking outcome written back for one answer.
type AnswerMark struct {
	AnswerID  uuid.UUID
	IsCorrect *bool
	Score     *float64
	Feedback  *string
}

// ManualScore is an examiner-supplied mark for a subjective answer.
type ManualScore struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	Score      float64   `json:"score" binding:"min=0,max=9"`
	Feedback   *string   `json:"feedback" binding:"omitempty,max=5000"`
}
