package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ScheduleExamRequest is the payload for scheduling an exam for a student.
type ScheduleExamRequest struct {
	StudentID        string    `json:"student_id" binding:"required,notblank,max=128"`
	TemplateID       uuid.UUID `json:"template_id" binding:"required"`
	StartAvailableAt time.Time `json:"start_available_at" binding:"required"`
	EndAvailableAt   time.Time `json:"end_available_at" binding:"required,gtefield=StartAvailableAt"`
}

// SubmittedAnswer is one answer inside a submission.
type SubmittedAnswer struct {
	QuestionID uuid.UUID       `json:"question_id" binding:"required"`
	Answer     json.RawMessage `json:"answer"`
}

// SubmitAnswersRequest is the payload for submitting an exam.
type SubmitAnswersRequest struct {
	Answers []SubmittedAnswer `json:"answers" binding:"required,dive"`
}

// MarkSubmissionRequest carries the optional examiner marks.
type MarkSubmissionRequest struct {
	ManualScores []ManualScore `json:"manual_scores" binding:"omitempty,dive"`
}

// SubmissionFilter narrows the admin submission list.
type SubmissionFilter struct {
	Page   int
	Limit  int
	Search string
	Status SessionStatus
}
