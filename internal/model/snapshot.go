package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NumberedQuestion is a template question with its display number range.
// Both bounds are nil for unnumbered items (instructions, images).
type NumberedQuestion struct {
	TemplateQuestion
	DisplayNumberStart *int `json:"display_number_start"`
	DisplayNumberEnd   *int `json:"display_number_end"`
}

// SessionSnapshot is returned by start and resume.
type SessionSnapshot struct {
	SessionID        uuid.UUID          `json:"scheduled_exam_id"`
	Title            string             `json:"title"`
	AudioFiles       json.RawMessage    `json:"audio_files"`
	SectionDurations *SectionDurations  `json:"section_durations"`
	Questions        []NumberedQuestion `json:"questions"`
	StartedAt        time.Time          `json:"started_at"`
	Deadline         *time.Time         `json:"deadline,omitempty"`
	RemainingSeconds *int64             `json:"remaining_seconds,omitempty"`
}

// SubmitAck acknowledges a submission.
type SubmitAck struct {
	Status SessionStatus `json:"status"`
}

// SubmissionDetail is the admin view of a session with its answers.
type SubmissionDetail struct {
	SessionSummary
	Answers []MarkableAnswer `json:"answers"`
}

// ResultsPayload is what a student sees once results are released.
type ResultsPayload struct {
	SubmissionDetail
	Scores Scores `json:"scores"`
}

// SubmissionPage is one page of the admin submission list.
type SubmissionPage struct {
	Items         []SessionSummary `json:"items"`
	TotalItems    int              `json:"total_items"`
	TotalPages    int              `json:"total_pages"`
	CurrentPage   int              `json:"current_page"`
	PerPage       int              `json:"per_page"`
	AwaitingCount int              `json:"awaiting_count"`
}

// ExpiryReport summarises one sweep tick.
type ExpiryReport struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Raced   int `json:"raced"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}
