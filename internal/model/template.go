package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Section is the IELTS paper a question belongs to.
type Section string

const (
	SectionListening Section = "LISTENING"
	SectionReading   Section = "READING"
	SectionWriting   Section = "WRITING"
)

// QuestionType enumerates the question kinds a template may contain.
type QuestionType string

const (
	QuestionTypeInstruction                  QuestionType = "INSTRUCTION"
	QuestionTypeImageDisplay                 QuestionType = "IMAGE_DISPLAY"
	QuestionTypeTrueFalseNotGiven            QuestionType = "TRUE_FALSE_NOT_GIVEN"
	QuestionTypeMultipleChoiceSingleAnswer   QuestionType = "MULTIPLE_CHOICE_SINGLE_ANSWER"
	QuestionTypeMultipleChoiceMultipleAnswer QuestionType = "MULTIPLE_CHOICE_MULTIPLE_ANSWER"
	QuestionTypeGapFilling                   QuestionType = "GAP_FILLING"
	QuestionTypeSummaryCompletion            QuestionType = "SUMMARY_COMPLETION"
	QuestionTypeMatching                     QuestionType = "MATCHING"
	QuestionTypeMapLabeling                  QuestionType = "MAP_LABELING"
	QuestionTypeShortAnswer                  QuestionType = "SHORT_ANSWER"
	QuestionTypeWritingTask                  QuestionType = "WRITING_TASK"
)

// AutoMarkable reports whether answers of this type are graded by comparing
// against the answer key.
func (t QuestionType) AutoMarkable() bool {
	switch t {
	case QuestionTypeTrueFalseNotGiven,
		QuestionTypeMultipleChoiceSingleAnswer,
		QuestionTypeMultipleChoiceMultipleAnswer,
		QuestionTypeGapFilling,
		QuestionTypeSummaryCompletion,
		QuestionTypeMatching:
		return true
	}
	return false
}

// Numbered reports whether the item receives a display number at all.
func (t QuestionType) Numbered() bool {
	return t != QuestionTypeInstruction && t != QuestionTypeImageDisplay
}

// SectionDurations holds the minutes allotted to each section.
type SectionDurations struct {
	Listening int `json:"listening"`
	Reading   int `json:"reading"`
	Writing   int `json:"writing"`
}

// Total is the full attempt length.
func (d SectionDurations) Total() time.Duration {
	return time.Duration(d.Listening+d.Reading+d.Writing) * time.Minute
}

// TemplateQuestion is one ordered entry of a template.
type TemplateQuestion struct {
	QuestionID   uuid.UUID       `json:"question_id"`
	Order        int             `json:"order"`
	Section      Section         `json:"section"`
	QuestionType QuestionType    `json:"question_type"`
	Content      json.RawMessage `json:"content"`
	AnswerKey    json.RawMessage `json:"-"`
}

// ExamTemplate is read-only to the session lifecycle.
type ExamTemplate struct {
	ID               uuid.UUID          `json:"id"`
	Title            string             `json:"title"`
	Description      string             `json:"description,omitempty"`
	AudioFiles       json.RawMessage    `json:"audio_files"`
	SectionDurations *SectionDurations  `json:"section_durations"`
	Questions        []TemplateQuestion `json:"questions"`
}
