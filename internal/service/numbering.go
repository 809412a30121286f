package service

import (
	"encoding/json"

	"github.com/stemsi/mockexam-backend/internal/model"
)

type matchingContent struct {
	Prompts []json.RawMessage `json:"prompts"`
}

// numberSpan is how many display numbers a question consumes.
func numberSpan(q model.TemplateQuestion) int {
	if !q.QuestionType.Numbered() {
		return 0
	}
	n := 1
	switch q.QuestionType {
	case model.QuestionTypeMatching:
		var c matchingContent
		if json.Unmarshal(q.Content, &c) == nil {
			n = len(c.Prompts)
		}
	case model.QuestionTypeMapLabeling:
		n = answerKeyEntries(q.AnswerKey)
	}
	return max(n, 1)
}

func answerKeyEntries(raw json.RawMessage) int {
	var obj map[string]json.RawMessage
	if json.Unmarshal(raw, &obj) == nil && obj != nil {
		return len(obj)
	}
	var arr []json.RawMessage
	if json.Unmarshal(raw, &arr) == nil {
		return len(arr)
	}
	return 1
}

// AssignDisplayNumbers numbers questions in one forward pass over template
// order. Numbers never repeat or skip; unnumbered items get nil bounds.
func AssignDisplayNumbers(questions []model.TemplateQuestion) []model.NumberedQuestion {
	out := make([]model.NumberedQuestion, 0, len(questions))
	next := 1
	for _, q := range questions {
		nq := model.NumberedQuestion{TemplateQuestion: q}
		if span := numberSpan(q); span > 0 {
			start, end := next, next+span-1
			nq.DisplayNumberStart, nq.DisplayNumberEnd = &start, &end
			next = end + 1
		}
		out = append(out, nq)
	}
	return out
}
