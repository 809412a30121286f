// Package seed holds the demo IELTS paper used by local tooling and the
// in-memory store.
package seed

import (
	"encoding/json"

	"github.com/stemsi/mockexam-backend/internal/model"
)

// DemoTemplate returns an academic mock covering every question type. IDs are
// left zero for the store to assign.
func DemoTemplate() model.ExamTemplate {
	q := func(order int, section model.Section, typ model.QuestionType, content, key string) model.TemplateQuestion {
		tq := model.TemplateQuestion{
			Order:        order,
			Section:      section,
			QuestionType: typ,
			Content:      json.RawMessage(content),
		}
		if key != "" {
			tq.AnswerKey = json.RawMessage(key)
		}
		return tq
	}

	return model.ExamTemplate{
		Title:       "IELTS Academic Mock Test 1",
		Description: "Full-length practice paper: listening, reading and writing.",
		AudioFiles:  json.RawMessage(`{"part1":"/audio/mock1/part1.mp3","part2":"/audio/mock1/part2.mp3"}`),
		SectionDurations: &model.SectionDurations{
			Listening: 30,
			Reading:   60,
			Writing:   60,
		},
		Questions: []model.TemplateQuestion{
			q(1, model.SectionListening, model.QuestionTypeInstruction,
				`{"text":"Part 1. You will hear a conversation about booking a hotel room."}`, ""),
			q(2, model.SectionListening, model.QuestionTypeTrueFalseNotGiven,
				`{"statement":"The caller wants a room for three nights."}`, `"TRUE"`),
			q(3, model.SectionListening, model.QuestionTypeMultipleChoiceSingleAnswer,
				`{"question":"Which floor is the room on?","options":["A","B","C"]}`, `"B"`),
			q(4, model.SectionListening, model.QuestionTypeGapFilling,
				`{"text":"Breakfast is served until ____ o'clock."}`, `["ten"]`),
			q(5, model.SectionListening, model.QuestionTypeMatching,
				`{"prompts":["Reception","Gym","Pool"],"options":["A","B","C","D"]}`, `{"Reception":"A","Gym":"C","Pool":"D"}`),
			q(6, model.SectionReading, model.QuestionTypeImageDisplay,
				`{"url":"/img/mock1/campus-map.png"}`, ""),
			q(7, model.SectionReading, model.QuestionTypeMapLabeling,
				`{"labels":["Library","Cafeteria","Lab"]}`, `{"Library":"E","Cafeteria":"B","Lab":"G"}`),
			q(8, model.SectionReading, model.QuestionTypeSummaryCompletion,
				`{"text":"Coral reefs are threatened by rising ____."}`, `["temperatures"]`),
			q(9, model.SectionReading, model.QuestionTypeMultipleChoiceMultipleAnswer,
				`{"question":"Which TWO causes are mentioned?","options":["A","B","C","D","E"]}`, `["A","D"]`),
			q(10, model.SectionReading, model.QuestionTypeShortAnswer,
				`{"question":"In which year was the study published?"}`, `"1998"`),
			q(11, model.SectionWriting, model.QuestionTypeWritingTask,
				`{"task":1,"prompt":"Summarise the information in the chart.","min_words":150}`, ""),
			q(12, model.SectionWriting, model.QuestionTypeWritingTask,
				`{"task":2,"prompt":"Some people think university should be free. Discuss.","min_words":250}`, ""),
		},
	}
}
