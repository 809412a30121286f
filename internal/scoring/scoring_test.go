package scoring

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/mockexam-backend/internal/model"
)

func boolPtr(b bool) *bool { return &b }
func floatPtr(f float64) *float64 { return &f }

func objective(section model.Section, correct *bool) model.MarkableAnswer {
	return model.MarkableAnswer{
		StudentAnswer: model.StudentAnswer{ID: uuid.New(), IsCorrect: correct},
		Section:       section,
		QuestionType:  model.QuestionTypeGapFilling,
	}
}

func writingTask(score *float64) model.MarkableAnswer {
	return model.MarkableAnswer{
		StudentAnswer: model.StudentAnswer{ID: uuid.New(), Score: score},
		Section:       model.SectionWriting,
		QuestionType:  model.QuestionTypeWritingTask,
	}
}

func answersFor(section model.Section, correct, total int) []model.MarkableAnswer {
	out := make([]model.MarkableAnswer, 0, total)
	for i := 0; i < total; i++ {
		out = append(out, objective(section, boolPtr(i < correct)))
	}
	return out
}

func TestTablesAreMonotonic(t *testing.T) {
	for name, table := range map[string]BandTable{
		"listening": ListeningTable,
		"reading":   ReadingTable,
		"combined":  CombinedTable,
	} {
		prev := 0.0
		for raw := 0; raw <= 40; raw++ {
			b := table.Band(raw)
			assert.GreaterOrEqual(t, b, prev, "%s raw=%d", name, raw)
			assert.GreaterOrEqual(t, b, 0.0)
			prev = b
		}
	}
}

func TestTablesDifferAtKnownBreakpoints(t *testing.T) {
	assert.Equal(t, 7.0, ListeningTable.Band(33))
	assert.Equal(t, 7.5, ReadingTable.Band(33))
	assert.Equal(t, 6.5, ListeningTable.Band(30))
	assert.Equal(t, 7.0, ReadingTable.Band(30))
	assert.Equal(t, 0.0, ListeningTable.Band(9))
	assert.Equal(t, 3.5, CombinedTable.Band(9))
}

func TestConvertRaw(t *testing.T) {
	assert.Equal(t, 8.0, ConvertRaw(model.SectionListening, 36))
	assert.Equal(t, 8.0, ConvertRaw(model.SectionReading, 36))
	assert.Equal(t, 9.0, ConvertRaw(model.SectionReading, 40))
	assert.Equal(t, 0.0, ConvertRaw(model.SectionListening, 3))
	assert.Equal(t, 0.0, ConvertRaw(model.SectionWriting, 30))
}

func TestTableForObjectiveSectionsOnly(t *testing.T) {
	tbl, ok := tableFor(model.SectionListening)
	require.True(t, ok)
	assert.Equal(t, ListeningTable, tbl)
	tbl, ok = tableFor(model.SectionReading)
	require.True(t, ok)
	assert.Equal(t, ReadingTable, tbl)
	_, ok = tableFor(model.SectionWriting)
	assert.False(t, ok)
}

func TestRoundHalf(t *testing.T) {
	cases := map[float64]float64{
		6.75:  7.0,
		6.74:  6.5,
		6.25:  6.5,
		6.2:   6.0,
		7.667: 7.5,
		0:     0,
	}
	for in, want := range cases {
		assert.Equal(t, want, RoundHalf(in), "RoundHalf(%v)", in)
	}
}

func TestCalculateFullExam(t *testing.T) {
	var answers []model.MarkableAnswer
	answers = append(answers, answersFor(model.SectionListening, 36, 40)...)
	answers = append(answers, answersFor(model.SectionReading, 36, 40)...)
	answers = append(answers, writingTask(floatPtr(7.0)), writingTask(floatPtr(6.5)))

	scores := Calculate(answers)

	assert.Equal(t, 36, scores.RawScores.Listening)
	assert.Equal(t, 36, scores.RawScores.Reading)
	assert.Equal(t, 8.0, scores.BandScores.Listening)
	assert.Equal(t, 8.0, scores.BandScores.Reading)
	require.NotNil(t, scores.BandScores.Writing)
	assert.Equal(t, 7.0, *scores.BandScores.Writing)
	require.NotNil(t, scores.RawScores.Writing)
	assert.Equal(t, 7.0, *scores.RawScores.Writing)
	assert.Equal(t, 7.5, scores.OverallBandScore)
	assert.Equal(t, model.SectionTotals{Listening: 40, Reading: 40}, scores.Totals)
}

func TestCalculateWithoutWritingMarks(t *testing.T) {
	var answers []model.MarkableAnswer
	answers = append(answers, answersFor(model.SectionListening, 30, 40)...)
	answers = append(answers, answersFor(model.SectionReading, 30, 40)...)
	answers = append(answers, writingTask(nil))

	scores := Calculate(answers)

	assert.Nil(t, scores.BandScores.Writing)
	assert.Nil(t, scores.RawScores.Writing)
	// mean(6.5, 7.0) = 6.75 -> 7.0
	assert.Equal(t, 7.0, scores.OverallBandScore)
}

func TestCalculateIgnoresUnmarkedAnswers(t *testing.T) {
	answers := []model.MarkableAnswer{
		objective(model.SectionListening, nil),
		objective(model.SectionListening, boolPtr(false)),
		objective(model.SectionReading, nil),
	}

	scores := Calculate(answers)

	assert.Equal(t, 0, scores.RawScores.Listening)
	assert.Equal(t, 2, scores.Totals.Listening)
	assert.Equal(t, 1, scores.Totals.Reading)
	assert.Equal(t, 0.0, scores.OverallBandScore)
}

func TestCalculateEmpty(t *testing.T) {
	scores := Calculate(nil)
	assert.Equal(t, 0.0, scores.OverallBandScore)
	assert.Nil(t, scores.BandScores.Writing)
}
