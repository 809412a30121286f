package scoring

import (
	"github.com/stemsi/mockexam-backend/internal/model"
)

// Calculate partitions answers by section and derives raw counts, section
// bands and the overall band.
//
// Listening and reading count answers with IsCorrect == true. Writing is the
// half-band-rounded mean of every manual score present, or nil when none is.
// The overall band is the half-band-rounded mean of the non-nil section bands
// and defaults to 0.
func Calculate(answers []model.MarkableAnswer) model.Scores {
	var (
		raw     model.RawScores
		totals  model.SectionTotals
		writing []float64
	)

	for _, a := range answers {
		correct := a.IsCorrect != nil && *a.IsCorrect
		switch a.Section {
		case model.SectionListening:
			totals.Listening++
			if correct {
				raw.Listening++
			}
		case model.SectionReading:
			totals.Reading++
			if correct {
				raw.Reading++
			}
		case model.SectionWriting:
			if a.Score != nil {
				writing = append(writing, *a.Score)
			}
		}
	}

	bands := model.BandScores{
		Listening: ConvertRaw(model.SectionListening, raw.Listening),
		Reading:   ConvertRaw(model.SectionReading, raw.Reading),
	}
	if w, ok := MeanBand(writing); ok {
		bands.Writing = &w
		wr := w
		raw.Writing = &wr
	}

	present := []float64{bands.Listening, bands.Reading}
	if bands.Writing != nil {
		present = append(present, *bands.Writing)
	}
	overall, _ := MeanBand(present)

	return model.Scores{
		RawScores:        raw,
		BandScores:       bands,
		OverallBandScore: overall,
		Totals:           totals,
	}
}
