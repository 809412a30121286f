package model

// RawScores holds correct-answer counts. Writing carries the writing band,
// since writing is never counted.
type RawScores struct {
	Listening int      `json:"LISTENING"`
	Reading   int      `json:"READING"`
	Writing   *float64 `json:"WRITING"`
}

// BandScores holds the per-section band. Writing is nil until an examiner
// has scored at least one writing answer.
type BandScores struct {
	Listening float64  `json:"listening"`
	Reading   float64  `json:"reading"`
	Writing   *float64 `json:"writing"`
}

// SectionTotals counts answered questions per objective section.
type SectionTotals struct {
	Listening int `json:"LISTENING"`
	Reading   int `json:"READING"`
}

// Scores is derived on demand from marked answers; never persisted.
type Scores struct {
	RawScores        RawScores     `json:"raw_scores"`
	BandScores       BandScores    `json:"band_scores"`
	OverallBandScore float64       `json:"overall_band_score"`
	Totals           SectionTotals `json:"totals"`
}
