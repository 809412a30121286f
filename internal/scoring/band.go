// Package scoring converts marked answers into IELTS band scores.
package scoring

import (
	"math"

	"github.com/stemsi/mockexam-backend/internal/model"
)

// BandTable maps a raw correct count (out of 40) to a band. Raw scores absent
// from the table map to 0.
type BandTable map[int]float64

// ListeningTable is the listening conversion used for scoring.
var ListeningTable = BandTable{
	40: 9.0, 39: 9.0,
	38: 8.5, 37: 8.5,
	36: 8.0, 35: 8.0,
	34: 7.5,
	33: 7.0, 32: 7.0,
	31: 6.5, 30: 6.5, 29: 6.5,
	28: 6.0, 27: 6.0, 26: 6.0,
	25: 5.5, 24: 5.5, 23: 5.5, 22: 5.5,
	21: 5.0, 20: 5.0, 19: 5.0, 18: 5.0,
	17: 4.5, 16: 4.5,
	15: 4.0, 14: 4.0, 13: 4.0, 12: 4.0, 11: 4.0, 10: 4.0,
}

// ReadingTable is the reading conversion used for scoring.
var ReadingTable = BandTable{
	40: 9.0, 39: 9.0,
	38: 8.5, 37: 8.5,
	36: 8.0, 35: 8.0,
	34: 7.5, 33: 7.5,
	32: 7.0, 31: 7.0, 30: 7.0,
	29: 6.5, 28: 6.5, 27: 6.5,
	26: 6.0, 25: 6.0, 24: 6.0, 23: 6.0,
	22: 5.5, 21: 5.5, 20: 5.5, 19: 5.5,
	18: 5.0, 17: 5.0, 16: 5.0, 15: 5.0,
	14: 4.5, 13: 4.5,
	12: 4.0, 11: 4.0, 10: 4.0,
}

// CombinedTable is the single listening/reading table from the legacy
// "niner" band module, kept alongside the per-section ones. It disagrees with
// both at several breakpoints and is not used by Calculate; see DESIGN.md
// before switching.
var CombinedTable = BandTable{
	40: 9.0, 39: 9.0,
	38: 8.5, 37: 8.5,
	36: 8.0, 35: 8.0,
	34: 7.5, 33: 7.5, 32: 7.5,
	31: 7.0, 30: 7.0,
	29: 6.5, 28: 6.5, 27: 6.5, 26: 6.5,
	25: 6.0, 24: 6.0, 23: 6.0,
	22: 5.5, 21: 5.5, 20: 5.5, 19: 5.5,
	18: 5.0, 17: 5.0, 16: 5.0, 15: 5.0,
	14: 4.5, 13: 4.5, 12: 4.5,
	11: 4.0, 10: 4.0,
	9: 3.5, 8: 3.5,
	7: 3.0, 6: 3.0,
	5: 2.5, 4: 2.5,
}

// Band looks up raw in the table.
func (t BandTable) Band(raw int) float64 {
	return t[raw]
}

// tableFor returns the conversion table of an objective section.
func tableFor(section model.Section) (BandTable, bool) {
	switch section {
	case model.SectionListening:
		return ListeningTable, true
	case model.SectionReading:
		return ReadingTable, true
	}
	return nil, false
}

// ConvertRaw maps a section's raw count to a band. Sections without a table
// (writing) convert to 0.
func ConvertRaw(section model.Section, raw int) float64 {
	t, ok := tableFor(section)
	if !ok {
		return 0
	}
	return t.Band(raw)
}

// RoundHalf rounds to the nearest half band, halves rounding up.
func RoundHalf(v float64) float64 {
	return math.Floor(v*2+0.5) / 2
}

// MeanBand averages the given bands and rounds to the nearest half band.
// It returns ok=false for an empty input.
func MeanBand(bands []float64) (float64, bool) {
	if len(bands) == 0 {
		return 0, false
	}
	var sum float64
	for _, b := range bands {
		sum += b
	}
	return RoundHalf(sum / float64(len(bands))), true
}
