package scoring

import (
	"encoding/json"
	"reflect"
)

// AnswerMatches reports whether a student answer deep-equals the answer key
// once both are decoded. Key order in objects and number spelling (1 vs 1.0)
// do not matter; array order does. A missing value is treated as null.
func AnswerMatches(answer, key json.RawMessage) bool {
	a, ok := decodeLoose(answer)
	if !ok {
		return false
	}
	k, ok := decodeLoose(key)
	if !ok {
		return false
	}
	return reflect.DeepEqual(a, k)
}

func decodeLoose(raw json.RawMessage) (any, bool) {
	if len(raw) == 0 {
		return nil, true
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}
