package compliance

import (
	"encoding/json"
	"math"
	"strconv"
)

// riskScore extracts "risk_score" from a screening result.
// ok is false when the score is absent or not numeric; the score is then 0.
func riskScore(screening map[string]interface{}) (score float64, ok bool) {
	v, found := screening["risk_score"]
	if !found || v == nil {
		return 0, false
	}
	switch s := v.(type) {
	case float64:
		score = s
	case json.Number:
		f, err := s.Float64()
		if err != nil {
			return 0, false
		}
		score = f
	case int:
		score = float64(s)
	case int64:
		score = float64(s)
	case string:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		score = f
	default:
		return 0, false
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, false
	}
	return score, true
}
