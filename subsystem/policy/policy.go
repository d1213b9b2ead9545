// Package policy decides compliance outcomes from screening risk scores.
package policy

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// ErrInvalidPolicy indicates unreadable or invalid threshold configuration.
var ErrInvalidPolicy = errors.New("invalid policy")

// Decision is a compliance recommendation.
type Decision string

const (
	Positive    Decision = "positive"
	NeedsReview Decision = "needs_review"
	Negative    Decision = "negative"
)

// Thresholds are the minimum scores for each decision.
// Missing values in configuration default to 0.
type Thresholds struct {
	Positive    float64 `yaml:"positive" json:"positive"`
	NeedsReview float64 `yaml:"needs_review" json:"needs_review"`
	Negative    float64 `yaml:"negative" json:"negative"`
}

// IsZero reports whether no threshold is configured.
func (t Thresholds) IsZero() bool {
	return t == Thresholds{}
}

// Validate checks that all thresholds are finite numbers.
func (t Thresholds) Validate() error {
	for _, v := range []float64{t.Positive, t.NeedsReview, t.Negative} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite threshold", ErrInvalidPolicy)
		}
	}
	return nil
}

type labeled struct {
	decision  Decision
	threshold float64
}

// ordered returns the thresholds highest first.
// Equal thresholds keep the order positive, needs_review, negative.
func (t Thresholds) ordered() []labeled {
	l := []labeled{
		{Positive, t.Positive},
		{NeedsReview, t.NeedsReview},
		{Negative, t.Negative},
	}
	sort.SliceStable(l, func(i, j int) bool { return l[i].threshold > l[j].threshold })
	return l
}

// Rationale explains a decision.
type Rationale struct {
	Score     float64
	Decision  Decision
	Threshold float64

	// Matched is false when the score was below every configured threshold.
	Matched bool
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// String renders the rationale for audit logs and results.
func (r Rationale) String() string {
	if !r.Matched {
		return "score below all configured thresholds"
	}
	return fmt.Sprintf("score %s >= %s threshold %s", formatFloat(r.Score), r.Decision, formatFloat(r.Threshold))
}

// Decide returns the decision for score.
//
// Thresholds are checked highest first and the first threshold that
// score meets wins. A score below every threshold, a NaN score, or
// unconfigured (zero-value) thresholds result in NeedsReview.
func Decide(score float64, t Thresholds) (Decision, Rationale) {
	if !t.IsZero() {
		for _, l := range t.ordered() {
			if score >= l.threshold {
				return l.decision, Rationale{
					Score:     score,
					Decision:  l.decision,
					Threshold: l.threshold,
					Matched:   true,
				}
			}
		}
	}
	return NeedsReview, Rationale{Score: score, Decision: NeedsReview}
}
