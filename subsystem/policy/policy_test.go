package policy

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

var standard = Thresholds{Positive: 90, NeedsReview: 50, Negative: 0}

func TestDecide(t *testing.T) {
	for _, tc := range []struct {
		name       string
		score      float64
		thresholds Thresholds
		want       Decision
		rationale  string
	}{
		{"high", 95, standard, Positive, "score 95 >= positive threshold 90"},
		{"boundary", 90, standard, Positive, "score 90 >= positive threshold 90"},
		{"middle", 50, standard, NeedsReview, "score 50 >= needs_review threshold 50"},
		{"low", 10, standard, Negative, "score 10 >= negative threshold 0"},
		{"below-all", -5, standard, NeedsReview, "score below all configured thresholds"},
		{"zeroed", 5, Thresholds{}, NeedsReview, "score below all configured thresholds"},
		{"ties", 60, Thresholds{Positive: 50, NeedsReview: 50, Negative: 50}, Positive, "score 60 >= positive threshold 50"},
		{"nan", math.NaN(), standard, NeedsReview, "score below all configured thresholds"},
		{"fractional", 12.5, Thresholds{Positive: 80.25, NeedsReview: 12.5}, NeedsReview, "score 12.5 >= needs_review threshold 12.5"},
		// a policy where "negative" demands the highest score
		{"inverted", 70, Thresholds{Positive: 10, NeedsReview: 40, Negative: 60}, Negative, "score 70 >= negative threshold 60"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d, r := Decide(tc.score, tc.thresholds)
			if want, have := tc.want, d; want != have {
				t.Errorf("decision: want %q, have %q", want, have)
			}
			if want, have := tc.rationale, r.String(); want != have {
				t.Errorf("rationale: want %q, have %q", want, have)
			}
		})
	}
}

func rank(d Decision) int {
	switch d {
	case Negative:
		return 0
	case NeedsReview:
		return 1
	case Positive:
		return 2
	}
	return -1
}

func TestDecideMonotonic(t *testing.T) {
	// with positive >= needs_review >= negative a higher score never
	// yields a "lower" decision than a lower score, excluding the
	// below-all fallback region
	for _, th := range []Thresholds{
		standard,
		{Positive: 75, NeedsReview: 75, Negative: 10},
		{Positive: 1, NeedsReview: 0.5, Negative: 0.25},
	} {
		prev := -1
		for score := th.Negative; score <= th.Positive+10; score += 0.25 {
			d, _ := Decide(score, th)
			if r := rank(d); r < prev {
				t.Fatalf("%+v: score %v decided %q after a higher decision", th, score, d)
			} else {
				prev = r
			}
		}
	}
}

func TestParseThresholds(t *testing.T) {
	th, err := ParseThresholds([]byte("positive: 90\nneeds_review: 50\nnegative: 0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if want, have := standard, th; want != have {
		t.Errorf("want %+v, have %+v", want, have)
	}

	th, err = ParseThresholds(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !th.IsZero() {
		t.Errorf("expected zero thresholds, have %+v", th)
	}

	if _, err = ParseThresholds([]byte("positive: .nan\n")); !errors.Is(err, ErrInvalidPolicy) {
		t.Errorf("have %v, want %v", err, ErrInvalidPolicy)
	}
	if _, err = ParseThresholds([]byte("positive: high\n")); !errors.Is(err, ErrInvalidPolicy) {
		t.Errorf("have %v, want %v", err, ErrInvalidPolicy)
	}
}

func TestFileSource(t *testing.T) {
	ctx := context.Background()

	th, err := NewFileSource("testdata/policy.yaml").Thresholds(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want, have := standard, th; want != have {
		t.Errorf("want %+v, have %+v", want, have)
	}

	// missing fields default to 0
	th, err = NewFileSource("testdata/partial.yaml").Thresholds(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want, have := (Thresholds{Positive: 90}), th; want != have {
		t.Errorf("want %+v, have %+v", want, have)
	}

	for _, path := range []string{"testdata/malformed.yaml", "testdata/missing.yaml"} {
		if _, err = NewFileSource(path).Thresholds(ctx); !errors.Is(err, ErrInvalidPolicy) {
			t.Errorf("%s: have %v, want %v", path, err, ErrInvalidPolicy)
		}
	}
}

func TestEvaluateReloads(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("positive: 90\nneeds_review: 50\n"), 0644); err != nil {
		t.Fatal(err)
	}
	e, err := NewEngine(NewFileSource(path))
	if err != nil {
		t.Fatal(err)
	}

	d, _, err := e.Evaluate(ctx, 60)
	if err != nil {
		t.Fatal(err)
	}
	if want, have := NeedsReview, d; want != have {
		t.Errorf("want %q, have %q", want, have)
	}

	if err := os.WriteFile(path, []byte("positive: 55\nneeds_review: 50\n"), 0644); err != nil {
		t.Fatal(err)
	}
	d, r, err := e.Evaluate(ctx, 60)
	if err != nil {
		t.Fatal(err)
	}
	if want, have := Positive, d; want != have {
		t.Errorf("want %q, have %q", want, have)
	}
	if want, have := 55.0, r.Threshold; want != have {
		t.Errorf("want %v, have %v", want, have)
	}

	if err := os.WriteFile(path, []byte("positive: [\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err = e.Evaluate(ctx, 60); !errors.Is(err, ErrInvalidPolicy) {
		t.Errorf("have %v, want %v", err, ErrInvalidPolicy)
	}
}

func TestStaticSource(t *testing.T) {
	e, err := NewEngine(StaticSource(standard))
	if err != nil {
		t.Fatal(err)
	}
	d, _, err := e.Evaluate(context.Background(), 95)
	if err != nil {
		t.Fatal(err)
	}
	if want, have := Positive, d; want != have {
		t.Errorf("want %q, have %q", want, have)
	}
}
