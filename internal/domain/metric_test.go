package domain

import (
	"errors"
	"math"
	"testing"
)

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in      string
		want    Metric
		wantErr bool
	}{
		{"cosine", MetricCosine, false},
		{"dot", MetricDot, false},
		{"l2", MetricL2, false},
		{"", "", true},
		{"euclidean", "", true},
		{"COSINE", "", true},
	}

	for _, tt := range tests {
		got, err := ParseMetric(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseMetric(%q): expected error", tt.in)
			} else if !errors.Is(err, ErrValidation) {
				t.Errorf("ParseMetric(%q): error should wrap ErrValidation, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMetric(%q): unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseMetric(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMetricScore_Cosine(t *testing.T) {
	// cosine distance 0.09 -> similarity 0.91
	if got := MetricCosine.Score(0.09); math.Abs(got-0.91) > 1e-9 {
		t.Errorf("cosine score = %v, want 0.91", got)
	}
	// distance 2 (opposite vectors) -> score -1, still inside bounds
	if got := MetricCosine.Score(2); got != -1 {
		t.Errorf("cosine score for distance 2 = %v, want -1", got)
	}
}

func TestMetricScore_Dot(t *testing.T) {
	// backend reports 1 - <q, v>; raw inner product is used directly
	if got := MetricDot.Score(0.25); math.Abs(got-0.75) > 1e-9 {
		t.Errorf("dot score = %v, want 0.75", got)
	}
	// huge inner product clamps to 1
	if got := MetricDot.Score(-5); got != 1 {
		t.Errorf("dot score for distance -5 = %v, want 1", got)
	}
}

func TestMetricScore_L2(t *testing.T) {
	// identical vectors: distance 0 -> score 1
	if got := MetricL2.Score(0); got != 1 {
		t.Errorf("l2 score for distance 0 = %v, want 1", got)
	}
	// scores stay in (0, 1] for any non-negative distance
	for _, d := range []float64{0.001, 1, 10, 1e6} {
		got := MetricL2.Score(d)
		if got <= 0 || got > 1 {
			t.Errorf("l2 score for distance %v = %v, want within (0, 1]", d, got)
		}
	}
}

func TestMetricScore_Bounds(t *testing.T) {
	for _, m := range []Metric{MetricCosine, MetricDot, MetricL2} {
		for _, d := range []float64{-10, -1, 0, 0.5, 1, 2, 100} {
			got := m.Score(d)
			if got < -1 || got > 1 {
				t.Errorf("%s.Score(%v) = %v, outside [-1, 1]", m, d, got)
			}
		}
	}
}
