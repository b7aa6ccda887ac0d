package domain

import "fmt"

// Metric selects the distance function used by vector similarity search.
type Metric string

const (
	// MetricCosine ranks by cosine distance.
	MetricCosine Metric = "cosine"
	// MetricDot ranks by inner product.
	MetricDot Metric = "dot"
	// MetricL2 ranks by Euclidean distance.
	MetricL2 Metric = "l2"
)

// ParseMetric validates a metric identifier. Unknown names fail with a
// validation error rather than defaulting silently.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricCosine, MetricDot, MetricL2:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("%w: unsupported similarity metric %q", ErrValidation, s)
	}
}

// scoreTransform converts a backend-reported distance into the shared
// relevance domain. The search backend reports distances where lower is
// closer; for the inner product metric it reports 1 - <q, v>, so the raw
// similarity is recovered as 1 - distance.
var scoreTransforms = map[Metric]func(distance float64) float64{
	MetricCosine: func(d float64) float64 { return 1 - d },
	MetricDot:    func(d float64) float64 { return 1 - d },
	MetricL2:     func(d float64) float64 { return 1 / (1 + d) },
}

// Score maps a raw distance into the normalized relevance domain and clamps
// it to [-1, 1].
func (m Metric) Score(distance float64) float64 {
	transform, ok := scoreTransforms[m]
	if !ok {
		return 0
	}
	return clampScore(transform(distance))
}

func clampScore(s float64) float64 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
