// Package anomaly decides whether a purchase amount is statistically
// out of line with a set of reference amounts.
//
// The test is a simple sigma rule over population statistics: an amount
// is anomalous when it exceeds mean + k*stddev of the reference set by a
// strict margin. Fewer than two reference points cannot support a
// standard-deviation estimate, so the test never flags in that case.
package anomaly

import (
	"fmt"
	"math"
)

// DefaultSigma is the detection threshold used when the caller does not
// supply one.
const DefaultSigma = 3.0

// MinReferenceSize is the smallest reference set the test accepts.
const MinReferenceSize = 2

// Stats holds the population statistics backing one evaluation.
type Stats struct {
	Mean   float64 `json:"mean"`
	Stddev float64 `json:"stddev"`
	N      int     `json:"n"`
}

// Threshold returns the flagging cutoff for sensitivity k.
func (s Stats) Threshold(k float64) float64 {
	return s.Mean + k*s.Stddev
}

// MeanStddev computes the mean and population standard deviation of refs
// (sum of squared deviations divided by n, not n-1).
func MeanStddev(refs []float64) Stats {
	n := len(refs)
	if n == 0 {
		return Stats{}
	}

	var sum float64
	for _, v := range refs {
		sum += v
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range refs {
		d := v - mean
		sq += d * d
	}

	return Stats{
		Mean:   mean,
		Stddev: math.Sqrt(sq / float64(n)),
		N:      n,
	}
}

// IsAnomalous reports whether amount exceeds mean + k*stddev of refs.
// Strict inequality: an amount exactly at the threshold is not flagged.
// Fewer than two reference amounts is inconclusive and never flags.
func IsAnomalous(amount float64, refs []float64, k float64) (bool, Stats) {
	if len(refs) < MinReferenceSize {
		return false, MeanStddev(refs)
	}
	stats := MeanStddev(refs)
	return amount > stats.Threshold(k), stats
}

// Detector is a sigma-rule detector configured once from service settings.
type Detector struct {
	sigma float64
}

// NewDetector creates a detector with sensitivity k standard deviations.
// Returns an error for negative k; this is a startup-time failure, not a
// per-evaluation one.
func NewDetector(k float64) (*Detector, error) {
	if k < 0 {
		return nil, fmt.Errorf("sigma threshold must be non-negative, got %g", k)
	}
	return &Detector{sigma: k}, nil
}

// Sigma returns the configured sensitivity.
func (d *Detector) Sigma() float64 { return d.sigma }

// Evaluate runs the sigma test with the detector's configured sensitivity.
func (d *Detector) Evaluate(amount float64, refs []float64) (bool, Stats) {
	return IsAnomalous(amount, refs, d.sigma)
}
