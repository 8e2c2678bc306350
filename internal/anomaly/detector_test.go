package anomaly

import (
	"math"
	"testing"
)

func TestMeanStddev_Population(t *testing.T) {
	tests := []struct {
		name       string
		refs       []float64
		wantMean   float64
		wantStddev float64
	}{
		{"empty", nil, 0, 0},
		{"single", []float64{42}, 42, 0},
		{"uniform", []float64{100, 100, 100, 100}, 100, 0},
		{"pair", []float64{50, 60}, 55, 5},
		{"spread", []float64{2, 4, 4, 4, 5, 5, 7, 9}, 5, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MeanStddev(tt.refs)
			if math.Abs(got.Mean-tt.wantMean) > 1e-9 {
				t.Errorf("mean = %g, want %g", got.Mean, tt.wantMean)
			}
			if math.Abs(got.Stddev-tt.wantStddev) > 1e-9 {
				t.Errorf("stddev = %g, want %g", got.Stddev, tt.wantStddev)
			}
			if got.N != len(tt.refs) {
				t.Errorf("n = %d, want %d", got.N, len(tt.refs))
			}
		})
	}
}

func TestIsAnomalous_InsufficientDataNeverFlags(t *testing.T) {
	for _, refs := range [][]float64{nil, {}, {5}} {
		for _, amount := range []float64{0, 1, 1e12} {
			for _, k := range []float64{0, 3, 100} {
				if flagged, _ := IsAnomalous(amount, refs, k); flagged {
					t.Errorf("refs=%v amount=%g k=%g: must not flag with fewer than 2 references", refs, amount, k)
				}
			}
		}
	}
}

func TestIsAnomalous_StrictInequality(t *testing.T) {
	// Zero-variance population: threshold equals the mean exactly.
	refs := []float64{100, 100, 100, 100}

	if flagged, _ := IsAnomalous(100, refs, 3); flagged {
		t.Error("amount exactly at the threshold must not flag")
	}
	if flagged, _ := IsAnomalous(100.01, refs, 3); !flagged {
		t.Error("any excess over a zero-variance population must flag")
	}
}

func TestIsAnomalous_SigmaScalesThreshold(t *testing.T) {
	refs := []float64{50, 60} // mean 55, stddev 5

	// k=3 -> threshold 70
	if flagged, stats := IsAnomalous(70, refs, 3); flagged {
		t.Errorf("70 is exactly at threshold %g, must not flag", stats.Threshold(3))
	}
	if flagged, _ := IsAnomalous(70.5, refs, 3); !flagged {
		t.Error("70.5 exceeds mean+3*stddev=70, must flag")
	}

	// k=0 degenerates to "above the mean"
	if flagged, _ := IsAnomalous(55.5, refs, 0); !flagged {
		t.Error("k=0: anything above the mean must flag")
	}
	if flagged, _ := IsAnomalous(55, refs, 0); flagged {
		t.Error("k=0: the mean itself must not flag")
	}
}

func TestIsAnomalous_ScenarioFromSeededHistory(t *testing.T) {
	// Two neighbors bought at 50 and 60; an incoming 1000 is far outside.
	flagged, stats := IsAnomalous(1000, []float64{60, 50}, 3)
	if !flagged {
		t.Fatal("1000 against mean=55 stddev=5 must flag")
	}
	if stats.Mean != 55 || stats.Stddev != 5 {
		t.Errorf("stats = %+v, want mean=55 stddev=5", stats)
	}
}

func TestNewDetector_RejectsNegativeSigma(t *testing.T) {
	if _, err := NewDetector(-0.5); err == nil {
		t.Error("negative sigma must be rejected at construction")
	}

	d, err := NewDetector(DefaultSigma)
	if err != nil {
		t.Fatalf("default sigma rejected: %v", err)
	}
	if d.Sigma() != DefaultSigma {
		t.Errorf("sigma = %g, want %g", d.Sigma(), DefaultSigma)
	}
}

func TestDetector_Evaluate(t *testing.T) {
	d, _ := NewDetector(2)
	flagged, stats := d.Evaluate(65, []float64{50, 60})
	if flagged {
		t.Errorf("65 vs threshold %g must not flag", stats.Threshold(2))
	}
	flagged, _ = d.Evaluate(65.01, []float64{50, 60})
	if !flagged {
		t.Error("65.01 exceeds mean+2*stddev=65, must flag")
	}
}
