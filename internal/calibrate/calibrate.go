// Package calibrate computes the final confidence for a classification.
// The deterministic part combines the rule verdict, signal strength, and
// boosts; the AI delta is bounded and can never move the result across a
// confidence bucket boundary.
package calibrate

import (
	"math"

	"github.com/tareqmamari/execintel/internal/model"
)

// MaxAIDelta bounds how far enrichment may move the deterministic
// confidence in either direction.
const MaxAIDelta = 0.1

// bucketEpsilon keeps an upward-truncated confidence strictly below the
// next bucket's lower bound.
const bucketEpsilon = 0.0001

// Inputs are the terms of the confidence formula for one test.
type Inputs struct {
	RuleFired         bool
	RuleConfidence    float64
	SignalConfidences []float64
	HistoryBoost      float64
	AppLogBoost       float64
}

// Base is the pre-boost confidence. A fired rule anchors it at the rule's
// confidence or the strongest signal, whichever is higher. Without a rule
// the strongest signal counts, but capped at 0.5: unruled evidence never
// sounds sure.
func Base(in Inputs) float64 {
	maxSignal := 0.0
	for _, c := range in.SignalConfidences {
		if c > maxSignal {
			maxSignal = c
		}
	}
	if in.RuleFired {
		return math.Max(in.RuleConfidence, maxSignal)
	}
	return math.Min(maxSignal, 0.5)
}

// Deterministic is the confidence before any AI adjustment: base plus the
// history and application-log boosts, clamped to [0,1].
func Deterministic(in Inputs) float64 {
	return clamp01(Base(in) + in.HistoryBoost + in.AppLogBoost)
}

// ApplyAIDelta adds a bounded enrichment delta to the deterministic
// confidence. The result stays inside the deterministic value's bucket:
// an upward crossing truncates just under the bucket's upper bound, a
// downward crossing lands on its lower bound.
func ApplyAIDelta(deterministic, delta float64) float64 {
	if delta > MaxAIDelta {
		delta = MaxAIDelta
	}
	if delta < -MaxAIDelta {
		delta = -MaxAIDelta
	}
	adjusted := clamp01(deterministic + delta)

	bucket := model.BucketFor(deterministic)
	if model.BucketFor(adjusted) == bucket {
		return adjusted
	}
	lower, upper := bucketBounds(bucket)
	if adjusted > deterministic {
		return upper - bucketEpsilon
	}
	return lower
}

func bucketBounds(b model.ConfidenceBucket) (lower, upper float64) {
	switch b {
	case model.BucketVeryLow:
		return 0, 0.5
	case model.BucketLow:
		return 0.5, 0.7
	case model.BucketMedium:
		return 0.7, 0.9
	default:
		return 0.9, 1.0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
