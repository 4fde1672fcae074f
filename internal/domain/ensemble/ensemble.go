// Package ensemble merges per-model raw predictions into one calibrated
// combined prediction.
package ensemble

import (
	"math"
	"time"

	"github.com/fieldline/gridcast/internal/domain/model"
)

// Default calibration constants. These are policy values tuned against
// held-out historical accuracy and are exposed as configuration; the
// defaults here are starting points, not derived quantities.
const (
	defaultCalibrationK        = 10.0 // points of margin per logit
	defaultConfidenceSlope     = 0.03 // confidence gained per point of margin
	defaultLowConfDiscount     = 0.5
	defaultMissingModelPenalty = 0.05
	maxConfidence              = 0.95
	minConfidence              = 0.05
	// probEpsilon keeps the inverse logistic finite at the extremes.
	probEpsilon = 1e-6
)

// Combiner folds raw predictions of heterogeneous native types into a single
// margin/probability pair with a calibrated confidence score.
type Combiner struct {
	k                   float64
	slope               float64
	lowConfDiscount     float64
	missingModelPenalty float64
	now                 func() time.Time
}

// New builds a Combiner with default calibration.
func New(opts ...Option) *Combiner {
	c := &Combiner{
		k:                   defaultCalibrationK,
		slope:               defaultConfidenceSlope,
		lowConfDiscount:     defaultLowConfDiscount,
		missingModelPenalty: defaultMissingModelPenalty,
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ImpliedProbability converts a point margin to a home win probability via
// the fixed logistic map p = 1/(1+exp(-margin/k)).
func (c *Combiner) ImpliedProbability(margin float64) float64 {
	return 1 / (1 + math.Exp(-margin/c.k))
}

// ImpliedMargin inverts the logistic map. A probability of exactly 0.5 maps
// to a margin of exactly zero.
func (c *Combiner) ImpliedMargin(p float64) float64 {
	if p == 0.5 {
		return 0
	}
	p = clampProb(p)
	return c.k * math.Log(p/(1-p))
}

// Combine merges raw predictions into one CombinedPrediction.
//
// Weights are historical_weight x (lowConfDiscount when the aligner flagged a
// low-confidence input), renormalized over the models that actually
// contributed: an unavailable model contributes zero weight, never an
// assumed-majority value. registered is the total number of loaded models;
// the gap between registered and contributing models reduces confidence and
// sets the degraded flag.
func (c *Combiner) Combine(raws []model.RawPrediction, descriptors map[string]model.Descriptor, registered int) (model.CombinedPrediction, error) {
	type contributor struct {
		id     string
		weight float64
		prob   float64
	}

	contributors := make([]contributor, 0, len(raws))
	totalWeight := 0.0
	lowConfidence := false

	for _, raw := range raws {
		desc, ok := descriptors[raw.ModelID]
		if !ok || desc.HistoricalWeight <= 0 {
			continue
		}

		weight := desc.HistoricalWeight
		if raw.LowConfidenceInput {
			weight *= c.lowConfDiscount
			lowConfidence = true
		}

		var prob float64
		switch desc.OutputType {
		case model.OutputMargin:
			prob = c.ImpliedProbability(raw.Value)
		case model.OutputWinProbability:
			prob = clampProb(raw.Value)
		default:
			continue
		}

		contributors = append(contributors, contributor{id: raw.ModelID, weight: weight, prob: prob})
		totalWeight += weight
	}

	if len(contributors) == 0 || totalWeight <= 0 {
		return model.CombinedPrediction{}, model.ErrEnsembleUnavailable
	}

	prob := 0.0
	contributions := make([]model.Contribution, 0, len(contributors))
	for _, m := range contributors {
		normalized := m.weight / totalWeight
		prob += normalized * m.prob
		contributions = append(contributions, model.Contribution{ModelID: m.id, WeightUsed: normalized})
	}

	// Margin is derived from the ensemble probability so sign consistency
	// holds by construction, never by post-hoc repair.
	margin := c.ImpliedMargin(prob)

	return model.CombinedPrediction{
		Margin:         margin,
		WinProbability: prob,
		Confidence:     c.confidence(margin, len(contributors), registered),
		Contributions:  contributions,
		Degraded:       lowConfidence || len(contributors) < registered,
		GeneratedAt:    c.now(),
	}, nil
}

// confidence applies min(maxConfidence, 0.5 + |margin| x slope) and then a
// per-missing-model penalty, keeping the result monotone non-decreasing in
// the number of contributors.
func (c *Combiner) confidence(margin float64, contributing, registered int) float64 {
	conf := 0.5 + math.Abs(margin)*c.slope
	if conf > maxConfidence {
		conf = maxConfidence
	}
	if registered > contributing {
		conf -= c.missingModelPenalty * float64(registered-contributing)
	}
	if conf < minConfidence {
		conf = minConfidence
	}
	return conf
}

func clampProb(p float64) float64 {
	if p < probEpsilon {
		return probEpsilon
	}
	if p > 1-probEpsilon {
		return 1 - probEpsilon
	}
	return p
}
