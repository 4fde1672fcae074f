package ensemble

import "time"

// Option applies a configuration option to the Combiner.
type Option func(*Combiner)

// WithCalibrationK sets the logistic margin-to-probability constant, in
// points of margin per logit.
func WithCalibrationK(k float64) Option {
	return func(c *Combiner) {
		if k > 0 {
			c.k = k
		}
	}
}

// WithConfidenceSlope sets the confidence gained per point of margin.
func WithConfidenceSlope(slope float64) Option {
	return func(c *Combiner) {
		if slope > 0 {
			c.slope = slope
		}
	}
}

// WithLowConfidenceDiscount sets the weight multiplier applied to models
// whose input the aligner flagged as low confidence.
func WithLowConfidenceDiscount(discount float64) Option {
	return func(c *Combiner) {
		if discount > 0 && discount <= 1 {
			c.lowConfDiscount = discount
		}
	}
}

// WithMissingModelPenalty sets the confidence reduction per registered model
// that did not contribute.
func WithMissingModelPenalty(penalty float64) Option {
	return func(c *Combiner) {
		if penalty >= 0 {
			c.missingModelPenalty = penalty
		}
	}
}

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(c *Combiner) {
		if now != nil {
			c.now = now
		}
	}
}
