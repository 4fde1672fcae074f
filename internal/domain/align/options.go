package align

// Option applies a configuration option to the Aligner.
type Option func(*Aligner)

// WithImputationThreshold sets the imputed-field fraction above which the
// aligner flags a low-confidence input.
func WithImputationThreshold(threshold float64) Option {
	return func(a *Aligner) {
		if threshold > 0 && threshold <= 1 {
			a.threshold = threshold
		}
	}
}

// WithMedians seeds the historical median table used for imputation.
func WithMedians(medians map[string]float64) Option {
	return func(a *Aligner) {
		a.SetMedians(medians)
	}
}
