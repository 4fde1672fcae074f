// Package align projects a canonical feature vector onto the subset a model
// requires, imputing missing fields per policy.
package align

import (
	"github.com/fieldline/gridcast/internal/domain/feature"
	"github.com/fieldline/gridcast/internal/domain/model"
)

// Default alignment policy constants.
const (
	defaultImputationThreshold = 0.30
)

// Aligned is the model-ready projection of a feature vector. Values follow
// the order of the descriptor's required features.
type Aligned struct {
	ModelID string
	Values  []float64
	// Imputed lists the required fields that were absent from the snapshot
	// and filled from the median table (or zero).
	Imputed []string
	// LowConfidence is set when the imputed fraction exceeds the threshold;
	// the combiner discounts this model's weight downstream.
	LowConfidence bool
}

// Aligner aligns canonical vectors against per-model feature requirements.
type Aligner struct {
	// medians holds per-field medians over the most recent historical
	// window, used as first-choice imputation values.
	medians   map[string]float64
	threshold float64
}

// New builds an Aligner with the default imputation policy.
func New(opts ...Option) *Aligner {
	a := &Aligner{
		medians:   make(map[string]float64),
		threshold: defaultImputationThreshold,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetMedians replaces the historical median table. Called by the service
// after the feature store computes medians for the active window.
func (a *Aligner) SetMedians(medians map[string]float64) {
	copied := make(map[string]float64, len(medians))
	for k, v := range medians {
		copied[k] = v
	}
	a.medians = copied
}

// Align copies every required field present in vec verbatim, imputes absent
// ones (median, else zero), and silently drops fields outside the model's
// requirement. Fields never get over-fitted onto a model that did not train
// on them.
func (a *Aligner) Align(vec feature.Vector, desc model.Descriptor) (Aligned, error) {
	if desc.Dimension() == 0 {
		return Aligned{}, ErrNoRequiredFeatures
	}

	out := Aligned{
		ModelID: desc.ID,
		Values:  make([]float64, desc.Dimension()),
	}

	for i, name := range desc.RequiredFeatures {
		if val, ok := vec.Value(name); ok {
			out.Values[i] = val
			continue
		}
		if med, ok := a.medians[name]; ok {
			out.Values[i] = med
		} else {
			out.Values[i] = 0
		}
		out.Imputed = append(out.Imputed, name)
	}

	fraction := float64(len(out.Imputed)) / float64(desc.Dimension())
	out.LowConfidence = fraction > a.threshold

	return out, nil
}

// Threshold returns the configured imputed-fraction threshold.
func (a *Aligner) Threshold() float64 {
	return a.threshold
}
