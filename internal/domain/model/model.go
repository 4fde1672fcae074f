// Package model contains domain models passed between layers.
package model

import "time"

// OutputType describes the native output of a prediction model.
type OutputType string

const (
	// OutputMargin marks a model that emits a point margin (home minus away).
	OutputMargin OutputType = "margin"
	// OutputWinProbability marks a model that emits a home win probability.
	OutputWinProbability OutputType = "win_probability"
)

// Valid reports whether t is one of the known output types.
func (t OutputType) Valid() bool {
	return t == OutputMargin || t == OutputWinProbability
}

// Status is the health state of a model as seen by the resilience layer.
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusDegraded    Status = "degraded"
	StatusUnavailable Status = "unavailable"
)

// Descriptor describes a loaded prediction model. It is created at load time;
// only Status changes afterwards, and only through the resilience layer.
type Descriptor struct {
	ID               string     `json:"id"`
	OutputType       OutputType `json:"output_type"`
	RequiredFeatures []string   `json:"required_features"` // ordered, defines input dimension
	HistoricalWeight float64    `json:"historical_weight"`
	Status           Status     `json:"status"`
	TrainedAt        time.Time  `json:"trained_at,omitempty"`
}

// Dimension returns the model's expected input dimension.
func (d Descriptor) Dimension() int {
	return len(d.RequiredFeatures)
}

// RawPrediction is the output of a single model invocation. Immutable;
// discarded once folded into a CombinedPrediction.
type RawPrediction struct {
	ModelID             string
	Value               float64 // margin or probability, per the model's OutputType
	ProducedAt          time.Time
	ImputedFeatureCount int
	LowConfidenceInput  bool
}

// Contribution records a model's share of a combined prediction.
type Contribution struct {
	ModelID    string  `json:"model_id"`
	WeightUsed float64 `json:"weight_used"`
}

// CombinedPrediction is the ensemble answer for one matchup. Immutable once
// created; cache entries holding one are replaced, never edited.
// Invariant: sign(Margin) == sign(WinProbability - 0.5) by construction.
type CombinedPrediction struct {
	Home           string         `json:"home"`
	Away           string         `json:"away"`
	Season         int            `json:"season"`
	Week           int            `json:"week"`
	SchemaVersion  string         `json:"schema_version"`
	Margin         float64        `json:"margin"`
	WinProbability float64        `json:"win_probability"`
	Confidence     float64        `json:"confidence"`
	Contributions  []Contribution `json:"contributing_models"`
	Degraded       bool           `json:"degraded"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// SuggestedSide names the side the prediction favors, or "" when the
// probability is exactly even.
func (p CombinedPrediction) SuggestedSide() string {
	switch {
	case p.WinProbability > 0.5:
		return p.Home
	case p.WinProbability < 0.5:
		return p.Away
	default:
		return ""
	}
}
