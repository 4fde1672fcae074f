// Package predictor wraps trained model artifacts behind one uniform
// prediction interface, regardless of the artifact's internal architecture.
package predictor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/fieldline/gridcast/internal/domain/align"
	"github.com/fieldline/gridcast/internal/domain/model"
)

// Predictor computes one raw prediction from aligned features. The aligned
// value order must match the descriptor's required-feature order; dimension
// compatibility is validated before every invocation.
type Predictor interface {
	Predict(ctx context.Context, aligned align.Aligned) (model.RawPrediction, error)
}

// Artifact is the on-disk representation of a trained model, produced by the
// training collaborator. Coefficients are ordered like Features.
type Artifact struct {
	ID               string           `json:"id"`
	OutputType       model.OutputType `json:"output_type"`
	Features         []string         `json:"features"`
	Coefficients     []float64        `json:"coefficients"`
	Intercept        float64          `json:"intercept"`
	HistoricalWeight float64          `json:"historical_weight"`
	TrainedAt        time.Time        `json:"trained_at"`
}

// Validate checks the artifact's declared feature-dimension compatibility.
func (a Artifact) Validate() error {
	if a.ID == "" {
		return ErrMissingID
	}
	if !a.OutputType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownOutputType, a.OutputType)
	}
	if len(a.Features) == 0 {
		return ErrNoFeatures
	}
	if len(a.Coefficients) != len(a.Features) {
		return fmt.Errorf("%w: %d coefficients for %d features",
			ErrDimensionMismatch, len(a.Coefficients), len(a.Features))
	}
	if a.HistoricalWeight < 0 {
		return ErrNegativeWeight
	}
	return nil
}

// Descriptor derives the registry descriptor for this artifact.
func (a Artifact) Descriptor() model.Descriptor {
	features := make([]string, len(a.Features))
	copy(features, a.Features)
	return model.Descriptor{
		ID:               a.ID,
		OutputType:       a.OutputType,
		RequiredFeatures: features,
		HistoricalWeight: a.HistoricalWeight,
		Status:           model.StatusHealthy,
		TrainedAt:        a.TrainedAt,
	}
}

// New builds a Predictor for the artifact. Margin artifacts become linear
// estimators; win-probability artifacts become logistic classifiers. The
// combiner only ever sees these two canonical shapes and never branches on
// model identity.
func New(artifact Artifact) (Predictor, error) {
	if err := artifact.Validate(); err != nil {
		return nil, fmt.Errorf("artifact %q: %w", artifact.ID, err)
	}

	base := linearModel{
		id:           artifact.ID,
		coefficients: append([]float64(nil), artifact.Coefficients...),
		intercept:    artifact.Intercept,
	}

	switch artifact.OutputType {
	case model.OutputMargin:
		return &marginModel{linearModel: base}, nil
	case model.OutputWinProbability:
		return &winProbModel{linearModel: base}, nil
	default:
		return nil, fmt.Errorf("artifact %q: %w: %q", artifact.ID, ErrUnknownOutputType, artifact.OutputType)
	}
}

// linearModel holds the shared dot-product core.
type linearModel struct {
	id           string
	coefficients []float64
	intercept    float64
}

// score validates dimensional compatibility and computes the linear score.
func (m *linearModel) score(ctx context.Context, aligned align.Aligned) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("predict %s: %w", m.id, err)
	}
	if len(aligned.Values) != len(m.coefficients) {
		return 0, fmt.Errorf("predict %s: %w: got %d values, want %d",
			m.id, ErrDimensionMismatch, len(aligned.Values), len(m.coefficients))
	}
	score := m.intercept
	for i, v := range aligned.Values {
		score += m.coefficients[i] * v
	}
	return score, nil
}

func (m *linearModel) raw(value float64, aligned align.Aligned) model.RawPrediction {
	return model.RawPrediction{
		ModelID:             m.id,
		Value:               value,
		ProducedAt:          time.Now(),
		ImputedFeatureCount: len(aligned.Imputed),
		LowConfidenceInput:  aligned.LowConfidence,
	}
}

// marginModel emits a continuous point margin, home minus away.
type marginModel struct {
	linearModel
}

func (m *marginModel) Predict(ctx context.Context, aligned align.Aligned) (model.RawPrediction, error) {
	score, err := m.score(ctx, aligned)
	if err != nil {
		return model.RawPrediction{}, err
	}
	return m.raw(score, aligned), nil
}

// winProbModel emits a home win probability through a sigmoid.
type winProbModel struct {
	linearModel
}

func (m *winProbModel) Predict(ctx context.Context, aligned align.Aligned) (model.RawPrediction, error) {
	score, err := m.score(ctx, aligned)
	if err != nil {
		return model.RawPrediction{}, err
	}
	return m.raw(1/(1+math.Exp(-score)), aligned), nil
}
