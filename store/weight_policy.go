package store

import (
	"github.com/pkg/errors"

	"github.com/hrygo/soulmap/internal/profile"
)

// WeightPolicy decides an edge's weight when it is mentioned again.
type WeightPolicy interface {
	// Next returns the new weight given the stored weight, the number of
	// mentions it already summarizes and the newly extracted weight.
	Next(current float64, mentions int, incoming float64) float64
}

// LatestWeight overwrites the weight with the newest extraction.
type LatestWeight struct{}

func (LatestWeight) Next(_ float64, _ int, incoming float64) float64 {
	return incoming
}

// AverageWeight keeps the running mean over all mentions.
type AverageWeight struct{}

func (AverageWeight) Next(current float64, mentions int, incoming float64) float64 {
	if mentions <= 0 {
		return incoming
	}
	return (current*float64(mentions) + incoming) / float64(mentions+1)
}

// DecayWeight blends the newest extraction in with factor Alpha in (0, 1].
type DecayWeight struct {
	Alpha float64
}

func (d DecayWeight) Next(current float64, _ int, incoming float64) float64 {
	return current*(1-d.Alpha) + incoming*d.Alpha
}

// NewWeightPolicy resolves a policy by its configured name.
func NewWeightPolicy(name string, alpha float64) (WeightPolicy, error) {
	switch name {
	case "", profile.WeightPolicyLatest:
		return LatestWeight{}, nil
	case profile.WeightPolicyAverage:
		return AverageWeight{}, nil
	case profile.WeightPolicyDecay:
		if alpha <= 0 || alpha > 1 {
			return nil, errors.Errorf("decay factor must be in (0, 1], got %v", alpha)
		}
		return DecayWeight{Alpha: alpha}, nil
	default:
		return nil, errors.Errorf("unknown weight policy %q", name)
	}
}
