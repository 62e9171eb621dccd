package risk

import "context"

// RegulatoryScorer holds the regulatory factor at a constant baseline
// until regulatory actions feed the score. It participates in the
// weighted composite like any other factor.
type RegulatoryScorer struct{}

// NewRegulatoryScorer creates the baseline regulatory scorer.
func NewRegulatoryScorer() *RegulatoryScorer {
	return &RegulatoryScorer{}
}

// Name returns the factor name.
func (s *RegulatoryScorer) Name() string { return FactorRegulatory }

// Score returns the fixed regulatory baseline.
func (s *RegulatoryScorer) Score(_ context.Context, _ string) (FactorScore, error) {
	return FactorScore{
		Score:  2.0,
		Detail: map[string]interface{}{"status": "baseline"},
	}, nil
}
