package adaptive

// Strategy names the degree of autonomy the advisor layer is granted.
type Strategy string

const (
	StrategyAutonomous  Strategy = "autonomous"
	StrategyCompetitive Strategy = "competitive"
	StrategySupervised  Strategy = "supervised"
)

// Reliance score thresholds. Losses cost double so trust erodes twice as
// fast as it builds.
const (
	autonomousThreshold  = 90
	competitiveThreshold = 40
	lossPenaltyFactor    = 2
)

// Reliance tracks how much the engine trusts its own advisor verdicts over
// the plain heuristic, as an integrator in [0, 100].
type Reliance struct {
	Score    float64  `json:"score"`
	Strategy Strategy `json:"strategy"`
}

// DefaultReliance starts at the supervised floor with a little credit.
func DefaultReliance() Reliance {
	return Reliance{Score: 50, Strategy: StrategyCompetitive}
}

// Evaluate folds one comparison outcome into the score: delta points when
// the advisor beat the heuristic, twice that as a penalty when it lost.
func (r *Reliance) Evaluate(advisorWon bool, delta float64) {
	if advisorWon {
		r.Score = clamp(r.Score+delta, 0, 100)
	} else {
		r.Score = clamp(r.Score-lossPenaltyFactor*delta, 0, 100)
	}

	switch {
	case r.Score >= autonomousThreshold:
		r.Strategy = StrategyAutonomous
	case r.Score >= competitiveThreshold:
		r.Strategy = StrategyCompetitive
	default:
		r.Strategy = StrategySupervised
	}
}
