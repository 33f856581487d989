package strategy

import (
	"fmt"
)

// Request is the decision state to analyze. The player hand comes
// either as cards or as a (total, soft aces) pair.
type Request struct {
	PlayerCards    []string `json:"player_cards,omitempty"`
	PlayerTotal    *int     `json:"player_total,omitempty"`
	PlayerSoftAces *int     `json:"player_soft_aces,omitempty"`

	DealerUpcard string `json:"dealer_upcard"`
	Bet          int    `json:"bet"`
	Bankroll     int    `json:"bankroll"`
	Rule         string `json:"rule"`

	CanDouble      *bool    `json:"can_double,omitempty"`
	InferCanDouble *bool    `json:"infer_can_double,omitempty"`
	RiskLambda     *float64 `json:"risk_lambda,omitempty"`
}

// ActionEval is the full scoring of one action.
type ActionEval struct {
	Allowed       bool      `json:"allowed"`
	EV            float64   `json:"ev"`
	UtilityScore  float64   `json:"utility_score"`
	SecurityScore float64   `json:"security_score"`
	Variance      float64   `json:"variance"`
	Outcomes      []Outcome `json:"outcomes"`
}

// Actions holds the evaluation per available move.
type Actions struct {
	Stand  ActionEval `json:"stand"`
	Hit    ActionEval `json:"hit"`
	Double ActionEval `json:"double"`
}

// Recommendations names the best action under each policy.
type Recommendations struct {
	EVMaximizer   string `json:"ev_maximizer"`
	RiskAverse    string `json:"risk_averse"`
	SecurityLevel string `json:"security_level"`
}

// Result is the analyzer response.
type Result struct {
	Inputs             map[string]any     `json:"inputs"`
	DealerDistribution map[string]float64 `json:"dealer_distribution"`
	Actions            Actions            `json:"actions"`
	Recommendations    Recommendations    `json:"recommendations"`
}

// Analyze scores stand/hit/double for the given decision state.
func Analyze(req Request) (*Result, error) {
	rule, err := ParseRule(req.Rule)
	if err != nil {
		return nil, err
	}

	var total, softAces int
	cardsKnown := len(req.PlayerCards) > 0
	switch {
	case cardsKnown:
		total, softAces, err = handState(req.PlayerCards)
		if err != nil {
			return nil, err
		}
	case req.PlayerTotal != nil:
		total = *req.PlayerTotal
		if req.PlayerSoftAces != nil {
			softAces = *req.PlayerSoftAces
		}
		if total < 2 || total > 31 {
			return nil, fmt.Errorf("player_total out of range")
		}
	default:
		return nil, fmt.Errorf("player_cards or player_total is required")
	}

	if req.Bet < 0 {
		return nil, fmt.Errorf("bet must be >= 0")
	}
	if req.Bankroll < 0 {
		return nil, fmt.Errorf("bankroll must be >= 0")
	}
	lambda := 1.0
	if req.RiskLambda != nil {
		lambda = *req.RiskLambda
	}
	if lambda < 0 || lambda > 4 {
		return nil, fmt.Errorf("risk_lambda must be between 0 and 4")
	}

	dealerDist, err := DealerDistribution(req.DealerUpcard, rule)
	if err != nil {
		return nil, err
	}

	canDouble := inferCanDouble(req, cardsKnown)

	eval := func(outcomes []Outcome, allowed bool) ActionEval {
		security, _, variance := SecurityLevel(outcomes, lambda)
		return ActionEval{
			Allowed:       allowed,
			EV:            ExpectedValue(outcomes),
			UtilityScore:  ExpectedUtility(req.Bankroll, outcomes),
			SecurityScore: security,
			Variance:      variance,
			Outcomes:      outcomes,
		}
	}

	actions := Actions{
		Stand:  eval(standDelta(total, dealerDist, req.Bet), true),
		Hit:    eval(hitDelta(total, softAces, dealerDist, req.Bet), true),
		Double: eval(doubleDelta(total, softAces, dealerDist, req.Bet), canDouble),
	}

	inputs := map[string]any{
		"player_total":     total,
		"player_soft_aces": softAces,
		"dealer_upcard":    req.DealerUpcard,
		"bet":              req.Bet,
		"bankroll":         req.Bankroll,
		"rule":             rule,
		"can_double":       canDouble,
		"risk_lambda":      lambda,
	}
	if cardsKnown {
		inputs["player_cards"] = req.PlayerCards
	}

	return &Result{
		Inputs:             inputs,
		DealerDistribution: dealerDist,
		Actions:            actions,
		Recommendations: Recommendations{
			EVMaximizer:   recommend(actions, func(a ActionEval) float64 { return a.EV }),
			RiskAverse:    recommend(actions, func(a ActionEval) float64 { return a.UtilityScore }),
			SecurityLevel: recommend(actions, func(a ActionEval) float64 { return a.SecurityScore }),
		},
	}, nil
}

// inferCanDouble: an explicit can_double wins; otherwise doubling needs
// a two-card hand and a bankroll covering the added stake.
func inferCanDouble(req Request, cardsKnown bool) bool {
	if req.CanDouble != nil {
		return *req.CanDouble
	}
	if req.InferCanDouble != nil && !*req.InferCanDouble {
		return false
	}
	return cardsKnown && len(req.PlayerCards) == 2 && req.Bet > 0 && req.Bankroll >= req.Bet
}

// recommend picks the best allowed action by score, with ties broken
// in stand, hit, double order.
func recommend(actions Actions, score func(ActionEval) float64) string {
	best, bestScore := "stand", score(actions.Stand)
	if s := score(actions.Hit); s > bestScore {
		best, bestScore = "hit", s
	}
	if actions.Double.Allowed {
		if s := score(actions.Double); s > bestScore {
			best = "double"
		}
	}
	return best
}
