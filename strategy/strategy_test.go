package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCardValue(t *testing.T) {
	cases := map[string]int{
		"A": 1, "a": 1, "1": 1, "AC": 1,
		"T": 10, "TS": 10, "J": 10, "QH": 10, "KD": 10,
		"10": 10, "10H": 10,
		"2": 2, "9C": 9, "5d": 5,
	}
	for card, want := range cases {
		got, err := CardValue(card)
		require.NoError(t, err, card)
		assert.Equal(t, want, got, card)
	}

	for _, bad := range []string{"", "X", "11", "0", "AB"} {
		_, err := CardValue(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseRule(t *testing.T) {
	for _, s := range []string{"s17", "S17", " s17 "} {
		r, err := ParseRule(s)
		require.NoError(t, err)
		assert.Equal(t, "S17", r)
	}
	r, err := ParseRule("h17")
	require.NoError(t, err)
	assert.Equal(t, "H17", r)

	_, err = ParseRule("NO_HOLE")
	assert.Error(t, err)
}

func TestHandState(t *testing.T) {
	cases := []struct {
		cards []string
		total int
		soft  int
	}{
		{[]string{"A", "6"}, 17, 1},
		{[]string{"A", "A"}, 12, 1},
		{[]string{"A", "K"}, 21, 1},
		{[]string{"10", "9"}, 19, 0},
		{[]string{"A", "9", "5"}, 15, 0},
	}
	for _, tc := range cases {
		total, soft, err := handState(tc.cards)
		require.NoError(t, err)
		assert.Equal(t, tc.total, total, "%v", tc.cards)
		assert.Equal(t, tc.soft, soft, "%v", tc.cards)
	}
}

func TestDealerDistributionSumsToOne(t *testing.T) {
	for _, up := range []string{"A", "2", "6", "10", "K"} {
		for _, rule := range []string{"S17", "H17"} {
			dist, err := DealerDistribution(up, rule)
			require.NoError(t, err)
			sum := 0.0
			for _, p := range dist {
				sum += p
			}
			assert.InDelta(t, 1.0, sum, 1e-12, "upcard %s rule %s", up, rule)
		}
	}
}

func TestDealerDistributionKnownValues(t *testing.T) {
	// A dealer six busts more than a dealer ten.
	six, err := DealerDistribution("6", "S17")
	require.NoError(t, err)
	ten, err := DealerDistribution("10", "S17")
	require.NoError(t, err)
	assert.Greater(t, six["bust"], ten["bust"])

	// H17 shifts probability mass off 17 for an ace upcard.
	s17, err := DealerDistribution("A", "S17")
	require.NoError(t, err)
	h17, err := DealerDistribution("A", "H17")
	require.NoError(t, err)
	assert.Greater(t, s17["17"], h17["17"])
}

func TestOutcomesSortedAndNormalized(t *testing.T) {
	dist, err := DealerDistribution("10", "S17")
	require.NoError(t, err)

	for name, outcomes := range map[string][]Outcome{
		"stand":  standDelta(16, dist, 10),
		"hit":    hitDelta(16, 0, dist, 10),
		"double": doubleDelta(16, 0, dist, 10),
	} {
		sum := 0.0
		for i, o := range outcomes {
			sum += o.Prob
			if i > 0 {
				assert.Greater(t, o.Delta, outcomes[i-1].Delta, "%s outcomes sorted", name)
			}
		}
		assert.InDelta(t, 1.0, sum, 1e-12, name)
	}
}

func TestStandOnBustLosesStake(t *testing.T) {
	dist, err := DealerDistribution("10", "S17")
	require.NoError(t, err)
	outcomes := standDelta(22, dist, 25)
	require.Len(t, outcomes, 1)
	assert.Equal(t, -25, outcomes[0].Delta)
	assert.Equal(t, 1.0, outcomes[0].Prob)
}

func TestAnalyzeSixteenVersusTen(t *testing.T) {
	total := 16
	res, err := Analyze(Request{
		PlayerTotal:  &total,
		DealerUpcard: "10",
		Bet:          10,
		Bankroll:     100,
		Rule:         "S17",
	})
	require.NoError(t, err)

	assert.Less(t, res.Actions.Stand.EV, res.Actions.Hit.EV)
	assert.Equal(t, "hit", res.Recommendations.EVMaximizer)

	sum := 0.0
	for _, p := range res.DealerDistribution {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-12)

	// Total-only input cannot infer doubling.
	assert.False(t, res.Actions.Double.Allowed)
}

func TestAnalyzeFromCards(t *testing.T) {
	res, err := Analyze(Request{
		PlayerCards:  []string{"6S", "5D"},
		DealerUpcard: "6",
		Bet:          10,
		Bankroll:     100,
		Rule:         "S17",
	})
	require.NoError(t, err)

	assert.Equal(t, 11, res.Inputs["player_total"])
	assert.True(t, res.Actions.Double.Allowed)
	// Eleven against a weak dealer card is the canonical double.
	assert.Equal(t, "double", res.Recommendations.EVMaximizer)
	assert.Greater(t, res.Actions.Double.Variance, res.Actions.Hit.Variance)
}

func TestAnalyzeValidation(t *testing.T) {
	total := 16

	_, err := Analyze(Request{DealerUpcard: "10", Rule: "S17"})
	assert.ErrorContains(t, err, "player_cards or player_total")

	_, err = Analyze(Request{PlayerTotal: &total, DealerUpcard: "10", Rule: "X"})
	assert.Error(t, err)

	_, err = Analyze(Request{PlayerTotal: &total, DealerUpcard: "Z", Rule: "S17"})
	assert.Error(t, err)

	lambda := 9.0
	_, err = Analyze(Request{PlayerTotal: &total, DealerUpcard: "10", Rule: "S17", RiskLambda: &lambda})
	assert.ErrorContains(t, err, "risk_lambda")

	_, err = Analyze(Request{PlayerTotal: &total, DealerUpcard: "10", Rule: "S17", Bet: -1})
	assert.Error(t, err)
}

func TestCanDoubleOverride(t *testing.T) {
	yes, no := true, false
	total := 11

	res, err := Analyze(Request{PlayerTotal: &total, DealerUpcard: "6", Bet: 10, Bankroll: 100, Rule: "S17", CanDouble: &yes})
	require.NoError(t, err)
	assert.True(t, res.Actions.Double.Allowed)

	res, err = Analyze(Request{PlayerCards: []string{"6S", "5D"}, DealerUpcard: "6", Bet: 10, Bankroll: 100, Rule: "S17", CanDouble: &no})
	require.NoError(t, err)
	assert.False(t, res.Actions.Double.Allowed)
	assert.NotEqual(t, "double", res.Recommendations.EVMaximizer)

	// Insufficient bankroll blocks the inferred double.
	res, err = Analyze(Request{PlayerCards: []string{"6S", "5D"}, DealerUpcard: "6", Bet: 80, Bankroll: 50, Rule: "S17"})
	require.NoError(t, err)
	assert.False(t, res.Actions.Double.Allowed)
}

func TestSecurityLevelPenalizesVariance(t *testing.T) {
	outcomes := []Outcome{{Delta: -10, Prob: 0.5}, {Delta: 10, Prob: 0.5}}
	score, mean, variance := SecurityLevel(outcomes, 1)
	assert.InDelta(t, 0.0, mean, 1e-12)
	assert.InDelta(t, 100.0, variance, 1e-12)
	assert.InDelta(t, -10.0, score, 1e-12)

	// Lambda zero reduces to plain expectation.
	score, _, _ = SecurityLevel(outcomes, 0)
	assert.InDelta(t, 0.0, score, 1e-12)
}

func TestExpectedUtilityConcavity(t *testing.T) {
	sure := []Outcome{{Delta: 0, Prob: 1}}
	gamble := []Outcome{{Delta: -50, Prob: 0.5}, {Delta: 50, Prob: 0.5}}
	assert.Greater(t, ExpectedUtility(100, sure), ExpectedUtility(100, gamble))

	// Bankrupting outcomes clamp at zero utility rather than NaN.
	wipeout := []Outcome{{Delta: -200, Prob: 1}}
	assert.False(t, math.IsNaN(ExpectedUtility(100, wipeout)))
	assert.Equal(t, 0.0, ExpectedUtility(100, wipeout))
}
