// Package strategy scores blackjack decisions under an infinite-deck
// model: the dealer's finishing distribution, per-action delta
// distributions, and three recommendation policies (expected value,
// concave utility, mean-variance security level).
package strategy

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Infinite-deck draw probabilities: ace and 2-9 at 1/13 each, tens
// (10/J/Q/K) at 4/13.
const (
	pSingle = 1.0 / 13.0
	pTen    = 4.0 / 13.0
)

// drawValues enumerates drawable card values with their probabilities.
// 1 stands for the ace.
var drawValues = []struct {
	value int
	prob  float64
}{
	{1, pSingle}, {2, pSingle}, {3, pSingle}, {4, pSingle}, {5, pSingle},
	{6, pSingle}, {7, pSingle}, {8, pSingle}, {9, pSingle}, {10, pTen},
}

// Dealer finishing buckets.
var dealerBuckets = []string{"17", "18", "19", "20", "21", "bust"}

// ParseRule normalizes a dealer soft-17 rule string.
func ParseRule(s string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "S17":
		return "S17", nil
	case "H17":
		return "H17", nil
	}
	return "", fmt.Errorf("rule must be S17 or H17")
}

// CardValue parses a suited ("TS", "10H", "AC") or rank-only card
// token. Returns 1 for aces.
func CardValue(card string) (int, error) {
	tok := strings.ToUpper(strings.TrimSpace(card))
	if tok == "" {
		return 0, fmt.Errorf("empty card")
	}
	// Strip a trailing suit letter if present.
	if len(tok) >= 2 {
		switch tok[len(tok)-1] {
		case 'S', 'H', 'D', 'C':
			tok = tok[:len(tok)-1]
		}
	}
	switch tok {
	case "A", "1":
		return 1, nil
	case "T", "J", "Q", "K":
		return 10, nil
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n < 2 || n > 10 {
		return 0, fmt.Errorf("invalid card %q", card)
	}
	return n, nil
}

// handState reduces a hand to (total, softAces) where softAces counts
// aces currently worth 11.
func handState(cards []string) (int, int, error) {
	total, aces := 0, 0
	for _, c := range cards {
		v, err := CardValue(c)
		if err != nil {
			return 0, 0, err
		}
		if v == 1 {
			aces++
		}
		total += v
	}
	soft := 0
	if aces > 0 && total+10 <= 21 {
		total += 10
		soft = 1
	}
	return total, soft, nil
}

// normalize demotes soft aces while the total is busting.
func normalize(total, softAces int) (int, int) {
	for total > 21 && softAces > 0 {
		total -= 10
		softAces--
	}
	return total, softAces
}

type dealerKey struct {
	total    int
	softAces int
}

// DealerDistribution returns the probability of each dealer finishing
// bucket given the upcard and house rule.
func DealerDistribution(upcard string, rule string) (map[string]float64, error) {
	v, err := CardValue(upcard)
	if err != nil {
		return nil, err
	}
	total, soft := v, 0
	if v == 1 {
		total, soft = 11, 1
	}
	memo := map[dealerKey]map[string]float64{}
	return dealerFinish(total, soft, rule, memo), nil
}

func dealerFinish(total, softAces int, rule string, memo map[dealerKey]map[string]float64) map[string]float64 {
	total, softAces = normalize(total, softAces)
	if total > 21 {
		return map[string]float64{"bust": 1}
	}
	stands := total >= 18 || (total == 17 && (softAces == 0 || rule == "S17"))
	if stands {
		return map[string]float64{strconv.Itoa(total): 1}
	}
	key := dealerKey{total, softAces}
	if d, ok := memo[key]; ok {
		return d
	}

	dist := map[string]float64{}
	for _, draw := range drawValues {
		nt, ns := total+draw.value, softAces
		if draw.value == 1 && nt+10 <= 21 {
			nt += 10
			ns++
		}
		for bucket, p := range dealerFinish(nt, ns, rule, memo) {
			dist[bucket] += draw.prob * p
		}
	}
	memo[key] = dist
	return dist
}

// Outcome is one (delta, probability) point of an action's return
// distribution. Delta is the net chip change including the stake.
type Outcome struct {
	Delta int     `json:"delta"`
	Prob  float64 `json:"prob"`
}

// standDelta maps the dealer distribution to win/push/loss deltas for a
// standing player.
func standDelta(playerTotal int, dealerDist map[string]float64, bet int) []Outcome {
	if playerTotal > 21 {
		return []Outcome{{Delta: -bet, Prob: 1}}
	}
	acc := map[int]float64{}
	for bucket, p := range dealerDist {
		if bucket == "bust" {
			acc[bet] += p
			continue
		}
		dt, _ := strconv.Atoi(bucket)
		switch {
		case playerTotal > dt:
			acc[bet] += p
		case playerTotal < dt:
			acc[-bet] += p
		default:
			acc[0] += p
		}
	}
	return aggregate(acc)
}

// hitDelta draws one card and stands on the result; a bust loses the
// stake outright.
func hitDelta(playerTotal, softAces int, dealerDist map[string]float64, bet int) []Outcome {
	acc := map[int]float64{}
	for _, draw := range drawValues {
		nt, ns := playerTotal+draw.value, softAces
		if draw.value == 1 && nt+10 <= 21 {
			nt += 10
			ns++
		}
		nt, _ = normalize(nt, ns)
		if nt > 21 {
			acc[-bet] += draw.prob
			continue
		}
		for _, o := range standDelta(nt, dealerDist, bet) {
			acc[o.Delta] += draw.prob * o.Prob
		}
	}
	return aggregate(acc)
}

// doubleDelta is hitDelta at twice the stake, capped at one draw.
func doubleDelta(playerTotal, softAces int, dealerDist map[string]float64, bet int) []Outcome {
	return hitDelta(playerTotal, softAces, dealerDist, 2*bet)
}

// aggregate merges equal deltas and sorts ascending.
func aggregate(acc map[int]float64) []Outcome {
	out := make([]Outcome, 0, len(acc))
	for delta, p := range acc {
		out = append(out, Outcome{Delta: delta, Prob: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Delta < out[j].Delta })
	return out
}

// ExpectedValue is the mean delta of an outcome distribution.
func ExpectedValue(outcomes []Outcome) float64 {
	ev := 0.0
	for _, o := range outcomes {
		ev += float64(o.Delta) * o.Prob
	}
	return ev
}

// ExpectedUtility scores outcomes with a concave sqrt utility of final
// bankroll, so large losses weigh more than equal gains.
func ExpectedUtility(bankroll int, outcomes []Outcome) float64 {
	u := 0.0
	for _, o := range outcomes {
		u += o.Prob * math.Sqrt(math.Max(float64(bankroll+o.Delta), 0))
	}
	return u
}

// SecurityLevel returns E[delta] - lambda*stddev(delta), plus the mean
// and variance it was computed from.
func SecurityLevel(outcomes []Outcome, lambda float64) (score, mean, variance float64) {
	mean = ExpectedValue(outcomes)
	for _, o := range outcomes {
		d := float64(o.Delta) - mean
		variance += o.Prob * d * d
	}
	return mean - lambda*math.Sqrt(variance), mean, variance
}
