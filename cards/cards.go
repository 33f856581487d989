package cards

import (
	"fmt"
	"math/rand"
	"strconv"
)

// Cards travel as compact "RankSuit" codes ("AS", "10H", "KD") both on
// the wire and in the store, so the package works on strings rather
// than a struct type.

var (
	Ranks = []string{"A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}
	Suits = []string{"S", "H", "D", "C"}
)

// NewShoe builds a shuffled shoe of decks*52 card codes. The caller
// owns the rand source so deals are reproducible in tests.
func NewShoe(decks int, r *rand.Rand) []string {
	shoe := make([]string, 0, decks*52)
	for d := 0; d < decks; d++ {
		for _, rank := range Ranks {
			for _, suit := range Suits {
				shoe = append(shoe, rank+suit)
			}
		}
	}
	r.Shuffle(len(shoe), func(i, j int) {
		shoe[i], shoe[j] = shoe[j], shoe[i]
	})
	return shoe
}

// Rank strips the suit from a card code.
func Rank(card string) string {
	if len(card) < 2 {
		return card
	}
	return card[:len(card)-1]
}

// CardValue returns the blackjack value of a rank. Aces count as 1
// here; soft promotion happens in HandValue.
func CardValue(rank string) (int, error) {
	switch rank {
	case "J", "Q", "K":
		return 10, nil
	case "A":
		return 1, nil
	}
	n, err := strconv.Atoi(rank)
	if err != nil || n < 2 || n > 10 {
		return 0, fmt.Errorf("invalid card rank: %q", rank)
	}
	return n, nil
}

// HandValue computes the best blackjack total for a hand. It sums all
// aces as 1, then promotes one ace to 11 while that keeps the total at
// 21 or under. isSoft reports whether a promoted ace is in play.
func HandValue(hand []string) (total int, isSoft bool) {
	aces := 0
	for _, card := range hand {
		rank := Rank(card)
		if rank == "A" {
			aces++
		}
		v, err := CardValue(rank)
		if err != nil {
			continue
		}
		total += v
	}
	for aces > 0 && total+10 <= 21 {
		total += 10
		aces--
		isSoft = true
	}
	return total, isSoft
}

// IsBlackjack reports a natural: 21 on exactly two cards.
func IsBlackjack(hand []string) bool {
	if len(hand) != 2 {
		return false
	}
	total, _ := HandValue(hand)
	return total == 21
}
