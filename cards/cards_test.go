package cards

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShoe(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	shoe := NewShoe(6, r)
	assert.Len(t, shoe, 6*52)

	// Every card appears exactly decks times.
	counts := map[string]int{}
	for _, card := range shoe {
		counts[card]++
	}
	assert.Len(t, counts, 52)
	for card, n := range counts {
		assert.Equal(t, 6, n, "card %s", card)
	}
}

func TestCardValue(t *testing.T) {
	cases := map[string]int{
		"A": 1, "2": 2, "9": 9, "10": 10, "J": 10, "Q": 10, "K": 10,
	}
	for rank, want := range cases {
		got, err := CardValue(rank)
		require.NoError(t, err)
		assert.Equal(t, want, got, "rank %s", rank)
	}

	_, err := CardValue("X")
	assert.Error(t, err)
	_, err = CardValue("11")
	assert.Error(t, err)
}

func TestHandValue(t *testing.T) {
	tests := []struct {
		name     string
		hand     []string
		total    int
		isSoft   bool
	}{
		{"hard 20", []string{"10S", "QD"}, 20, false},
		{"blackjack", []string{"AS", "KD"}, 21, true},
		{"soft 17", []string{"AS", "6D"}, 17, true},
		{"two aces", []string{"AS", "AD"}, 12, true},
		{"hard after demotion", []string{"AS", "6D", "9C"}, 16, false},
		{"bust", []string{"KS", "QD", "5H"}, 25, false},
		{"three aces", []string{"AS", "AD", "AC"}, 13, true},
		{"empty", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total, isSoft := HandValue(tt.hand)
			assert.Equal(t, tt.total, total)
			assert.Equal(t, tt.isSoft, isSoft)
		})
	}
}

func TestHandValuePermutationInvariant(t *testing.T) {
	hand := []string{"AS", "6D", "9C", "2H"}
	perm := []string{"9C", "2H", "AS", "6D"}

	t1, s1 := HandValue(hand)
	t2, s2 := HandValue(perm)
	assert.Equal(t, t1, t2)
	assert.Equal(t, s1, s2)
}

func TestIsBlackjack(t *testing.T) {
	assert.True(t, IsBlackjack([]string{"AS", "QD"}))
	assert.False(t, IsBlackjack([]string{"AS", "6D", "4C"})) // 21 on three cards
	assert.False(t, IsBlackjack([]string{"10S", "QD"}))
}
