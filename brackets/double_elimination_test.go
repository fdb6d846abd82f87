package brackets

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markwoz/kart-league/models"
)

func generate(t *testing.T, seeds []int) []*BracketMatch {
	t.Helper()
	out, err := NewDoubleEliminationGenerator().GenerateBracket(context.Background(), GenerateBracketParams{
		SeededPlayerIDs: seeds,
	})
	require.NoError(t, err)
	return out
}

func byUID(matches []*BracketMatch) map[string]*BracketMatch {
	m := make(map[string]*BracketMatch, len(matches))
	for _, match := range matches {
		m[match.UID] = match
	}
	return m
}

func TestGenerateBracket_EntrantBounds(t *testing.T) {
	gen := NewDoubleEliminationGenerator()

	_, err := gen.GenerateBracket(context.Background(), GenerateBracketParams{SeededPlayerIDs: []int{1}})
	assert.Error(t, err)

	tooMany := make([]int, MaxEntrants+1)
	for i := range tooMany {
		tooMany[i] = i + 1
	}
	_, err = gen.GenerateBracket(context.Background(), GenerateBracketParams{SeededPlayerIDs: tooMany})
	assert.Error(t, err)
}

func TestGenerateBracket_EightEntrants(t *testing.T) {
	seeds := []int{101, 102, 103, 104, 105, 106, 107, 108}
	out := generate(t, seeds)

	// A full double-elimination field of n plays 2n-2 matches before any
	// grand final reset.
	assert.Len(t, out, 14)

	counts := map[models.BracketSide]int{}
	for _, m := range out {
		counts[m.Bracket]++
	}
	assert.Equal(t, 7, counts[models.BracketWinners])
	assert.Equal(t, 6, counts[models.BracketLosers])
	assert.Equal(t, 1, counts[models.BracketGrandFinal])

	index := byUID(out)

	// Classic seeding: 1v8, 4v5, 2v7, 3v6 across the first round.
	pairings := []struct {
		uid   string
		seedA int
		seedB int
	}{
		{"W1M1", 1, 8},
		{"W1M2", 4, 5},
		{"W1M3", 2, 7},
		{"W1M4", 3, 6},
	}
	for _, p := range pairings {
		m := index[p.uid]
		require.NotNil(t, m, p.uid)
		require.NotNil(t, m.Player1ID)
		require.NotNil(t, m.Player2ID)
		assert.Equal(t, seeds[p.seedA-1], *m.Player1ID, p.uid)
		assert.Equal(t, seeds[p.seedB-1], *m.Player2ID, p.uid)
	}

	// Grand final is fed by the winners final and the losers final.
	wbFinal := index["W3M1"]
	require.NotNil(t, wbFinal)
	assert.Equal(t, GrandFinalUID, wbFinal.WinnerToUID)
	assert.Equal(t, 1, wbFinal.WinnerToSlot)

	lbFinal := index["L4M1"]
	require.NotNil(t, lbFinal)
	assert.Equal(t, GrandFinalUID, lbFinal.WinnerToUID)
	assert.Equal(t, 2, lbFinal.WinnerToSlot)

	gf := index[GrandFinalUID]
	require.NotNil(t, gf)
	assert.Empty(t, gf.WinnerToUID)
	assert.Empty(t, gf.LoserToUID)

	// First-round losers pair up in losers round 1.
	assert.Equal(t, "L1M1", index["W1M1"].LoserToUID)
	assert.Equal(t, 1, index["W1M1"].LoserToSlot)
	assert.Equal(t, "L1M1", index["W1M2"].LoserToUID)
	assert.Equal(t, 2, index["W1M2"].LoserToSlot)

	// Second-round losers drop into the major round in reversed order so
	// they cannot immediately rematch who just beat them.
	assert.Equal(t, "L2M2", index["W2M1"].LoserToUID)
	assert.Equal(t, "L2M1", index["W2M2"].LoserToUID)
	assert.Equal(t, 1, index["W2M1"].LoserToSlot)
}

func TestGenerateBracket_EdgesResolveAndSlotsUnique(t *testing.T) {
	for _, n := range []int{2, 3, 5, 6, 8, 11, 16, 23, 64} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			seeds := make([]int, n)
			for i := range seeds {
				seeds[i] = 1000 + i
			}
			out := generate(t, seeds)
			index := byUID(out)

			fed := map[string]int{}
			for _, m := range out {
				if m.WinnerToUID != "" {
					target, ok := index[m.WinnerToUID]
					require.True(t, ok, "%s winner edge points at missing %s", m.UID, m.WinnerToUID)
					require.Contains(t, []int{1, 2}, m.WinnerToSlot)
					assert.NotEqual(t, m.UID, target.UID)
					fed[fmt.Sprintf("%s/%d", m.WinnerToUID, m.WinnerToSlot)]++
				}
				if m.LoserToUID != "" {
					_, ok := index[m.LoserToUID]
					require.True(t, ok, "%s loser edge points at missing %s", m.UID, m.LoserToUID)
					require.Contains(t, []int{1, 2}, m.LoserToSlot)
					fed[fmt.Sprintf("%s/%d", m.LoserToUID, m.LoserToSlot)]++
				}
			}

			// No slot is fed by two different upstream matches.
			for slot, feeders := range fed {
				assert.Equal(t, 1, feeders, "slot %s has %d feeders", slot, feeders)
			}

			// Every empty slot of every emitted match is fed by exactly
			// one edge; pre-filled slots are not fed at all.
			for _, m := range out {
				for slotNum, player := range map[int]*int{1: m.Player1ID, 2: m.Player2ID} {
					key := fmt.Sprintf("%s/%d", m.UID, slotNum)
					if player != nil {
						assert.Zero(t, fed[key], "pre-filled slot %s must not have a feeder", key)
					} else {
						assert.Equal(t, 1, fed[key], "empty slot %s needs a feeder", key)
					}
				}
			}

			// Exactly one match besides the grand final has no winner edge:
			// none. Every non-final match forwards its winner somewhere.
			for _, m := range out {
				if m.UID == GrandFinalUID {
					continue
				}
				assert.NotEmpty(t, m.WinnerToUID, "%s has no winner edge", m.UID)
			}
		})
	}
}

func TestGenerateBracket_FiveEntrantsByeCascade(t *testing.T) {
	seeds := []int{10, 20, 30, 40, 50}
	out := generate(t, seeds)
	index := byUID(out)

	// Three byes contract away three first-round shells and the whole of
	// losers round 1, leaving 2n-2 = 8 playable matches.
	assert.Len(t, out, 8)
	assert.NotContains(t, index, "W1M1")
	assert.NotContains(t, index, "W1M3")
	assert.NotContains(t, index, "W1M4")
	assert.NotContains(t, index, "L1M1")
	assert.NotContains(t, index, "L1M2")

	// Seed 1 is carried straight into the second round by its bye.
	w2m1 := index["W2M1"]
	require.NotNil(t, w2m1)
	require.NotNil(t, w2m1.Player1ID)
	assert.Equal(t, 10, *w2m1.Player1ID)
	assert.Nil(t, w2m1.Player2ID)

	// Seeds 2 and 3 both had byes and meet directly in round two.
	w2m2 := index["W2M2"]
	require.NotNil(t, w2m2)
	require.NotNil(t, w2m2.Player1ID)
	require.NotNil(t, w2m2.Player2ID)
	assert.Equal(t, 20, *w2m2.Player1ID)
	assert.Equal(t, 30, *w2m2.Player2ID)

	// The only real first-round match is 4 vs 5, and its loser skips the
	// contracted losers round 1.
	w1m2 := index["W1M2"]
	require.NotNil(t, w1m2)
	require.NotNil(t, w1m2.Player1ID)
	require.NotNil(t, w1m2.Player2ID)
	assert.Equal(t, 40, *w1m2.Player1ID)
	assert.Equal(t, 50, *w1m2.Player2ID)
	assert.Equal(t, "L2M1", w1m2.LoserToUID)
	assert.Equal(t, 2, w1m2.LoserToSlot)
}

func TestGenerateBracket_TwoEntrants(t *testing.T) {
	out := generate(t, []int{7, 9})
	require.Len(t, out, 2)
	index := byUID(out)

	w1m1 := index["W1M1"]
	require.NotNil(t, w1m1)
	assert.Equal(t, GrandFinalUID, w1m1.WinnerToUID)
	assert.Equal(t, 1, w1m1.WinnerToSlot)
	// With no losers bracket the single match's loser gets their second
	// chance directly in the grand final.
	assert.Equal(t, GrandFinalUID, w1m1.LoserToUID)
	assert.Equal(t, 2, w1m1.LoserToSlot)
}

func TestSeedOrder(t *testing.T) {
	assert.Equal(t, []int{1, 2}, seedOrder(2))
	assert.Equal(t, []int{1, 4, 2, 3}, seedOrder(4))
	assert.Equal(t, []int{1, 8, 4, 5, 2, 7, 3, 6}, seedOrder(8))
	assert.Equal(t, []int{1, 16, 8, 9, 4, 13, 5, 12, 2, 15, 7, 10, 3, 14, 6, 11}, seedOrder(16))
}
