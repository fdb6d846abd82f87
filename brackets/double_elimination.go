package brackets

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sort"

	"github.com/markwoz/kart-league/models"
)

// GrandFinalUID identifies the grand final shell. The reset match is created
// lazily at advancement time and never appears in generator output.
const GrandFinalUID = "GF"

// MaxEntrants bounds bracket size; the league caps double elimination fields.
const MaxEntrants = 64

type DoubleEliminationGenerator struct {
}

func NewDoubleEliminationGenerator() BracketGenerator {
	return &DoubleEliminationGenerator{}
}

func (g *DoubleEliminationGenerator) GetName() string {
	return "DoubleElimination"
}

type deSlot struct {
	player *int
	bye    bool
	// pending otherwise: the slot is fed by a live upstream edge
}

type deEdge struct {
	target *deMatch
	slot   int
}

type deMatch struct {
	uid          string
	side         models.BracketSide
	round        int
	orderInRound int
	slots        [2]deSlot

	winnerTo *deEdge
	loserTo  *deEdge

	removed bool
}

// GenerateBracket builds the full double-elimination structure for the given
// seeds: a winners bracket of rounds 1..k over the next power of two, the
// interleaved losers bracket (minor round 2j-1 pairs losers-bracket survivors,
// major round 2j mixes in the winners-round-(j+1) losers), and one grand
// final. Byes are contracted out of the graph at build time, so every emitted
// shell is playable and every edge points at a real shell.
func (g *DoubleEliminationGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketMatch, error) {
	seeds := params.SeededPlayerIDs
	n := len(seeds)

	if n < 2 {
		return nil, errors.New("not enough entrants to generate a double elimination bracket (minimum 2)")
	}
	if n > MaxEntrants {
		return nil, fmt.Errorf("too many entrants: %d (maximum %d)", n, MaxEntrants)
	}

	numRounds := bits.Len(uint(n - 1))
	size := 1 << numRounds

	// Winners bracket shells.
	winners := make([][]*deMatch, numRounds+1)
	for r := 1; r <= numRounds; r++ {
		count := size >> r
		winners[r] = make([]*deMatch, count)
		for i := 0; i < count; i++ {
			winners[r][i] = &deMatch{
				uid:          fmt.Sprintf("W%dM%d", r, i+1),
				side:         models.BracketWinners,
				round:        r,
				orderInRound: i + 1,
			}
		}
	}
	for r := 1; r < numRounds; r++ {
		for i, m := range winners[r] {
			m.winnerTo = &deEdge{target: winners[r+1][i/2], slot: i%2 + 1}
		}
	}

	// Losers bracket shells: pairs of rounds (2j-1, 2j) for j=1..k-1, both
	// holding size/2^(j+1) matches.
	losers := make([][]*deMatch, 2*numRounds-1)
	for j := 1; j <= numRounds-1; j++ {
		count := size >> (j + 1)
		for _, d := range []int{2*j - 1, 2 * j} {
			losers[d] = make([]*deMatch, count)
			for i := 0; i < count; i++ {
				losers[d][i] = &deMatch{
					uid:          fmt.Sprintf("L%dM%d", d, i+1),
					side:         models.BracketLosers,
					round:        d,
					orderInRound: i + 1,
				}
			}
		}
	}
	for j := 1; j <= numRounds-1; j++ {
		for i, m := range losers[2*j-1] {
			m.winnerTo = &deEdge{target: losers[2*j][i], slot: 2}
		}
		if j < numRounds-1 {
			for i, m := range losers[2*j] {
				m.winnerTo = &deEdge{target: losers[2*j+1][i/2], slot: i%2 + 1}
			}
		}
	}

	// Loser drops. Round 1 losers fill both slots of losers round 1; later
	// winners rounds feed slot 1 of the corresponding major round, with the
	// order reversed on alternating rounds so a player does not immediately
	// rematch the opponent who beat them.
	if numRounds >= 2 {
		for i, m := range winners[1] {
			m.loserTo = &deEdge{target: losers[1][i/2], slot: i%2 + 1}
		}
		for r := 2; r <= numRounds; r++ {
			drop := losers[2*(r-1)]
			count := len(drop)
			for i, m := range winners[r] {
				idx := i
				if r%2 == 0 {
					idx = count - 1 - i
				}
				m.loserTo = &deEdge{target: drop[idx], slot: 1}
			}
		}
	}

	// Grand final: winners champion vs losers champion. With only two
	// entrants there is no losers bracket; the single match's loser goes
	// straight to the grand final.
	grandFinal := &deMatch{
		uid:          GrandFinalUID,
		side:         models.BracketGrandFinal,
		round:        1,
		orderInRound: 1,
	}
	winners[numRounds][0].winnerTo = &deEdge{target: grandFinal, slot: 1}
	if numRounds >= 2 {
		losers[2*(numRounds-1)][0].winnerTo = &deEdge{target: grandFinal, slot: 2}
	} else {
		winners[1][0].loserTo = &deEdge{target: grandFinal, slot: 2}
	}

	// Standard seed pairing (1 vs N, 2 vs N-1, ...); seeds past the real
	// entrant count are byes.
	positions := seedOrder(size)
	for i, m := range winners[1] {
		for s := 0; s < 2; s++ {
			seed := positions[2*i+s]
			if seed <= n {
				pid := seeds[seed-1]
				m.slots[s].player = &pid
			} else {
				m.slots[s].bye = true
			}
		}
	}

	all := make([]*deMatch, 0, 2*size)
	for r := 1; r <= numRounds; r++ {
		all = append(all, winners[r]...)
	}
	for d := 1; d <= 2*(numRounds-1); d++ {
		all = append(all, losers[d]...)
	}
	all = append(all, grandFinal)

	if err := contractByes(all); err != nil {
		return nil, err
	}

	out := make([]*BracketMatch, 0, len(all))
	for _, m := range all {
		if m.removed {
			continue
		}
		bm := &BracketMatch{
			UID:          m.uid,
			Bracket:      m.side,
			Round:        m.round,
			OrderInRound: m.orderInRound,
			Player1ID:    m.slots[0].player,
			Player2ID:    m.slots[1].player,
		}
		if m.winnerTo != nil {
			bm.WinnerToUID = m.winnerTo.target.uid
			bm.WinnerToSlot = m.winnerTo.slot
		}
		if m.loserTo != nil {
			bm.LoserToUID = m.loserTo.target.uid
			bm.LoserToSlot = m.loserTo.slot
		}
		out = append(out, bm)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Bracket != out[j].Bracket {
			return bracketOrder(out[i].Bracket) < bracketOrder(out[j].Bracket)
		}
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].OrderInRound < out[j].OrderInRound
	})

	return out, nil
}

func bracketOrder(side models.BracketSide) int {
	switch side {
	case models.BracketWinners:
		return 0
	case models.BracketLosers:
		return 1
	default:
		return 2
	}
}

// seedOrder returns bracket slot positions for the classic seeding where the
// top two seeds can only meet in the final: size 8 yields 1,8,4,5,2,7,3,6.
func seedOrder(size int) []int {
	order := []int{1}
	for len(order) < size {
		doubled := make([]int, 0, len(order)*2)
		mirror := len(order)*2 + 1
		for _, s := range order {
			doubled = append(doubled, s, mirror-s)
		}
		order = doubled
	}
	return order
}

// contractByes removes bye matches from the graph until a fixpoint. A match
// with one bye slot and a known player advances the player immediately; one
// with a bye slot and a pending feed is skipped by rewiring the feeder's edge
// straight to this match's winner target. Either way the loser path of a bye
// match is itself a bye, which is what makes cascades work.
func contractByes(all []*deMatch) error {
	for changed := true; changed; {
		changed = false
		for _, m := range all {
			if m.removed {
				continue
			}
			bye1, bye2 := m.slots[0].bye, m.slots[1].bye

			switch {
			case bye1 && bye2:
				m.removed = true
				propagateBye(m.winnerTo)
				propagateBye(m.loserTo)
				changed = true

			case bye1 || bye2:
				other := 0
				if bye1 {
					other = 1
				}
				if p := m.slots[other].player; p != nil {
					m.removed = true
					propagatePlayer(m.winnerTo, p)
					propagateBye(m.loserTo)
					changed = true
					break
				}
				if !redirectFeeder(all, m, other+1) {
					return fmt.Errorf("bracket contraction: no live feeder for pending slot %d of %s", other+1, m.uid)
				}
				m.removed = true
				propagateBye(m.loserTo)
				changed = true
			}
		}
	}
	return nil
}

func propagatePlayer(e *deEdge, playerID *int) {
	if e == nil {
		return
	}
	e.target.slots[e.slot-1].player = playerID
}

func propagateBye(e *deEdge) {
	if e == nil {
		return
	}
	e.target.slots[e.slot-1].bye = true
}

// redirectFeeder repoints the edge feeding (m, slot) at m's own winner
// target, cutting m out of the path.
func redirectFeeder(all []*deMatch, m *deMatch, slot int) bool {
	for _, f := range all {
		if f.removed {
			continue
		}
		if f.winnerTo != nil && f.winnerTo.target == m && f.winnerTo.slot == slot {
			f.winnerTo = copyEdge(m.winnerTo)
			return true
		}
		if f.loserTo != nil && f.loserTo.target == m && f.loserTo.slot == slot {
			f.loserTo = copyEdge(m.winnerTo)
			return true
		}
	}
	return false
}

func copyEdge(e *deEdge) *deEdge {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}
