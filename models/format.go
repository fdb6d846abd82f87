package models

import (
	"errors"
	"fmt"
)

type Format string

const (
	FormatBattle     Format = "battle"
	FormatMatchRace  Format = "match_race"
	FormatGrandPrix  Format = "grand_prix"
	FormatTimeAttack Format = "time_attack"
)

var ErrUnknownFormat = errors.New("unknown format")

type MatchOutcome int

const (
	OutcomeLoss MatchOutcome = iota
	OutcomeTie
	OutcomeWin
)

// ScoringRules describes how one head-to-head format is scored. Each format is
// a row of data consumed uniformly by the reconciliation engine and the
// standings recalculator, instead of per-format branches.
type ScoringRules struct {
	Format Format

	// WinThreshold is the clinching score for race-tally formats
	// (first to 3 of 5 races, first to 7 battle points). Zero means the
	// higher cumulative total wins.
	WinThreshold int

	// RaceCount is the exact number of races when fixed (grand prix),
	// zero when variable.
	RaceCount int

	// PointsTable is indexed by finishing position; positions past the
	// end of the table score nothing.
	PointsTable []int

	// MaxPosition bounds a reported finishing position.
	MaxPosition int

	// TiesAllowed holds for qualification play only; bracket matches must
	// always be decided.
	TiesAllowed bool
}

var scoringRules = map[Format]ScoringRules{
	FormatBattle: {
		Format:       FormatBattle,
		WinThreshold: 7,
		TiesAllowed:  false,
	},
	FormatMatchRace: {
		Format:       FormatMatchRace,
		WinThreshold: 3,
		TiesAllowed:  false,
	},
	FormatGrandPrix: {
		Format:      FormatGrandPrix,
		RaceCount:   4,
		PointsTable: []int{0, 9, 6, 3, 1},
		MaxPosition: 8,
		TiesAllowed: true,
	},
}

func Rules(f Format) (ScoringRules, error) {
	rules, ok := scoringRules[f]
	if !ok {
		return ScoringRules{}, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
	return rules, nil
}

// HeadToHeadFormats lists the formats played as two-player matches.
// Time attack is scored against the clock and has no match entity.
func HeadToHeadFormats() []Format {
	return []Format{FormatBattle, FormatMatchRace, FormatGrandPrix}
}

func (r ScoringRules) PointsForPosition(pos int) int {
	if pos <= 0 || pos >= len(r.PointsTable) {
		return 0
	}
	return r.PointsTable[pos]
}

func (r ScoringRules) ScoreFromPositions(positions []int) int {
	total := 0
	for _, pos := range positions {
		total += r.PointsForPosition(pos)
	}
	return total
}

// IsWin reports whether the first score beats the second under these rules.
func (r ScoringRules) IsWin(score, against int) bool {
	if r.WinThreshold > 0 {
		return score >= r.WinThreshold && score > against
	}
	return score > against
}

// IsDecided reports whether exactly one side has won. A completed match must
// satisfy this regardless of format.
func (r ScoringRules) IsDecided(score1, score2 int) bool {
	return r.IsWin(score1, score2) != r.IsWin(score2, score1)
}

func (r ScoringRules) Outcome(score, against int) MatchOutcome {
	switch {
	case score > against:
		return OutcomeWin
	case score < against:
		return OutcomeLoss
	default:
		return OutcomeTie
	}
}

// Qualification points per match outcome, shared by all head-to-head formats.
const (
	QualPointsWin  = 3
	QualPointsTie  = 1
	QualPointsLoss = 0
)

func QualPoints(o MatchOutcome) int {
	switch o {
	case OutcomeWin:
		return QualPointsWin
	case OutcomeTie:
		return QualPointsTie
	default:
		return QualPointsLoss
	}
}

// ValidateReport checks the structural validity of one player's report:
// course uniqueness, position ranges, and consistency between the claimed
// scores and the race-by-race detail. It does not compare against the other
// player's report.
func (r ScoringRules) ValidateReport(score1, score2 int, races []RaceResult) error {
	if score1 < 0 || score2 < 0 {
		return errors.New("scores must not be negative")
	}

	seen := make(map[string]struct{}, len(races))
	for i, race := range races {
		if race.Course == "" {
			return fmt.Errorf("race %d: course is required", i+1)
		}
		if _, dup := seen[race.Course]; dup {
			return fmt.Errorf("race %d: course %q appears more than once", i+1, race.Course)
		}
		seen[race.Course] = struct{}{}
	}

	if r.RaceCount > 0 {
		// Points format: positions per race, fixed race count.
		if len(races) != r.RaceCount {
			return fmt.Errorf("expected %d races, got %d", r.RaceCount, len(races))
		}
		total1, total2 := 0, 0
		for i, race := range races {
			if race.P1Position < 1 || race.P1Position > r.MaxPosition ||
				race.P2Position < 1 || race.P2Position > r.MaxPosition {
				return fmt.Errorf("race %d: positions must be between 1 and %d", i+1, r.MaxPosition)
			}
			if race.P1Position == race.P2Position {
				return fmt.Errorf("race %d: players cannot share position %d", i+1, race.P1Position)
			}
			total1 += r.PointsForPosition(race.P1Position)
			total2 += r.PointsForPosition(race.P2Position)
		}
		if total1 != score1 || total2 != score2 {
			return fmt.Errorf("scores %d-%d do not match race positions (computed %d-%d)", score1, score2, total1, total2)
		}
		return nil
	}

	// Race-tally format: scores count races won, first to the threshold.
	winner := score1
	loser := score2
	if score2 > score1 {
		winner, loser = score2, score1
	}
	if winner != r.WinThreshold {
		return fmt.Errorf("winning score must be exactly %d, got %d", r.WinThreshold, winner)
	}
	if loser >= r.WinThreshold {
		return fmt.Errorf("both scores meet the win threshold %d", r.WinThreshold)
	}

	if len(races) > 0 {
		if len(races) != score1+score2 {
			return fmt.Errorf("%d races reported but scores add up to %d", len(races), score1+score2)
		}
		wins1, wins2 := 0, 0
		for i, race := range races {
			switch race.Winner {
			case 1:
				wins1++
			case 2:
				wins2++
			default:
				return fmt.Errorf("race %d: winner must be 1 or 2", i+1)
			}
		}
		if wins1 != score1 || wins2 != score2 {
			return fmt.Errorf("race winners %d-%d do not match scores %d-%d", wins1, wins2, score1, score2)
		}
	}
	return nil
}
