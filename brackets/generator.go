package brackets

import (
	"context"

	"github.com/markwoz/kart-league/models"
)

type GenerateBracketParams struct {
	// SeededPlayerIDs is ordered by seed, rank 1 first.
	SeededPlayerIDs []int
}

// BracketMatch is a structural shell produced by a generator. Player slots
// are filled where already known; an empty slot is fed by whichever shell
// carries an edge pointing at it.
type BracketMatch struct {
	UID          string
	Bracket      models.BracketSide
	Round        int
	OrderInRound int

	Player1ID *int
	Player2ID *int

	// Edges to the downstream shells this match's winner and loser feed.
	// An empty UID means the path ends here: elimination for the loser,
	// the tournament for the grand final winner.
	WinnerToUID  string
	WinnerToSlot int
	LoserToUID   string
	LoserToSlot  int
}

type BracketGenerator interface {
	GenerateBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketMatch, error)

	GetName() string
}
