package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/markwoz/kart-league/brackets"
	"github.com/markwoz/kart-league/models"
	"github.com/markwoz/kart-league/repositories"
)

const (
	roundLabelGrandFinal = "final"
	roundLabelReset      = "reset"
)

// BracketAdvancer is the part of the bracket service the reconciliation
// engine needs: pushing a completed match's winner and loser downstream.
type BracketAdvancer interface {
	// AdvanceFrom propagates the result of a completed bracket match into
	// its downstream slots and returns the ids of the matches it touched.
	// Invoked automatically on completion, and exposed for repair tooling.
	AdvanceFrom(ctx context.Context, matchID int) ([]int, error)
}

type BracketView struct {
	WinnerBracket []*models.Match         `json:"winner_bracket"`
	LoserBracket  []*models.Match         `json:"loser_bracket"`
	GrandFinal    []*models.Match         `json:"grand_final"`
	Standings     []*models.Qualification `json:"standings"`
	Players       []*models.Player        `json:"players"`
}

type BracketService interface {
	BracketAdvancer

	// BuildBracket seeds the top N qualification finishers into a new
	// double-elimination bracket and persists the shells with their edges.
	BuildBracket(ctx context.Context, tournamentID int, format models.Format, topN int, identity models.Identity) ([]*models.Match, error)

	GetBracket(ctx context.Context, tournamentID int, format models.Format) (*BracketView, error)
}

type bracketService struct {
	txManager         repositories.TxManager
	matchRepo         repositories.MatchRepository
	qualificationRepo repositories.QualificationRepository
	tournamentRepo    repositories.TournamentRepository
	playerRepo        repositories.PlayerRepository
	generator         brackets.BracketGenerator
	hub               *brackets.Hub
	logger            *slog.Logger
}

func NewBracketService(
	txManager repositories.TxManager,
	matchRepo repositories.MatchRepository,
	qualificationRepo repositories.QualificationRepository,
	tournamentRepo repositories.TournamentRepository,
	playerRepo repositories.PlayerRepository,
	generator brackets.BracketGenerator,
	hub *brackets.Hub,
	logger *slog.Logger,
) BracketService {
	return &bracketService{
		txManager:         txManager,
		matchRepo:         matchRepo,
		qualificationRepo: qualificationRepo,
		tournamentRepo:    tournamentRepo,
		playerRepo:        playerRepo,
		generator:         generator,
		hub:               hub,
		logger:            logger,
	}
}

func (s *bracketService) BuildBracket(ctx context.Context, tournamentID int, format models.Format, topN int, identity models.Identity) ([]*models.Match, error) {
	if !identity.IsAdmin {
		return nil, ErrForbiddenOperation
	}
	if _, err := models.Rules(format); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if _, err := s.tournamentRepo.GetByID(ctx, tournamentID); err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}

	existing, err := s.matchRepo.ListByTournament(ctx, tournamentID, &format)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches for tournament %d: %w", tournamentID, err)
	}
	for _, m := range existing {
		if m.Bracket != nil {
			return nil, ErrBracketAlreadyBuilt
		}
	}

	standings, err := s.qualificationRepo.ListByTournamentFormat(ctx, tournamentID, format, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list qualification standings: %w", err)
	}
	seeds := make([]int, 0, topN)
	seededRows := make([]*models.Qualification, 0, topN)
	for _, q := range standings {
		if q.Dropped {
			continue
		}
		seeds = append(seeds, q.PlayerID)
		seededRows = append(seededRows, q)
		if topN > 0 && len(seeds) == topN {
			break
		}
	}
	if len(seeds) < 2 {
		return nil, ErrNotEnoughEntrants
	}

	shells, err := s.generator.GenerateBracket(ctx, brackets.GenerateBracketParams{SeededPlayerIDs: seeds})
	if err != nil {
		return nil, fmt.Errorf("failed to generate bracket structure: %w", err)
	}

	var created []*models.Match
	err = s.txManager.Do(ctx, func(tx repositories.SQLExecutor) error {
		created, err = s.persistBracket(ctx, tx, tournamentID, format, shells, seededRows)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.hub.BroadcastToRoom(tournamentRoom(tournamentID), brackets.Message{
		Type:    brackets.EventBracketUpdated,
		Payload: created,
	})
	return created, nil
}

// persistBracket saves generator shells in two passes, the first creating the
// rows, the second rewriting the UID edges as database ids.
func (s *bracketService) persistBracket(
	ctx context.Context,
	tx repositories.SQLExecutor,
	tournamentID int,
	format models.Format,
	shells []*brackets.BracketMatch,
	seededRows []*models.Qualification,
) ([]*models.Match, error) {
	for i, q := range seededRows {
		seeding := i + 1
		if err := s.qualificationRepo.SetSeeding(ctx, tx, q.ID, &seeding); err != nil {
			return nil, fmt.Errorf("failed to store seeding for qualification %d: %w", q.ID, err)
		}
	}

	nextNumber, err := s.matchRepo.NextMatchNumber(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}

	idByUID := make(map[string]int, len(shells))
	created := make([]*models.Match, 0, len(shells))

	for _, shell := range shells {
		side := shell.Bracket
		round := fmt.Sprintf("%d", shell.Round)
		if side == models.BracketGrandFinal {
			round = roundLabelGrandFinal
		}
		match := &models.Match{
			TournamentID: tournamentID,
			Format:       format,
			Bracket:      &side,
			Round:        &round,
			MatchNumber:  nextNumber,
			Player1ID:    shell.Player1ID,
			Player2ID:    shell.Player2ID,
		}
		nextNumber++
		if err := s.matchRepo.Create(ctx, tx, match); err != nil {
			return nil, fmt.Errorf("failed to create bracket match %s: %w", shell.UID, err)
		}
		idByUID[shell.UID] = match.ID
		created = append(created, match)
	}

	for i, shell := range shells {
		var winnerToID, winnerToSlot, loserToID, loserToSlot *int
		if shell.WinnerToUID != "" {
			id, ok := idByUID[shell.WinnerToUID]
			if !ok {
				return nil, fmt.Errorf("bracket shell %s points at unknown winner target %s", shell.UID, shell.WinnerToUID)
			}
			slot := shell.WinnerToSlot
			winnerToID, winnerToSlot = &id, &slot
		}
		if shell.LoserToUID != "" {
			id, ok := idByUID[shell.LoserToUID]
			if !ok {
				return nil, fmt.Errorf("bracket shell %s points at unknown loser target %s", shell.UID, shell.LoserToUID)
			}
			slot := shell.LoserToSlot
			loserToID, loserToSlot = &id, &slot
		}
		if winnerToID == nil && loserToID == nil {
			continue
		}
		if err := s.matchRepo.UpdateEdges(ctx, tx, created[i].ID, winnerToID, winnerToSlot, loserToID, loserToSlot); err != nil {
			return nil, fmt.Errorf("failed to store edges for bracket match %s: %w", shell.UID, err)
		}
		created[i].WinnerToMatchID = winnerToID
		created[i].WinnerToSlot = winnerToSlot
		created[i].LoserToMatchID = loserToID
		created[i].LoserToSlot = loserToSlot
	}

	return created, nil
}

func (s *bracketService) AdvanceFrom(ctx context.Context, matchID int) ([]int, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to read match %d: %w", matchID, err)
	}
	if match.Bracket == nil {
		return nil, ErrNotBracketMatch
	}
	if !match.Completed {
		return nil, ErrMatchNotCompleted
	}
	winner := match.WinnerID()
	loser := match.LoserID()
	if winner == nil {
		return nil, fmt.Errorf("%w: bracket match %d has no winner", ErrValidationFailed, matchID)
	}

	if *match.Bracket == models.BracketGrandFinal {
		return s.advanceFromGrandFinal(ctx, match, *winner)
	}

	affected := make([]int, 0, 2)
	if match.WinnerToMatchID != nil && match.WinnerToSlot != nil {
		filled, err := s.fillSlot(ctx, *match.WinnerToMatchID, *match.WinnerToSlot, *winner)
		if err != nil {
			return affected, err
		}
		if filled {
			affected = append(affected, *match.WinnerToMatchID)
		}
	}
	if match.LoserToMatchID != nil && match.LoserToSlot != nil && loser != nil {
		filled, err := s.fillSlot(ctx, *match.LoserToMatchID, *match.LoserToSlot, *loser)
		if err != nil {
			return affected, err
		}
		if filled {
			affected = append(affected, *match.LoserToMatchID)
		}
	}

	if len(affected) > 0 {
		s.hub.BroadcastToRoom(tournamentRoom(match.TournamentID), brackets.Message{
			Type:    brackets.EventBracketUpdated,
			Payload: map[string]interface{}{"source_match_id": match.ID, "affected_match_ids": affected},
		})
	}
	return affected, nil
}

// advanceFromGrandFinal decides the tournament or creates the reset match.
// The winners-bracket champion sits in slot 1 by construction; if the losers
// champion (slot 2) takes the grand final, both players are at one loss and a
// reset match is created with both slots pre-filled.
func (s *bracketService) advanceFromGrandFinal(ctx context.Context, match *models.Match, winner int) ([]int, error) {
	if match.Round != nil && *match.Round == roundLabelReset {
		s.broadcastDecided(match.TournamentID, winner)
		return nil, nil
	}
	if match.Player1ID != nil && *match.Player1ID == winner {
		s.broadcastDecided(match.TournamentID, winner)
		return nil, nil
	}

	// A replayed advancement (completion trigger racing the repair endpoint,
	// or a retried request) must not mint a second reset match.
	siblings, err := s.matchRepo.ListByTournament(ctx, match.TournamentID, &match.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches for tournament %d: %w", match.TournamentID, err)
	}
	for _, m := range siblings {
		if m.Bracket != nil && *m.Bracket == models.BracketGrandFinal &&
			m.Round != nil && *m.Round == roundLabelReset {
			return nil, nil
		}
	}

	nextNumber, err := s.matchRepo.NextMatchNumber(ctx, nil, match.TournamentID)
	if err != nil {
		return nil, err
	}
	side := models.BracketGrandFinal
	round := roundLabelReset
	reset := &models.Match{
		TournamentID: match.TournamentID,
		Format:       match.Format,
		Bracket:      &side,
		Round:        &round,
		MatchNumber:  nextNumber,
		Player1ID:    match.Player1ID,
		Player2ID:    match.Player2ID,
	}
	if err := s.matchRepo.Create(ctx, nil, reset); err != nil {
		return nil, fmt.Errorf("failed to create grand final reset match: %w", err)
	}

	s.hub.BroadcastToRoom(tournamentRoom(match.TournamentID), brackets.Message{
		Type:    brackets.EventBracketUpdated,
		Payload: reset,
	})
	return []int{reset.ID}, nil
}

func (s *bracketService) broadcastDecided(tournamentID, winnerID int) {
	s.hub.BroadcastToRoom(tournamentRoom(tournamentID), brackets.Message{
		Type:    brackets.EventTournamentDecided,
		Payload: map[string]interface{}{"tournament_id": tournamentID, "winner_id": winnerID},
	})
}

// fillSlot writes the advancing player into a downstream slot. A slot already
// holding the same player is a no-op, which keeps advancement idempotent for
// retried requests. Conflicts are not retried: two matches feeding the same
// slot near-simultaneously needs eyes on it, and a silent retry could
// double-advance a player.
func (s *bracketService) fillSlot(ctx context.Context, targetMatchID, slot, playerID int) (bool, error) {
	target, err := s.matchRepo.GetByID(ctx, targetMatchID)
	if err != nil {
		return false, fmt.Errorf("failed to read downstream match %d: %w", targetMatchID, err)
	}

	occupant := target.Player1ID
	if slot == 2 {
		occupant = target.Player2ID
	}
	if occupant != nil {
		if *occupant == playerID {
			return false, nil
		}
		s.logger.Error("downstream slot already occupied by a different player",
			slog.Int("match_id", targetMatchID), slog.Int("slot", slot),
			slog.Int("occupant", *occupant), slog.Int("advancing", playerID))
		return false, ErrAdvancementConflict
	}

	if err := s.matchRepo.FillSlot(ctx, targetMatchID, target.Version, slot, playerID); err != nil {
		if errors.Is(err, repositories.ErrMatchVersionConflict) {
			return false, ErrAdvancementConflict
		}
		return false, fmt.Errorf("failed to fill slot %d of match %d: %w", slot, targetMatchID, err)
	}
	return true, nil
}

func (s *bracketService) GetBracket(ctx context.Context, tournamentID int, format models.Format) (*BracketView, error) {
	view := &BracketView{
		WinnerBracket: []*models.Match{},
		LoserBracket:  []*models.Match{},
		GrandFinal:    []*models.Match{},
	}

	var matches []*models.Match
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		matches, err = s.matchRepo.ListByTournament(gCtx, tournamentID, &format)
		if err != nil {
			return fmt.Errorf("failed to list matches: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		standings, err := s.qualificationRepo.ListByTournamentFormat(gCtx, tournamentID, format, true)
		if err != nil {
			return fmt.Errorf("failed to list standings: %w", err)
		}
		view.Standings = standings
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	playerIDs := make(map[int]struct{})
	for _, m := range matches {
		if m.Bracket == nil {
			continue
		}
		switch *m.Bracket {
		case models.BracketWinners:
			view.WinnerBracket = append(view.WinnerBracket, m)
		case models.BracketLosers:
			view.LoserBracket = append(view.LoserBracket, m)
		case models.BracketGrandFinal:
			view.GrandFinal = append(view.GrandFinal, m)
		}
		for _, pid := range []*int{m.Player1ID, m.Player2ID} {
			if pid != nil {
				playerIDs[*pid] = struct{}{}
			}
		}
	}

	ids := make([]int, 0, len(playerIDs))
	for id := range playerIDs {
		ids = append(ids, id)
	}
	players, err := s.playerRepo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list bracket players: %w", err)
	}
	view.Players = players

	return view, nil
}
