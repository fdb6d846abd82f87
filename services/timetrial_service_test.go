package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markwoz/kart-league/models"
)

type timeTrialFixture struct {
	repo    *memTimeTrialRepo
	service TimeTrialService
}

func newTimeTrialFixture(courses ...string) *timeTrialFixture {
	f := &timeTrialFixture{repo: newMemTimeTrialRepo()}
	tournaments := newMemTournamentRepo(&models.Tournament{
		ID:      1,
		Name:    "Time Attack Open",
		Status:  models.TournamentActive,
		Courses: courses,
	})
	players := newMemPlayerRepo(
		&models.Player{ID: 10, Nickname: "ayla"},
		&models.Player{ID: 20, Nickname: "brook"},
	)
	f.service = NewTimeTrialService(f.repo, tournaments, players, testHub(), testLogger())
	return f
}

func TestParseLapTime(t *testing.T) {
	tests := []struct {
		raw     string
		ms      int64
		wantErr bool
	}{
		{"1:23.456", 83_456, false},
		{"0:59.999", 59_999, false},
		{"12:00.000", 720_000, false},
		{"1:60.000", 0, true},
		{"1:23.45", 0, true},
		{"83.456", 0, true},
		{"", 0, true},
		{"1:23,456", 0, true},
	}
	for _, tt := range tests {
		ms, err := ParseLapTime(tt.raw)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidTimeFormat, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.ms, ms, tt.raw)
		assert.Equal(t, tt.raw, FormatLapTime(ms), "round trip %s", tt.raw)
	}
}

func TestEnter(t *testing.T) {
	f := newTimeTrialFixture("Rainbow Road")

	entry, err := f.service.Enter(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, entry.Lives)
	assert.False(t, entry.Eliminated)

	_, err = f.service.Enter(context.Background(), 1, 10)
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)

	_, err = f.service.Enter(context.Background(), 99, 10)
	assert.ErrorIs(t, err, ErrTournamentNotFound)

	_, err = f.service.Enter(context.Background(), 1, 99)
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestSubmitTime_TotalsAndRanks(t *testing.T) {
	f := newTimeTrialFixture("Rainbow Road", "Maple Treeway")

	first, err := f.service.Enter(context.Background(), 1, 10)
	require.NoError(t, err)
	second, err := f.service.Enter(context.Background(), 1, 20)
	require.NoError(t, err)

	// A partial set of times leaves the total and rank open.
	entry, err := f.service.SubmitTime(context.Background(), first.ID, "Rainbow Road", "1:30.000", asPlayer(10))
	require.NoError(t, err)
	assert.Nil(t, entry.TotalTime)
	assert.Nil(t, entry.Rank)

	entry, err = f.service.SubmitTime(context.Background(), first.ID, "Maple Treeway", "2:00.000", asPlayer(10))
	require.NoError(t, err)
	require.NotNil(t, entry.TotalTime)
	assert.Equal(t, int64(210_000), *entry.TotalTime)
	require.NotNil(t, entry.Rank)
	assert.Equal(t, 1, *entry.Rank)

	// A faster full set takes over rank 1.
	_, err = f.service.SubmitTime(context.Background(), second.ID, "Rainbow Road", "1:25.000", asPlayer(20))
	require.NoError(t, err)
	entry, err = f.service.SubmitTime(context.Background(), second.ID, "Maple Treeway", "1:55.000", asPlayer(20))
	require.NoError(t, err)
	require.NotNil(t, entry.Rank)
	assert.Equal(t, 1, *entry.Rank)

	board, err := f.service.Leaderboard(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, 20, board[0].PlayerID)
	assert.Equal(t, 10, board[1].PlayerID)
	require.NotNil(t, board[1].Rank)
	assert.Equal(t, 2, *board[1].Rank)
}

func TestSubmitTime_KeepsOnlyImprovements(t *testing.T) {
	f := newTimeTrialFixture("Rainbow Road")
	entry, err := f.service.Enter(context.Background(), 1, 10)
	require.NoError(t, err)

	_, err = f.service.SubmitTime(context.Background(), entry.ID, "Rainbow Road", "1:30.000", asPlayer(10))
	require.NoError(t, err)

	// A slower submission leaves the stored time alone.
	got, err := f.service.SubmitTime(context.Background(), entry.ID, "Rainbow Road", "1:35.000", asPlayer(10))
	require.NoError(t, err)
	assert.Equal(t, "1:30.000", got.Times["Rainbow Road"])

	got, err = f.service.SubmitTime(context.Background(), entry.ID, "Rainbow Road", "1:28.500", asPlayer(10))
	require.NoError(t, err)
	assert.Equal(t, "1:28.500", got.Times["Rainbow Road"])
}

func TestSubmitTime_Validation(t *testing.T) {
	f := newTimeTrialFixture("Rainbow Road")
	entry, err := f.service.Enter(context.Background(), 1, 10)
	require.NoError(t, err)

	_, err = f.service.SubmitTime(context.Background(), entry.ID, "Rainbow Road", "fast", asPlayer(10))
	assert.ErrorIs(t, err, ErrInvalidTimeFormat)

	_, err = f.service.SubmitTime(context.Background(), entry.ID, "Moo Moo Meadows", "1:30.000", asPlayer(10))
	assert.ErrorIs(t, err, ErrUnknownCourse)

	_, err = f.service.SubmitTime(context.Background(), entry.ID, "Rainbow Road", "1:30.000", asPlayer(20))
	assert.ErrorIs(t, err, ErrForbiddenOperation)

	_, err = f.service.SubmitTime(context.Background(), 999, "Rainbow Road", "1:30.000", asPlayer(10))
	assert.ErrorIs(t, err, ErrTimeTrialNotFound)
}

func TestDecrementLives(t *testing.T) {
	f := newTimeTrialFixture("Rainbow Road")
	entry, err := f.service.Enter(context.Background(), 1, 10)
	require.NoError(t, err)

	_, err = f.service.DecrementLives(context.Background(), entry.ID, asPlayer(10))
	assert.ErrorIs(t, err, ErrForbiddenOperation)

	for want := 2; want >= 1; want-- {
		got, err := f.service.DecrementLives(context.Background(), entry.ID, admin)
		require.NoError(t, err)
		assert.Equal(t, want, got.Lives)
		assert.False(t, got.Eliminated)
	}

	got, err := f.service.DecrementLives(context.Background(), entry.ID, admin)
	require.NoError(t, err)
	assert.Zero(t, got.Lives)
	assert.True(t, got.Eliminated)

	// Eliminated entries stop both further decrements and time submissions.
	_, err = f.service.DecrementLives(context.Background(), entry.ID, admin)
	assert.ErrorIs(t, err, ErrTimeTrialEliminated)
	_, err = f.service.SubmitTime(context.Background(), entry.ID, "Rainbow Road", "1:30.000", asPlayer(10))
	assert.ErrorIs(t, err, ErrTimeTrialEliminated)
}
