package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/markwoz/kart-league/brackets"
	"github.com/markwoz/kart-league/models"
	"github.com/markwoz/kart-league/repositories"
	"github.com/markwoz/kart-league/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testHub() *brackets.Hub {
	// Not running; broadcasts to empty rooms are no-ops.
	return brackets.NewHub(testLogger())
}

func intPtr(v int) *int { return &v }

// memMatchRepo mirrors the version-guard semantics of the postgres repository:
// every mutation compares the caller's version and bumps it on success.
type memMatchRepo struct {
	mu      sync.Mutex
	nextID  int
	matches map[int]*models.Match

	// forceConflicts makes the next N mutations fail with a version
	// conflict regardless of the stored version.
	forceConflicts int
}

func newMemMatchRepo() *memMatchRepo {
	return &memMatchRepo{nextID: 1, matches: make(map[int]*models.Match)}
}

func (r *memMatchRepo) clone(m *models.Match) *models.Match {
	c := *m
	return &c
}

func (r *memMatchRepo) seed(m *models.Match) *models.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == 0 {
		m.ID = r.nextID
		r.nextID++
	} else if m.ID >= r.nextID {
		r.nextID = m.ID + 1
	}
	if m.Version == 0 {
		m.Version = 1
	}
	r.matches[m.ID] = r.clone(m)
	return r.clone(m)
}

func (r *memMatchRepo) Create(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	match.ID = r.nextID
	r.nextID++
	match.Version = 1
	r.matches[match.ID] = r.clone(match)
	return nil
}

func (r *memMatchRepo) GetByID(ctx context.Context, id int) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	return r.clone(m), nil
}

func (r *memMatchRepo) ListByTournament(ctx context.Context, tournamentID int, format *models.Format) ([]*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Match, 0)
	for _, m := range r.matches {
		if m.TournamentID != tournamentID {
			continue
		}
		if format != nil && m.Format != *format {
			continue
		}
		out = append(out, r.clone(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchNumber < out[j].MatchNumber })
	return out, nil
}

func (r *memMatchRepo) ListCompletedByPlayer(ctx context.Context, tournamentID int, format models.Format, playerID int) ([]*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Match, 0)
	for _, m := range r.matches {
		if m.TournamentID != tournamentID || m.Format != format || !m.Completed {
			continue
		}
		if m.SlotOf(playerID) == 0 {
			continue
		}
		out = append(out, r.clone(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchNumber < out[j].MatchNumber })
	return out, nil
}

func (r *memMatchRepo) NextMatchNumber(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	max := 0
	for _, m := range r.matches {
		if m.TournamentID == tournamentID && m.MatchNumber > max {
			max = m.MatchNumber
		}
	}
	return max + 1, nil
}

func (r *memMatchRepo) UpdateEdges(ctx context.Context, exec repositories.SQLExecutor, matchID int, winnerToID, winnerToSlot, loserToID, loserToSlot *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[matchID]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.WinnerToMatchID = winnerToID
	m.WinnerToSlot = winnerToSlot
	m.LoserToMatchID = loserToID
	m.LoserToSlot = loserToSlot
	return nil
}

func (r *memMatchRepo) guard(matchID, expectedVersion int, requireOpen bool) (*models.Match, error) {
	if r.forceConflicts > 0 {
		r.forceConflicts--
		return nil, repositories.ErrMatchVersionConflict
	}
	m, ok := r.matches[matchID]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	if m.Version != expectedVersion {
		return nil, repositories.ErrMatchVersionConflict
	}
	if requireOpen && m.Completed {
		return nil, repositories.ErrMatchVersionConflict
	}
	return m, nil
}

func (r *memMatchRepo) UpdateReport(ctx context.Context, matchID, expectedVersion, slot int, score1, score2 int, races models.RaceList) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.guard(matchID, expectedVersion, true)
	if err != nil {
		return err
	}
	if slot == 1 {
		m.P1ReportedScore1, m.P1ReportedScore2, m.P1ReportedRaces = intPtr(score1), intPtr(score2), races
	} else {
		m.P2ReportedScore1, m.P2ReportedScore2, m.P2ReportedRaces = intPtr(score1), intPtr(score2), races
	}
	m.Version++
	return nil
}

func (r *memMatchRepo) ConfirmResult(ctx context.Context, matchID, expectedVersion int, score1, score2 int, races models.RaceList) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.guard(matchID, expectedVersion, true)
	if err != nil {
		return err
	}
	m.Score1, m.Score2, m.Races = intPtr(score1), intPtr(score2), races
	m.Completed = true
	m.Version++
	return nil
}

func (r *memMatchRepo) FillSlot(ctx context.Context, matchID, expectedVersion, slot, playerID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.guard(matchID, expectedVersion, false)
	if err != nil {
		return err
	}
	target := &m.Player1ID
	if slot == 2 {
		target = &m.Player2ID
	}
	if *target != nil && **target != playerID {
		return repositories.ErrMatchVersionConflict
	}
	*target = intPtr(playerID)
	m.Version++
	return nil
}

func (r *memMatchRepo) SetEvidenceKey(ctx context.Context, matchID, expectedVersion int, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.guard(matchID, expectedVersion, false)
	if err != nil {
		return err
	}
	m.EvidenceKey = &key
	m.Version++
	return nil
}

type memAuditRepo struct {
	mu         sync.Mutex
	entries    []repositories.ScoreAuditRecord
	characters []string
}

func (r *memAuditRepo) RecordScoreEntry(ctx context.Context, record repositories.ScoreAuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, record)
	return nil
}

func (r *memAuditRepo) RecordCharacterUsage(ctx context.Context, matchID, playerID int, character string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.characters = append(r.characters, character)
	return nil
}

type memQualificationRepo struct {
	mu     sync.Mutex
	nextID int
	rows   map[int]*models.Qualification
}

func newMemQualificationRepo() *memQualificationRepo {
	return &memQualificationRepo{nextID: 1, rows: make(map[int]*models.Qualification)}
}

func (r *memQualificationRepo) clone(q *models.Qualification) *models.Qualification {
	c := *q
	return &c
}

func (r *memQualificationRepo) find(tournamentID int, format models.Format, playerID int) *models.Qualification {
	for _, q := range r.rows {
		if q.TournamentID == tournamentID && q.Format == format && q.PlayerID == playerID {
			return q
		}
	}
	return nil
}

func (r *memQualificationRepo) Create(ctx context.Context, exec repositories.SQLExecutor, q *models.Qualification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.find(q.TournamentID, q.Format, q.PlayerID) != nil {
		return repositories.ErrQualificationConflict
	}
	q.ID = r.nextID
	r.nextID++
	r.rows[q.ID] = r.clone(q)
	return nil
}

func (r *memQualificationRepo) GetByPlayer(ctx context.Context, tournamentID int, format models.Format, playerID int) (*models.Qualification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q := r.find(tournamentID, format, playerID); q != nil {
		return r.clone(q), nil
	}
	return nil, repositories.ErrQualificationNotFound
}

func (r *memQualificationRepo) ListByTournamentFormat(ctx context.Context, tournamentID int, format models.Format, byStanding bool) ([]*models.Qualification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Qualification, 0)
	for _, q := range r.rows {
		if q.TournamentID == tournamentID && q.Format == format {
			out = append(out, r.clone(q))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if byStanding {
			if a.Points != b.Points {
				return a.Points > b.Points
			}
			if a.Score != b.Score {
				return a.Score > b.Score
			}
			if a.Wins != b.Wins {
				return a.Wins > b.Wins
			}
		}
		return a.PlayerID < b.PlayerID
	})
	return out, nil
}

func (r *memQualificationRepo) ReplaceAggregates(ctx context.Context, exec repositories.SQLExecutor, q *models.Qualification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.find(q.TournamentID, q.Format, q.PlayerID)
	if row == nil {
		return repositories.ErrQualificationNotFound
	}
	row.MatchesPlayed = q.MatchesPlayed
	row.Wins, row.Ties, row.Losses = q.Wins, q.Ties, q.Losses
	row.Points, row.Score = q.Points, q.Score
	return nil
}

func (r *memQualificationRepo) SetSeeding(ctx context.Context, exec repositories.SQLExecutor, id int, seeding *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return repositories.ErrQualificationNotFound
	}
	row.Seeding = seeding
	return nil
}

func (r *memQualificationRepo) MarkDropped(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return repositories.ErrQualificationNotFound
	}
	row.Dropped = true
	return nil
}

type memTournamentRepo struct {
	mu          sync.Mutex
	tournaments map[int]*models.Tournament
}

func newMemTournamentRepo(tournaments ...*models.Tournament) *memTournamentRepo {
	r := &memTournamentRepo{tournaments: make(map[int]*models.Tournament)}
	for _, t := range tournaments {
		r.tournaments[t.ID] = t
	}
	return r
}

func (r *memTournamentRepo) Create(ctx context.Context, t *models.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	maxID := 0
	for id := range r.tournaments {
		if id > maxID {
			maxID = id
		}
	}
	t.ID = maxID + 1
	r.tournaments[t.ID] = t
	return nil
}

func (r *memTournamentRepo) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	return t, nil
}

func (r *memTournamentRepo) List(ctx context.Context) ([]*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Tournament, 0, len(r.tournaments))
	for _, t := range r.tournaments {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memTournamentRepo) UpdateStatus(ctx context.Context, id int, status models.TournamentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = status
	return nil
}

type memPlayerRepo struct {
	mu      sync.Mutex
	nextID  int
	players map[int]*models.Player
}

func newMemPlayerRepo(players ...*models.Player) *memPlayerRepo {
	r := &memPlayerRepo{nextID: 1, players: make(map[int]*models.Player)}
	for _, p := range players {
		r.players[p.ID] = p
		if p.ID >= r.nextID {
			r.nextID = p.ID + 1
		}
	}
	return r
}

func (r *memPlayerRepo) Create(ctx context.Context, p *models.Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.players {
		if existing.Email == p.Email {
			return repositories.ErrPlayerEmailConflict
		}
		if existing.Nickname == p.Nickname {
			return repositories.ErrPlayerNicknameConflict
		}
	}
	p.ID = r.nextID
	r.nextID++
	r.players[p.ID] = p
	return nil
}

func (r *memPlayerRepo) GetByID(ctx context.Context, id int) (*models.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return nil, repositories.ErrPlayerNotFound
	}
	return p, nil
}

func (r *memPlayerRepo) GetByEmail(ctx context.Context, email string) (*models.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.players {
		if p.Email == email {
			return p, nil
		}
	}
	return nil, repositories.ErrPlayerNotFound
}

func (r *memPlayerRepo) ListByIDs(ctx context.Context, ids []int) ([]*models.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Player, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.players[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type memTimeTrialRepo struct {
	mu      sync.Mutex
	nextID  int
	entries map[int]*models.TimeTrialEntry
}

func newMemTimeTrialRepo() *memTimeTrialRepo {
	return &memTimeTrialRepo{nextID: 1, entries: make(map[int]*models.TimeTrialEntry)}
}

func (r *memTimeTrialRepo) clone(e *models.TimeTrialEntry) *models.TimeTrialEntry {
	c := *e
	c.Times = models.CourseTimes{}
	for k, v := range e.Times {
		c.Times[k] = v
	}
	return &c
}

func (r *memTimeTrialRepo) Create(ctx context.Context, entry *models.TimeTrialEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.TournamentID == entry.TournamentID && e.PlayerID == entry.PlayerID {
			return repositories.ErrTimeTrialConflict
		}
	}
	entry.ID = r.nextID
	r.nextID++
	entry.Version = 1
	r.entries[entry.ID] = r.clone(entry)
	return nil
}

func (r *memTimeTrialRepo) GetByID(ctx context.Context, id int) (*models.TimeTrialEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, repositories.ErrTimeTrialNotFound
	}
	return r.clone(e), nil
}

func (r *memTimeTrialRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.TimeTrialEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.TimeTrialEntry, 0)
	for _, e := range r.entries {
		if e.TournamentID == tournamentID {
			out = append(out, r.clone(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.TotalTime == nil && b.TotalTime == nil:
			return a.PlayerID < b.PlayerID
		case a.TotalTime == nil:
			return false
		case b.TotalTime == nil:
			return true
		case *a.TotalTime != *b.TotalTime:
			return *a.TotalTime < *b.TotalTime
		default:
			return a.PlayerID < b.PlayerID
		}
	})
	return out, nil
}

func (r *memTimeTrialRepo) UpdateTimes(ctx context.Context, id, expectedVersion int, times models.CourseTimes, totalTime *int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return repositories.ErrTimeTrialNotFound
	}
	if e.Version != expectedVersion || e.Eliminated {
		return repositories.ErrTimeTrialVersionConflict
	}
	e.Times = times
	e.TotalTime = totalTime
	e.Version++
	return nil
}

func (r *memTimeTrialRepo) UpdateRank(ctx context.Context, id int, rank *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return repositories.ErrTimeTrialNotFound
	}
	e.Rank = rank
	return nil
}

func (r *memTimeTrialRepo) UpdateLives(ctx context.Context, id, expectedVersion, lives int, eliminated bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return repositories.ErrTimeTrialNotFound
	}
	if e.Version != expectedVersion {
		return repositories.ErrTimeTrialVersionConflict
	}
	e.Lives = lives
	e.Eliminated = eliminated
	e.Version++
	return nil
}

// memTxManager runs the function directly; the fakes ignore the executor.
type memTxManager struct{}

func (memTxManager) Do(ctx context.Context, fn func(tx repositories.SQLExecutor) error) error {
	return fn(nil)
}

// stubStandings records recalculation calls instead of computing anything.
type stubStandings struct {
	mu    sync.Mutex
	calls []string
}

func (s *stubStandings) Recalculate(ctx context.Context, tournamentID int, format models.Format, playerID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fmt.Sprintf("t%d/%s/p%d", tournamentID, format, playerID))
	return nil
}

func (s *stubStandings) List(ctx context.Context, tournamentID int, format models.Format) ([]*models.Qualification, error) {
	return nil, nil
}

func (s *stubStandings) Enroll(ctx context.Context, tournamentID int, format models.Format, playerID int) (*models.Qualification, error) {
	return nil, nil
}

func (s *stubStandings) Drop(ctx context.Context, tournamentID int, format models.Format, playerID int, identity models.Identity) error {
	return nil
}

type stubAdvancer struct {
	mu    sync.Mutex
	calls []int
	err   error
}

func (a *stubAdvancer) AdvanceFrom(ctx context.Context, matchID int) ([]int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, matchID)
	return nil, a.err
}

type stubUploader struct {
	mu      sync.Mutex
	uploads []string
}

func (u *stubUploader) Upload(ctx context.Context, key, contentType string, reader io.Reader) (*storage.UploadResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploads = append(u.uploads, key)
	return &storage.UploadResult{Key: key, Location: "https://cdn.test/" + key}, nil
}

func (u *stubUploader) Delete(ctx context.Context, key string) error { return nil }

func (u *stubUploader) GetPublicURL(key string) string { return "https://cdn.test/" + key }
