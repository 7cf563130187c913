package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/AdamBeresnev/dojo-brackets/internal/bracket"
	"github.com/AdamBeresnev/dojo-brackets/internal/db/dbtest"
	"github.com/AdamBeresnev/dojo-brackets/internal/metrics"
	"github.com/AdamBeresnev/dojo-brackets/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu       sync.Mutex
	changed  [][]bracket.Match
	replaced [][]bracket.Bracket
	statuses []bracket.Bracket
}

func (n *recordingNotifier) MatchesChanged(_, _ uuid.UUID, matches []bracket.Match) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed = append(n.changed, matches)
}

func (n *recordingNotifier) BracketsReplaced(_ uuid.UUID, brackets []bracket.Bracket) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replaced = append(n.replaced, brackets)
}

func (n *recordingNotifier) BracketStatusChanged(b bracket.Bracket) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, b)
}

type fixture struct {
	db            *sqlx.DB
	brackets      *store.BracketStore
	registrations *store.RegistrationStore
	locks         *KeyedMutex
	notifier      *recordingNotifier
	metrics       *metrics.Manager
	logger        *slog.Logger

	tournaments  *TournamentService
	regs         *RegistrationService
	generation   *GenerationService
	matches      *MatchService
	standings    *StandingsService
	tournamentID uuid.UUID
}

// newFixture wires every service to a fresh database holding one tournament. brackets replaces the
// bracket store for generation when failures need to be injected.
func newFixture(t *testing.T, brackets BracketRepository, opts ...GenerationOption) *fixture {
	t.Helper()
	database := dbtest.New(t)

	f := &fixture{
		db:            database,
		brackets:      store.NewBracketStore(database),
		registrations: store.NewRegistrationStore(database),
		locks:         NewKeyedMutex(),
		notifier:      &recordingNotifier{},
		metrics:       metrics.NewManager(metrics.WithRegistry(prometheus.NewRegistry())),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if brackets == nil {
		brackets = f.brackets
	}
	tournamentStore := store.NewTournamentStore(database)

	f.tournaments = NewTournamentService(database, tournamentStore)
	f.regs = NewRegistrationService(database, tournamentStore, f.registrations, f.brackets, f.locks, f.logger)
	f.generation = NewGenerationService(database, tournamentStore, f.registrations, brackets, f.locks, f.notifier, f.metrics, f.logger, opts...)
	f.matches = NewMatchService(database, f.brackets, f.locks, f.notifier, f.metrics, f.logger)
	f.standings = NewStandingsService(tournamentStore, f.brackets, nil, f.metrics, f.logger)

	tournament, err := f.tournaments.CreateTournament(context.Background(), "Spring Open")
	require.NoError(t, err)
	f.tournamentID = tournament.ID
	return f
}

var (
	seniorLight = bracket.NewKey("Senior", "-70kg", "Black")
	seniorHeavy = bracket.NewKey("Senior", "+90kg", "Black")
	juniorOpen  = bracket.NewKey("Junior", "", "")
)

// register creates an approved registration in category k.
func (f *fixture) register(t *testing.T, name string, k bracket.Key) bracket.Registration {
	t.Helper()
	r := f.registerPending(t, name, k)
	change, err := f.regs.Approve(context.Background(), r.ID)
	require.NoError(t, err)
	return change.Registration
}

func (f *fixture) registerPending(t *testing.T, name string, k bracket.Key) bracket.Registration {
	t.Helper()
	in := RegistrationInput{MemberID: "m-" + name, FighterName: name}
	if k.Age != nil {
		in.Age = *k.Age
	}
	if k.Weight != nil {
		in.Weight = *k.Weight
	}
	if k.Belt != nil {
		in.Belt = *k.Belt
	}
	r, err := f.regs.Create(context.Background(), f.tournamentID, in)
	require.NoError(t, err)
	return *r
}

func (f *fixture) registerMany(t *testing.T, k bracket.Key, names ...string) {
	t.Helper()
	for _, name := range names {
		f.register(t, name, k)
	}
}

func (f *fixture) generate(t *testing.T, replace bool) *GenerationSummary {
	t.Helper()
	summary, err := f.generation.Generate(context.Background(), f.tournamentID, GenerateOptions{ReplaceExisting: replace})
	require.NoError(t, err)
	return summary
}

// bracketFor returns the generated bracket of category k.
func (f *fixture) bracketFor(t *testing.T, k bracket.Key) *BracketView {
	t.Helper()
	views, err := f.matches.GetBrackets(context.Background(), f.tournamentID)
	require.NoError(t, err)
	for i := range views {
		if views[i].Bracket.CategoryKey == k.Normalize().String() {
			return &views[i]
		}
	}
	t.Fatalf("no bracket for %s", k.DisplayName())
	return nil
}

// resolve plays every remaining match of a bracket, fighter A always winning.
func (f *fixture) resolve(t *testing.T, bracketID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	for {
		view, err := f.matches.GetBracket(ctx, bracketID)
		require.NoError(t, err)

		progressed := false
		for _, round := range view.Rounds {
			for _, m := range round.Matches {
				if m.Status == bracket.MatchCompleted || !m.Ready() {
					continue
				}
				_, err := f.matches.RecordResult(ctx, m.ID, bracket.Result{WinnerID: *m.FighterAID})
				require.NoError(t, err)
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

func findMatch(t *testing.T, view *BracketView, round, number int) bracket.Match {
	t.Helper()
	for _, r := range view.Rounds {
		for _, m := range r.Matches {
			if m.RoundNumber == round && m.MatchNumber == number {
				return m
			}
		}
	}
	t.Fatalf("no match %d in round %d", number, round)
	return bracket.Match{}
}
