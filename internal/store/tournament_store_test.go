package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/AdamBeresnev/dojo-brackets/internal/bracket"
	"github.com/AdamBeresnev/dojo-brackets/internal/db/dbtest"
	"github.com/AdamBeresnev/dojo-brackets/internal/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTx(t *testing.T, db *sqlx.DB, fn func(tx *sqlx.Tx) error) {
	t.Helper()
	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	defer tx.Rollback()

	require.NoError(t, fn(tx))
	require.NoError(t, tx.Commit())
}

func createTournament(t *testing.T, db *sqlx.DB) *bracket.Tournament {
	t.Helper()
	tournament := &bracket.Tournament{ID: uuid.New(), Name: "Spring Open"}
	withTx(t, db, func(tx *sqlx.Tx) error {
		return NewTournamentStore(db).CreateTournament(context.Background(), tx, tournament)
	})
	return tournament
}

func createRegistrations(t *testing.T, db *sqlx.DB, tournamentID uuid.UUID, names ...string) []bracket.Registration {
	t.Helper()
	store := NewRegistrationStore(db)
	base := time.Now().UTC()

	regs := make([]bracket.Registration, 0, len(names))
	withTx(t, db, func(tx *sqlx.Tx) error {
		for i, name := range names {
			r := bracket.Registration{
				ID:           uuid.New(),
				TournamentID: tournamentID,
				MemberID:     "m-" + name,
				FighterName:  name,
				Status:       bracket.RegistrationApproved,
				CreatedAt:    base.Add(time.Duration(i) * time.Second),
			}
			r.SetKey(bracket.NewKey("Senior", "-70kg", ""))
			if err := store.CreateRegistration(context.Background(), tx, &r); err != nil {
				return err
			}
			regs = append(regs, r)
		}
		return nil
	})
	return regs
}

func TestCreateTournament(t *testing.T) {
	db := dbtest.New(t)
	store := NewTournamentStore(db)

	tournament := createTournament(t, db)

	fetched, err := store.GetTournament(context.Background(), tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, tournament.ID, fetched.ID)
	assert.Equal(t, "Spring Open", fetched.Name)
	assert.False(t, fetched.CreatedAt.IsZero())

	_, err = store.GetTournament(context.Background(), uuid.New())
	assert.ErrorIs(t, err, sql.ErrNoRows)

	all, err := store.ListTournaments(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRegistrationStore(t *testing.T) {
	db := dbtest.New(t)
	store := NewRegistrationStore(db)
	ctx := context.Background()

	tournament := createTournament(t, db)
	regs := createRegistrations(t, db, tournament.ID, "Aiko", "Botan", "Chiyo")

	listed, err := store.ListRegistrations(ctx, tournament.ID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	for i, r := range listed {
		assert.Equal(t, regs[i].ID, r.ID, "registrations come back in registration order")
		assert.Equal(t, "Senior", utils.Deref(r.CategoryAge))
		assert.Nil(t, r.CategoryBelt)
	}

	moved := listed[1]
	moved.SetKey(bracket.NewKey("Senior", "-80kg", "Black"))
	withTx(t, db, func(tx *sqlx.Tx) error {
		return store.UpdateRegistrationCategory(ctx, tx, &moved)
	})

	fetched, err := store.GetRegistration(ctx, moved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Senior - -80kg - Black", fetched.Key().DisplayName())
	assert.Equal(t, bracket.RegistrationApproved, fetched.Status)

	fetched.Status = bracket.RegistrationRejected
	withTx(t, db, func(tx *sqlx.Tx) error {
		return store.UpdateRegistrationStatus(ctx, tx, fetched)
	})

	withTx(t, db, func(tx *sqlx.Tx) error {
		r, err := store.GetRegistrationTx(ctx, tx, moved.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, bracket.RegistrationRejected, r.Status)
		assert.Equal(t, "-80kg", utils.Deref(r.CategoryWeight))
		return nil
	})
}

func TestBracketStoreRoundTrip(t *testing.T) {
	db := dbtest.New(t)
	store := NewBracketStore(db)
	ctx := context.Background()

	tournament := createTournament(t, db)
	regs := createRegistrations(t, db, tournament.ID, "Aiko", "Botan", "Chiyo", "Daiki", "Emi")
	category := bracket.Classify(regs)[0]

	g, err := bracket.Build(tournament.ID, category, bracket.BuildOptions{})
	require.NoError(t, err)
	withTx(t, db, func(tx *sqlx.Tx) error {
		return store.CreateGraph(ctx, tx, g)
	})

	loaded, err := store.GetGraph(ctx, g.Bracket.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Bracket.ID, loaded.Bracket.ID)
	assert.Equal(t, category.Key.String(), loaded.Bracket.CategoryKey)
	require.Len(t, loaded.Matches, 7)

	for i, m := range loaded.Matches {
		want := g.Matches[i]
		assert.Equal(t, want.ID, m.ID)
		assert.Equal(t, want.FighterAID, m.FighterAID)
		assert.Equal(t, want.FighterBID, m.FighterBID)
		assert.Equal(t, want.WinnerID, m.WinnerID)
		assert.Equal(t, want.IsBye, m.IsBye)
		assert.Equal(t, want.Status, m.Status)
		assert.Equal(t, want.NextMatchID, m.NextMatchID)
		assert.Equal(t, want.NextSlot, m.NextSlot)
	}

	withTx(t, db, func(tx *sqlx.Tx) error {
		exists, err := store.BracketExists(ctx, tx, tournament.ID, category.Key.String())
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = store.BracketExists(ctx, tx, tournament.ID, bracket.NewKey("Junior", "", "").String())
		require.NoError(t, err)
		assert.False(t, exists)
		return nil
	})
}

func TestBracketStoreUpdatesAndDelete(t *testing.T) {
	db := dbtest.New(t)
	store := NewBracketStore(db)
	ctx := context.Background()

	tournament := createTournament(t, db)
	regs := createRegistrations(t, db, tournament.ID, "Aiko", "Botan", "Chiyo", "Daiki")
	category := bracket.Classify(regs)[0]

	g, err := bracket.Build(tournament.ID, category, bracket.BuildOptions{})
	require.NoError(t, err)
	withTx(t, db, func(tx *sqlx.Tx) error {
		return store.CreateGraph(ctx, tx, g)
	})

	first := g.Matches[0]
	changed, err := g.RecordResult(first.ID, bracket.Result{WinnerID: *first.FighterBID, ScoreA: utils.Ptr(1), ScoreB: utils.Ptr(4)})
	require.NoError(t, err)
	withTx(t, db, func(tx *sqlx.Tx) error {
		if err := store.UpdateMatches(ctx, tx, changed); err != nil {
			return err
		}
		return store.UpdateBracketStatus(ctx, tx, &g.Bracket)
	})

	withTx(t, db, func(tx *sqlx.Tx) error {
		loaded, err := store.GetGraphTx(ctx, tx, g.Bracket.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, bracket.BracketInProgress, loaded.Bracket.Status)
		m, _ := loaded.Match(first.ID)
		assert.Equal(t, bracket.MatchCompleted, m.Status)
		assert.Equal(t, 4, utils.Deref(m.ScoreB))
		assert.Equal(t, regs[1].ID, *m.WinnerID)
		final := loaded.Final()
		require.NotNil(t, final.FighterAID)
		assert.Equal(t, regs[1].ID, *final.FighterAID)
		assert.Equal(t, "Botan", utils.Deref(final.FighterAName))
		return nil
	})

	withTx(t, db, func(tx *sqlx.Tx) error {
		deleted, err := store.DeleteBracketByCategory(ctx, tx, tournament.ID, category.Key.String())
		assert.True(t, deleted)
		return err
	})

	var remaining int
	require.NoError(t, db.Get(&remaining, "SELECT COUNT(*) FROM matches"))
	assert.Zero(t, remaining)

	brackets, err := store.ListBrackets(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Empty(t, brackets)

	_, err = store.GetGraph(ctx, g.Bracket.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
