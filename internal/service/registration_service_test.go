package service

import (
	"context"
	"testing"
	"time"

	"github.com/AdamBeresnev/dojo-brackets/internal/bracket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRegistration(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	r, err := f.regs.Create(ctx, f.tournamentID, RegistrationInput{
		MemberID:    " m-1 ",
		FighterName: "  Aiko ",
		Age:         "Senior",
		Weight:      "  ",
		Belt:        "Black",
	})
	require.NoError(t, err)
	assert.Equal(t, bracket.RegistrationPending, r.Status)
	assert.Equal(t, "Aiko", r.FighterName)
	assert.Equal(t, "m-1", r.MemberID)
	assert.Nil(t, r.CategoryWeight, "blank labels are unset")

	got, err := f.regs.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Key().String(), got.Key().String())

	_, err = f.regs.Create(ctx, f.tournamentID, RegistrationInput{FighterName: " "})
	assert.ErrorIs(t, err, bracket.ErrInvalidInput)

	_, err = f.regs.Create(ctx, uuid.New(), RegistrationInput{FighterName: "Bruno"})
	assert.ErrorIs(t, err, bracket.ErrNotFound)
}

func TestMoveCategoryNeverTouchesBrackets(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.registerMany(t, seniorLight, "Aiko", "Bruno", "Chen")
	mover := f.register(t, "Dana", seniorLight)
	f.registerMany(t, seniorHeavy, "Emil", "Farid")
	f.generate(t, false)

	before, err := f.matches.GetBrackets(ctx, f.tournamentID)
	require.NoError(t, err)

	testCases := []struct {
		name   string
		target bracket.Key
		source bool
		dest   bool
	}{
		{name: "into a category with a bracket", target: seniorHeavy, source: true, dest: true},
		{name: "into a new category", target: juniorOpen, source: true, dest: false},
		{name: "back where it started", target: seniorLight, source: false, dest: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			change, err := f.regs.MoveCategory(ctx, mover.ID, tc.target)
			require.NoError(t, err)
			assert.Equal(t, tc.target.String(), change.Registration.Key().String())
			assert.Equal(t, tc.source, change.SourceNeedsRegeneration, "source")
			assert.Equal(t, tc.dest, change.TargetNeedsRegeneration, "target")

			stored, err := f.regs.Get(ctx, mover.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.target.String(), stored.Key().String())

			after, err := f.matches.GetBrackets(ctx, f.tournamentID)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestMoveCategoryToSameCategory(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	r := f.register(t, "Aiko", seniorLight)
	f.registerMany(t, seniorLight, "Bruno")
	f.generate(t, false)

	same := bracket.NewKey(" Senior ", "-70kg", "Black  ")
	change, err := f.regs.MoveCategory(ctx, r.ID, same)
	require.NoError(t, err)
	assert.False(t, change.SourceNeedsRegeneration)
	assert.False(t, change.TargetNeedsRegeneration)
	assert.Equal(t, r.ID, change.Registration.ID)
	assert.Equal(t, seniorLight.String(), change.Registration.Key().String())
}

func TestMoveCategoryOfPendingRegistration(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.registerMany(t, seniorLight, "Aiko", "Bruno")
	f.generate(t, false)
	pending := f.registerPending(t, "Chen", seniorHeavy)

	change, err := f.regs.MoveCategory(ctx, pending.ID, seniorLight)
	require.NoError(t, err)
	assert.False(t, change.SourceNeedsRegeneration)
	assert.False(t, change.TargetNeedsRegeneration, "pending fighters are not in any bracket")

	_, err = f.regs.MoveCategory(ctx, uuid.New(), seniorLight)
	assert.ErrorIs(t, err, bracket.ErrNotFound)
}

func TestApprovalFlagsStaleBrackets(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	existing := f.register(t, "Aiko", seniorLight)
	f.registerMany(t, seniorLight, "Bruno")
	f.generate(t, false)

	late := f.registerPending(t, "Chen", seniorLight)
	change, err := f.regs.Approve(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, bracket.RegistrationApproved, change.Registration.Status)
	assert.True(t, change.TargetNeedsRegeneration)
	assert.False(t, change.SourceNeedsRegeneration)

	change, err = f.regs.Approve(ctx, late.ID)
	require.NoError(t, err)
	assert.False(t, change.TargetNeedsRegeneration, "approving twice changes nothing")

	change, err = f.regs.Reject(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, bracket.RegistrationRejected, change.Registration.Status)
	assert.True(t, change.SourceNeedsRegeneration)

	elsewhere := f.registerPending(t, "Dana", seniorHeavy)
	change, err = f.regs.Approve(ctx, elsewhere.ID)
	require.NoError(t, err)
	assert.False(t, change.TargetNeedsRegeneration, "no bracket exists there yet")

	regs, err := f.regs.List(ctx, f.tournamentID)
	require.NoError(t, err)
	assert.Len(t, regs, 4)
}

func TestMoveCategoryWaitsForCategoryBuild(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	mover := f.register(t, "Aiko", seniorLight)
	f.registerMany(t, seniorHeavy, "Emil", "Farid")

	// Hold the target category the way a generation run does while it builds
	unlock := f.locks.Lock(categoryLockKey(f.tournamentID, seniorHeavy.String()))

	type moved struct {
		change *RegistrationChange
		err    error
	}
	done := make(chan moved, 1)
	go func() {
		change, err := f.regs.MoveCategory(ctx, mover.ID, seniorHeavy)
		done <- moved{change, err}
	}()

	select {
	case <-done:
		unlock()
		t.Fatal("move finished while its target category was being built")
	case <-time.After(100 * time.Millisecond):
	}

	regs, err := f.regs.List(ctx, f.tournamentID)
	require.NoError(t, err)
	var heavy bracket.Category
	for _, c := range bracket.Classify(regs) {
		if c.Key.Equal(seniorHeavy) {
			heavy = c
		}
	}
	g, err := bracket.Build(f.tournamentID, heavy, bracket.BuildOptions{})
	require.NoError(t, err)
	tx, err := f.db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, f.brackets.CreateGraph(ctx, tx, g))
	require.NoError(t, tx.Commit())
	unlock()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.True(t, res.change.TargetNeedsRegeneration, "the bracket built meanwhile lacks the mover")
		assert.False(t, res.change.SourceNeedsRegeneration)
	case <-time.After(2 * time.Second):
		t.Fatal("move never finished")
	}
	assert.Zero(t, f.locks.len())
}
