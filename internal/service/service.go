// Package service runs the bracket engine against storage: it owns transactions, per-category
// locking and change notifications.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/AdamBeresnev/dojo-brackets/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type TournamentRepository interface {
	CreateTournament(ctx context.Context, tx *sqlx.Tx, t *bracket.Tournament) error
	GetTournament(ctx context.Context, id uuid.UUID) (*bracket.Tournament, error)
	ListTournaments(ctx context.Context) ([]bracket.Tournament, error)
}

type RegistrationRepository interface {
	CreateRegistration(ctx context.Context, tx *sqlx.Tx, r *bracket.Registration) error
	GetRegistration(ctx context.Context, id uuid.UUID) (*bracket.Registration, error)
	GetRegistrationTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.Registration, error)
	ListRegistrations(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Registration, error)
	UpdateRegistrationCategory(ctx context.Context, tx *sqlx.Tx, r *bracket.Registration) error
	UpdateRegistrationStatus(ctx context.Context, tx *sqlx.Tx, r *bracket.Registration) error
}

type BracketRepository interface {
	CreateGraph(ctx context.Context, tx *sqlx.Tx, g *bracket.Graph) error
	DeleteBracketByCategory(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID, categoryKey string) (bool, error)
	GetBracket(ctx context.Context, id uuid.UUID) (*bracket.Bracket, error)
	GetBracketByCategoryTx(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID, categoryKey string) (*bracket.Bracket, error)
	BracketExists(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID, categoryKey string) (bool, error)
	ListBrackets(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Bracket, error)
	GetMatch(ctx context.Context, id uuid.UUID) (*bracket.Match, error)
	GetGraph(ctx context.Context, bracketID uuid.UUID) (*bracket.Graph, error)
	GetGraphTx(ctx context.Context, tx *sqlx.Tx, bracketID uuid.UUID) (*bracket.Graph, error)
	UpdateMatches(ctx context.Context, tx *sqlx.Tx, matches []bracket.Match) error
	UpdateBracketStatus(ctx context.Context, tx *sqlx.Tx, b *bracket.Bracket) error
}

// Notifier is told about committed changes. Calls must not block.
type Notifier interface {
	MatchesChanged(tournamentID, bracketID uuid.UUID, matches []bracket.Match)
	BracketsReplaced(tournamentID uuid.UUID, brackets []bracket.Bracket)
	BracketStatusChanged(b bracket.Bracket)
}

type nopNotifier struct{}

func (nopNotifier) MatchesChanged(uuid.UUID, uuid.UUID, []bracket.Match) {}
func (nopNotifier) BracketsReplaced(uuid.UUID, []bracket.Bracket)        {}
func (nopNotifier) BracketStatusChanged(bracket.Bracket)                 {}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

// lookupErr turns a missing row into ErrNotFound for the entity and wraps everything else.
func lookupErr(op string, id uuid.UUID, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return bracket.E(op, id, bracket.ErrNotFound)
	}
	var be *bracket.Error
	if errors.As(err, &be) {
		return err
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}

func categoryLockKey(tournamentID uuid.UUID, categoryKey string) string {
	return "category:" + tournamentID.String() + ":" + categoryKey
}

func tournamentLockKey(tournamentID uuid.UUID) string {
	return "tournament:" + tournamentID.String()
}
