package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AdamBeresnev/dojo-brackets/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	createBracketQuery = `
		INSERT INTO brackets (id, tournament_id, category_age, category_weight, category_belt, category_key, display_name, participant_count, status, created_at, updated_at)
		VALUES (:id, :tournament_id, :category_age, :category_weight, :category_belt, :category_key, :display_name, :participant_count, :status, :created_at, :updated_at)
	`
	createMatchesQuery = `
		INSERT INTO matches (id, bracket_id, round_number, round_name, match_number, fighter_a_id, fighter_a_name, fighter_b_id, fighter_b_name, score_a, score_b, winner_id, is_bye, status, next_match_id, next_slot, updated_at)
		VALUES (:id, :bracket_id, :round_number, :round_name, :match_number, :fighter_a_id, :fighter_a_name, :fighter_b_id, :fighter_b_name, :score_a, :score_b, :winner_id, :is_bye, :status, :next_match_id, :next_slot, :updated_at)
	`
	updateMatchQuery = `
		UPDATE matches SET
		fighter_a_id = :fighter_a_id,
		fighter_a_name = :fighter_a_name,
		fighter_b_id = :fighter_b_id,
		fighter_b_name = :fighter_b_name,
		score_a = :score_a,
		score_b = :score_b,
		winner_id = :winner_id,
		status = :status,
		updated_at = :updated_at
		WHERE id = :id
	`
	updateBracketStatusQuery = `
		UPDATE brackets SET
		status = :status,
		updated_at = :updated_at
		WHERE id = :id
	`
	getBracketQuery           = "SELECT * FROM brackets WHERE id = ?"
	getBracketByCategoryQuery = "SELECT * FROM brackets WHERE tournament_id = ? AND category_key = ?"
	getMatchesQuery           = "SELECT * FROM matches WHERE bracket_id = ? ORDER BY round_number ASC, match_number ASC"
)

type BracketStore struct {
	db *sqlx.DB
}

func NewBracketStore(db *sqlx.DB) *BracketStore {
	return &BracketStore{db: db}
}

// CreateGraph inserts a bracket and all of its matches.
func (s *BracketStore) CreateGraph(ctx context.Context, tx *sqlx.Tx, g *bracket.Graph) error {
	now := time.Now().UTC()
	g.Bracket.CreatedAt = now
	g.Bracket.UpdatedAt = now
	if _, err := tx.NamedExecContext(ctx, createBracketQuery, &g.Bracket); err != nil {
		return fmt.Errorf("failed to insert bracket: %w", err)
	}

	for i := range g.Matches {
		g.Matches[i].UpdatedAt = now
	}
	if _, err := tx.NamedExecContext(ctx, createMatchesQuery, g.Matches); err != nil {
		return fmt.Errorf("failed to insert matches: %w", err)
	}
	return nil
}

// DeleteBracketByCategory removes a category's bracket and its matches. It reports whether there
// was one to delete.
func (s *BracketStore) DeleteBracketByCategory(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID, categoryKey string) (bool, error) {
	_, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM matches WHERE bracket_id IN
		(SELECT id FROM brackets WHERE tournament_id = ? AND category_key = ?)`), tournamentID, categoryKey)
	if err != nil {
		return false, fmt.Errorf("failed to delete matches: %w", err)
	}

	res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM brackets WHERE tournament_id = ? AND category_key = ?"), tournamentID, categoryKey)
	if err != nil {
		return false, fmt.Errorf("failed to delete bracket: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *BracketStore) GetBracket(ctx context.Context, id uuid.UUID) (*bracket.Bracket, error) {
	var b bracket.Bracket
	if err := s.db.GetContext(ctx, &b, s.db.Rebind(getBracketQuery), id); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *BracketStore) GetBracketByCategoryTx(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID, categoryKey string) (*bracket.Bracket, error) {
	var b bracket.Bracket
	if err := tx.GetContext(ctx, &b, tx.Rebind(getBracketByCategoryQuery), tournamentID, categoryKey); err != nil {
		return nil, err
	}
	return &b, nil
}

// BracketExists reports whether a category currently has a bracket.
func (s *BracketStore) BracketExists(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID, categoryKey string) (bool, error) {
	var b bracket.Bracket
	err := tx.GetContext(ctx, &b, tx.Rebind(getBracketByCategoryQuery), tournamentID, categoryKey)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *BracketStore) ListBrackets(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Bracket, error) {
	var brackets []bracket.Bracket
	err := s.db.SelectContext(ctx, &brackets, s.db.Rebind("SELECT * FROM brackets WHERE tournament_id = ? ORDER BY category_key ASC"), tournamentID)
	return brackets, err
}

func (s *BracketStore) GetMatches(ctx context.Context, bracketID uuid.UUID) ([]bracket.Match, error) {
	var matches []bracket.Match
	err := s.db.SelectContext(ctx, &matches, s.db.Rebind(getMatchesQuery), bracketID)
	return matches, err
}

func (s *BracketStore) GetMatch(ctx context.Context, id uuid.UUID) (*bracket.Match, error) {
	var m bracket.Match
	if err := s.db.GetContext(ctx, &m, s.db.Rebind("SELECT * FROM matches WHERE id = ?"), id); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetGraphTx loads a bracket with its matches inside tx.
func (s *BracketStore) GetGraphTx(ctx context.Context, tx *sqlx.Tx, bracketID uuid.UUID) (*bracket.Graph, error) {
	var b bracket.Bracket
	if err := tx.GetContext(ctx, &b, tx.Rebind(getBracketQuery), bracketID); err != nil {
		return nil, err
	}

	var matches []bracket.Match
	if err := tx.SelectContext(ctx, &matches, tx.Rebind(getMatchesQuery), bracketID); err != nil {
		return nil, fmt.Errorf("failed to get matches: %w", err)
	}
	return bracket.NewGraph(b, matches)
}

// GetGraph loads a bracket with its matches without a transaction, for read-only use.
func (s *BracketStore) GetGraph(ctx context.Context, bracketID uuid.UUID) (*bracket.Graph, error) {
	b, err := s.GetBracket(ctx, bracketID)
	if err != nil {
		return nil, err
	}
	matches, err := s.GetMatches(ctx, bracketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get matches: %w", err)
	}
	return bracket.NewGraph(*b, matches)
}

func (s *BracketStore) UpdateMatches(ctx context.Context, tx *sqlx.Tx, matches []bracket.Match) error {
	now := time.Now().UTC()
	for i := range matches {
		matches[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, updateMatchQuery, &matches[i]); err != nil {
			return fmt.Errorf("failed to update match %s: %w", matches[i].ID, err)
		}
	}
	return nil
}

func (s *BracketStore) UpdateBracketStatus(ctx context.Context, tx *sqlx.Tx, b *bracket.Bracket) error {
	b.UpdatedAt = time.Now().UTC()
	_, err := tx.NamedExecContext(ctx, updateBracketStatusQuery, b)
	return err
}
