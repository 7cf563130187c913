package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AdamBeresnev/dojo-brackets/internal/bracket"
	"github.com/AdamBeresnev/dojo-brackets/internal/metrics"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
)

const bracketLoadConcurrency = 4

type MatchService struct {
	db       *sqlx.DB
	brackets BracketRepository
	locks    *KeyedMutex
	notifier Notifier
	metrics  *metrics.Manager
	logger   *slog.Logger
}

func NewMatchService(db *sqlx.DB, brackets BracketRepository, locks *KeyedMutex, notifier Notifier, m *metrics.Manager, logger *slog.Logger) *MatchService {
	return &MatchService{
		db:       db,
		brackets: brackets,
		locks:    locks,
		notifier: notifierOrNop(notifier),
		metrics:  m,
		logger:   logger,
	}
}

// BracketView is a bracket with its matches grouped by round, ready for rendering.
type BracketView struct {
	Bracket bracket.Bracket `json:"bracket"`
	Rounds  []bracket.Round `json:"rounds"`
}

// MatchUpdate is the outcome of a progression step: the match that was addressed and every match
// the step changed, the addressed one included.
type MatchUpdate struct {
	Match   bracket.Match   `json:"match"`
	Changed []bracket.Match `json:"changed"`
	Bracket bracket.Bracket `json:"bracket"`
}

func (s *MatchService) GetBracket(ctx context.Context, bracketID uuid.UUID) (*BracketView, error) {
	g, err := s.brackets.GetGraph(ctx, bracketID)
	if err != nil {
		return nil, lookupErr("get bracket", bracketID, err)
	}
	return &BracketView{Bracket: g.Bracket, Rounds: g.Rounds()}, nil
}

// GetBrackets loads every bracket of a tournament, ordered by category.
func (s *MatchService) GetBrackets(ctx context.Context, tournamentID uuid.UUID) ([]BracketView, error) {
	brackets, err := s.brackets.ListBrackets(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list brackets: %w", err)
	}

	views := make([]BracketView, len(brackets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bracketLoadConcurrency)
	for i, b := range brackets {
		g.Go(func() error {
			view, err := s.GetBracket(gctx, b.ID)
			if err != nil {
				return err
			}
			views[i] = *view
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

func (s *MatchService) RecordResult(ctx context.Context, matchID uuid.UUID, res bracket.Result) (*MatchUpdate, error) {
	update, err := s.mutateMatch(ctx, "record result", matchID, func(g *bracket.Graph) ([]bracket.Match, error) {
		return g.RecordResult(matchID, res)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordMatchUpdate("result")
	return update, nil
}

// OverrideResult replaces the winner of a completed match. Matches downstream that depended on
// the old winner are reset before the new winner moves on.
func (s *MatchService) OverrideResult(ctx context.Context, matchID uuid.UUID, res bracket.Result) (*MatchUpdate, error) {
	var previous *uuid.UUID
	update, err := s.mutateMatch(ctx, "override result", matchID, func(g *bracket.Graph) ([]bracket.Match, error) {
		if m, ok := g.Match(matchID); ok {
			previous = m.WinnerID
		}
		return g.OverrideResult(matchID, res)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordMatchUpdate("override")
	if previous != nil && *previous != res.WinnerID {
		s.metrics.RecordCascadeVoided(len(update.Changed) - 1)
		s.logger.Info("match result overridden",
			"match_id", matchID,
			"previous_winner", *previous,
			"winner", res.WinnerID,
			"changed", len(update.Changed))
	}
	return update, nil
}

func (s *MatchService) UpdateScores(ctx context.Context, matchID uuid.UUID, scoreA, scoreB int) (*MatchUpdate, error) {
	update, err := s.mutateMatch(ctx, "update scores", matchID, func(g *bracket.Graph) ([]bracket.Match, error) {
		m, err := g.UpdateScores(matchID, scoreA, scoreB)
		if err != nil {
			return nil, err
		}
		return []bracket.Match{m}, nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordMatchUpdate("scores")
	return update, nil
}

// LockBracket freezes a bracket: results, score updates and regeneration are refused until it is
// unlocked.
func (s *MatchService) LockBracket(ctx context.Context, bracketID uuid.UUID) (*bracket.Bracket, error) {
	return s.mutateBracket(ctx, "lock bracket", bracketID, (*bracket.Graph).Lock)
}

func (s *MatchService) UnlockBracket(ctx context.Context, bracketID uuid.UUID) (*bracket.Bracket, error) {
	return s.mutateBracket(ctx, "unlock bracket", bracketID, (*bracket.Graph).Unlock)
}

func (s *MatchService) mutateMatch(ctx context.Context, op string, matchID uuid.UUID, fn func(g *bracket.Graph) ([]bracket.Match, error)) (*MatchUpdate, error) {
	m, err := s.brackets.GetMatch(ctx, matchID)
	if err != nil {
		return nil, lookupErr(op, matchID, err)
	}

	var changed []bracket.Match
	g, statusChanged, err := s.withGraph(ctx, op, m.BracketID, func(g *bracket.Graph, tx *sqlx.Tx) error {
		var err error
		changed, err = fn(g)
		if err != nil {
			return err
		}
		return s.brackets.UpdateMatches(ctx, tx, changed)
	})
	if err != nil {
		return nil, err
	}

	if len(changed) > 0 {
		s.notifier.MatchesChanged(g.Bracket.TournamentID, g.Bracket.ID, changed)
	}
	if statusChanged {
		s.notifier.BracketStatusChanged(g.Bracket)
	}

	current, _ := g.Match(matchID)
	if changed == nil {
		changed = []bracket.Match{}
	}
	return &MatchUpdate{Match: current, Changed: changed, Bracket: g.Bracket}, nil
}

func (s *MatchService) mutateBracket(ctx context.Context, op string, bracketID uuid.UUID, fn func(g *bracket.Graph)) (*bracket.Bracket, error) {
	g, statusChanged, err := s.withGraph(ctx, op, bracketID, func(g *bracket.Graph, _ *sqlx.Tx) error {
		fn(g)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if statusChanged {
		s.notifier.BracketStatusChanged(g.Bracket)
	}
	return &g.Bracket, nil
}

// withGraph runs fn on the bracket's graph while holding the category lock and a transaction. The
// bracket status is saved when fn changed it.
func (s *MatchService) withGraph(ctx context.Context, op string, bracketID uuid.UUID, fn func(g *bracket.Graph, tx *sqlx.Tx) error) (*bracket.Graph, bool, error) {
	b, err := s.brackets.GetBracket(ctx, bracketID)
	if err != nil {
		return nil, false, lookupErr(op, bracketID, err)
	}

	unlock := s.locks.Lock(categoryLockKey(b.TournamentID, b.CategoryKey))
	defer unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	// The bracket may have been regenerated while we waited for the lock
	g, err := s.brackets.GetGraphTx(ctx, tx, bracketID)
	if err != nil {
		return nil, false, lookupErr(op, bracketID, err)
	}

	before := g.Bracket.Status
	if err := fn(g, tx); err != nil {
		if bracket.KindOf(err) == bracket.KindInvariant {
			s.logger.Error("bracket invariant violated", "op", op, "bracket_id", bracketID, "error", err)
		}
		return nil, false, err
	}

	statusChanged := g.Bracket.Status != before
	if statusChanged {
		if err := s.brackets.UpdateBracketStatus(ctx, tx, &g.Bracket); err != nil {
			return nil, false, fmt.Errorf("failed to update bracket status: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit %s: %w", op, err)
	}
	return g, statusChanged, nil
}
