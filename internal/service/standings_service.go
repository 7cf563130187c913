package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AdamBeresnev/dojo-brackets/internal/bracket"
	"github.com/AdamBeresnev/dojo-brackets/internal/export"
	"github.com/AdamBeresnev/dojo-brackets/internal/metrics"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// StandingsPublisher stores a tournament's standings where certificates are issued from.
type StandingsPublisher interface {
	PublishStandings(ctx context.Context, tournamentID uuid.UUID, doc any) (*export.Result, error)
}

type StandingsService struct {
	tournaments TournamentRepository
	brackets    BracketRepository
	publisher   StandingsPublisher
	metrics     *metrics.Manager
	logger      *slog.Logger
}

// NewStandingsService creates the service. publisher may be nil when export is not configured.
func NewStandingsService(tournaments TournamentRepository, brackets BracketRepository, publisher StandingsPublisher, m *metrics.Manager, logger *slog.Logger) *StandingsService {
	return &StandingsService{
		tournaments: tournaments,
		brackets:    brackets,
		publisher:   publisher,
		metrics:     m,
		logger:      logger,
	}
}

type CategoryStandings struct {
	Bracket   bracket.Bracket    `json:"bracket"`
	Final     bool               `json:"final"`
	Standings []bracket.Standing `json:"standings"`
}

type TournamentStandings struct {
	Tournament  bracket.Tournament  `json:"tournament"`
	Categories  []CategoryStandings `json:"categories"`
	GeneratedAt time.Time           `json:"generatedAt"`
}

// BracketStandings fails with ErrStandingsNotFinal until every match of the bracket is completed.
func (s *StandingsService) BracketStandings(ctx context.Context, bracketID uuid.UUID) (*CategoryStandings, error) {
	g, err := s.brackets.GetGraph(ctx, bracketID)
	if err != nil {
		return nil, lookupErr("standings", bracketID, err)
	}
	standings, err := bracket.Standings(g)
	if err != nil {
		return nil, err
	}
	return &CategoryStandings{Bracket: g.Bracket, Final: true, Standings: standings}, nil
}

// TournamentStandings collects every category. Categories still being fought are included with
// Final unset and no standings.
func (s *StandingsService) TournamentStandings(ctx context.Context, tournamentID uuid.UUID) (*TournamentStandings, error) {
	t, err := s.tournaments.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, lookupErr("standings", tournamentID, err)
	}
	brackets, err := s.brackets.ListBrackets(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list brackets: %w", err)
	}

	categories := make([]CategoryStandings, len(brackets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bracketLoadConcurrency)
	for i, b := range brackets {
		g.Go(func() error {
			cs, err := s.BracketStandings(gctx, b.ID)
			switch {
			case errors.Is(err, bracket.ErrStandingsNotFinal):
				categories[i] = CategoryStandings{Bracket: b, Standings: []bracket.Standing{}}
				return nil
			case err != nil:
				return err
			}
			categories[i] = *cs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &TournamentStandings{Tournament: *t, Categories: categories, GeneratedAt: time.Now().UTC()}, nil
}

// Publish uploads the tournament standings for the certificate consumer.
func (s *StandingsService) Publish(ctx context.Context, tournamentID uuid.UUID) (*export.Result, error) {
	if s.publisher == nil {
		return nil, export.ErrExportDisabled
	}

	doc, err := s.TournamentStandings(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	res, err := s.publisher.PublishStandings(ctx, tournamentID, doc)
	if err != nil {
		s.metrics.RecordStandingsExport("error")
		return nil, fmt.Errorf("failed to publish standings: %w", err)
	}
	s.metrics.RecordStandingsExport("success")
	s.logger.Info("standings published", "tournament_id", tournamentID, "key", res.Key, "categories", len(doc.Categories))
	return res, nil
}
