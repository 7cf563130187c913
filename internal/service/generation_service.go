package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/AdamBeresnev/dojo-brackets/internal/bracket"
	"github.com/AdamBeresnev/dojo-brackets/internal/metrics"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type GenerationService struct {
	db            *sqlx.DB
	tournaments   TournamentRepository
	registrations RegistrationRepository
	brackets      BracketRepository
	locks         *KeyedMutex
	notifier      Notifier
	metrics       *metrics.Manager
	logger        *slog.Logger

	randomSeeding bool
	seed          func() int64
}

type GenerationOption func(*GenerationService)

// WithRandomSeeding shuffles every category before placement instead of keeping registration order.
func WithRandomSeeding(enabled bool) GenerationOption {
	return func(s *GenerationService) {
		s.randomSeeding = enabled
	}
}

func WithSeedSource(seed func() int64) GenerationOption {
	return func(s *GenerationService) {
		s.seed = seed
	}
}

func NewGenerationService(
	db *sqlx.DB,
	tournaments TournamentRepository,
	registrations RegistrationRepository,
	brackets BracketRepository,
	locks *KeyedMutex,
	notifier Notifier,
	m *metrics.Manager,
	logger *slog.Logger,
	opts ...GenerationOption,
) *GenerationService {
	s := &GenerationService{
		db:            db,
		tournaments:   tournaments,
		registrations: registrations,
		brackets:      brackets,
		locks:         locks,
		notifier:      notifierOrNop(notifier),
		metrics:       m,
		logger:        logger,
		seed:          func() int64 { return time.Now().UnixNano() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type GenerateOptions struct {
	// Existing brackets are only deleted and rebuilt when this is set.
	ReplaceExisting bool
}

type CategoryFailure struct {
	CategoryName string            `json:"categoryName"`
	CategoryKey  string            `json:"categoryKey"`
	Kind         bracket.ErrorKind `json:"kind"`
	Retryable    bool              `json:"retryable"`
	Error        string            `json:"error"`
}

type GenerationSummary struct {
	TournamentID uuid.UUID         `json:"tournamentId"`
	ResultsCount int               `json:"resultsCount"`
	Brackets     []bracket.Bracket `json:"brackets"`
	Removed      []bracket.Bracket `json:"removed"`
	Failures     []CategoryFailure `json:"failures"`
	Seed         *int64            `json:"seed,omitempty"`
}

// Run is one generation in flight. It keeps going when its observer goes away.
type Run struct {
	ID           uuid.UUID
	TournamentID uuid.UUID
	Stream       *Stream

	done    chan struct{}
	summary *GenerationSummary
	err     error
}

func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run has finished or ctx ends. Returning early does not stop the run.
func (r *Run) Wait(ctx context.Context) (*GenerationSummary, error) {
	select {
	case <-r.done:
		return r.summary, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start begins regenerating every category of the tournament in the background. Only one run per
// tournament may be active.
func (s *GenerationService) Start(ctx context.Context, tournamentID uuid.UUID, opts GenerateOptions) (*Run, error) {
	unlock, ok := s.locks.TryLock(tournamentLockKey(tournamentID))
	if !ok {
		return nil, bracket.E("generate", tournamentID, bracket.ErrGenerationInProgress)
	}

	if err := s.checkStart(ctx, tournamentID, opts); err != nil {
		unlock()
		return nil, err
	}

	run := &Run{
		ID:           uuid.New(),
		TournamentID: tournamentID,
		Stream:       newStream(),
		done:         make(chan struct{}),
	}
	go func() {
		// Waiters must find the tournament free again once Done fires
		defer close(run.done)
		defer unlock()
		s.run(context.WithoutCancel(ctx), run)
	}()
	return run, nil
}

// Generate is Start followed by Wait.
func (s *GenerationService) Generate(ctx context.Context, tournamentID uuid.UUID, opts GenerateOptions) (*GenerationSummary, error) {
	run, err := s.Start(ctx, tournamentID, opts)
	if err != nil {
		return nil, err
	}
	return run.Wait(ctx)
}

func (s *GenerationService) checkStart(ctx context.Context, tournamentID uuid.UUID, opts GenerateOptions) error {
	if _, err := s.tournaments.GetTournament(ctx, tournamentID); err != nil {
		return lookupErr("generate", tournamentID, err)
	}
	if opts.ReplaceExisting {
		return nil
	}
	existing, err := s.brackets.ListBrackets(ctx, tournamentID)
	if err != nil {
		return fmt.Errorf("failed to list brackets: %w", err)
	}
	if len(existing) > 0 {
		return bracket.E("generate", tournamentID, bracket.ErrReplaceNotConfirmed)
	}
	return nil
}

func (s *GenerationService) run(ctx context.Context, run *Run) {
	start := time.Now()
	tid := run.TournamentID
	logger := s.logger.With("tournament_id", tid, "run_id", run.ID)
	summary := &GenerationSummary{TournamentID: tid, Brackets: []bracket.Bracket{}, Removed: []bracket.Bracket{}, Failures: []CategoryFailure{}}

	emit := run.Stream.publish
	fail := func(msg string, err error) {
		logger.Error(msg, "error", err)
		run.err = err
		emit(Event{Type: EventError, Message: msg + ": " + err.Error()})
		s.metrics.RecordGeneration("error", time.Since(start))
	}

	emit(Event{Type: EventProgress, Phase: PhaseClassify, Message: "Classifying approved registrations"})

	regs, err := s.registrations.ListRegistrations(ctx, tid)
	if err != nil {
		fail("failed to load registrations", fmt.Errorf("failed to load registrations: %w", err))
		return
	}
	categories := bracket.Classify(regs)

	existing, err := s.brackets.ListBrackets(ctx, tid)
	if err != nil {
		fail("failed to load brackets", fmt.Errorf("failed to load brackets: %w", err))
		return
	}
	orphans := orphanBrackets(existing, categories)

	total := len(categories) + len(orphans)
	emit(Event{
		Type:    EventProgress,
		Phase:   PhaseClassify,
		Message: fmt.Sprintf("Found %d categories", len(categories)),
		Total:   total,
	})

	var rng *rand.Rand
	if s.randomSeeding {
		seed := s.seed()
		summary.Seed = &seed
		rng = rand.New(rand.NewSource(seed))
		logger.Info("random seeding enabled", "seed", seed)
	}

	var errs []error
	failCategory := func(current int, name, key string, err error) {
		errs = append(errs, err)
		summary.Failures = append(summary.Failures, CategoryFailure{
			CategoryName: name,
			CategoryKey:  key,
			Kind:         bracket.KindOf(err),
			Retryable:    bracket.IsRetryable(err),
			Error:        err.Error(),
		})
		s.metrics.RecordCategoryFailed()
		logger.Warn("category failed", "category", name, "error", err)
		emit(Event{
			Type:         EventProgress,
			Phase:        PhaseCategoryFailed,
			Message:      "Failed to build bracket",
			Current:      current,
			Total:        total,
			CategoryName: name,
			Detail:       err.Error(),
		})
	}

	for i, c := range categories {
		emit(Event{
			Type:         EventProgress,
			Phase:        PhaseBuild,
			Message:      "Building bracket",
			Current:      i,
			Total:        total,
			CategoryName: c.Name(),
			Detail:       fmt.Sprintf("%d participants", len(c.Participants)),
		})

		g, err := s.buildCategory(ctx, tid, c, rng)
		if err != nil {
			failCategory(i+1, c.Name(), c.Key.String(), err)
			continue
		}

		summary.Brackets = append(summary.Brackets, g.Bracket)
		s.metrics.RecordCategoryBuilt()
		emit(Event{
			Type:         EventProgress,
			Phase:        PhaseBuilt,
			Message:      "Bracket built",
			Current:      i + 1,
			Total:        total,
			CategoryName: c.Name(),
			Detail:       fmt.Sprintf("%d matches in %d rounds", len(g.Matches), g.TotalRounds()),
		})
	}

	for j, b := range orphans {
		current := len(categories) + j
		if err := s.removeBracket(ctx, b); err != nil {
			failCategory(current+1, b.DisplayName, b.CategoryKey, err)
			continue
		}
		summary.Removed = append(summary.Removed, b)
		emit(Event{
			Type:         EventProgress,
			Phase:        PhaseRemoved,
			Message:      "Bracket removed, category has no approved registrations",
			Current:      current + 1,
			Total:        total,
			CategoryName: b.DisplayName,
		})
	}

	run.summary = summary
	summary.ResultsCount = len(summary.Brackets)
	if len(summary.Brackets) > 0 || len(summary.Removed) > 0 {
		s.notifier.BracketsReplaced(tid, summary.Brackets)
	}

	if len(categories) > 0 && len(summary.Brackets) == 0 {
		fail("no category could be built", bracket.E("generate", tid, errors.Join(errs...)))
		return
	}

	outcome := "complete"
	if len(summary.Failures) > 0 {
		outcome = "partial"
	}
	s.metrics.RecordGeneration(outcome, time.Since(start))
	logger.Info("bracket generation finished",
		"built", len(summary.Brackets),
		"removed", len(summary.Removed),
		"failed", len(summary.Failures),
		"duration", time.Since(start))
	emit(Event{Type: EventComplete, ResultsCount: summary.ResultsCount})
}

// buildCategory replaces the category's bracket in one transaction.
func (s *GenerationService) buildCategory(ctx context.Context, tournamentID uuid.UUID, c bracket.Category, rng *rand.Rand) (*bracket.Graph, error) {
	key := c.Key.String()
	unlock, ok := s.locks.TryLock(categoryLockKey(tournamentID, key))
	if !ok {
		return nil, bracket.E("build category", tournamentID, bracket.ErrCategoryBusy)
	}
	defer unlock()

	// Registrations may have moved or changed approval since classification. Under the category
	// lock the members cannot change, so build from what the category holds now.
	c, err := s.currentCategory(ctx, tournamentID, c.Key)
	if err != nil {
		return nil, err
	}

	g, err := bracket.Build(tournamentID, c, bracket.BuildOptions{Rand: rng})
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.replaceable(ctx, tx, tournamentID, key); err != nil {
		return nil, err
	}
	if _, err := s.brackets.DeleteBracketByCategory(ctx, tx, tournamentID, key); err != nil {
		return nil, err
	}
	if err := s.brackets.CreateGraph(ctx, tx, g); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit bracket: %w", err)
	}
	return g, nil
}

func (s *GenerationService) removeBracket(ctx context.Context, b bracket.Bracket) error {
	unlock, ok := s.locks.TryLock(categoryLockKey(b.TournamentID, b.CategoryKey))
	if !ok {
		return bracket.E("remove bracket", b.ID, bracket.ErrCategoryBusy)
	}
	defer unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.replaceable(ctx, tx, b.TournamentID, b.CategoryKey); err != nil {
		return err
	}
	if _, err := s.brackets.DeleteBracketByCategory(ctx, tx, b.TournamentID, b.CategoryKey); err != nil {
		return err
	}
	return tx.Commit()
}

// replaceable refuses to touch a locked bracket.
func (s *GenerationService) replaceable(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID, key string) error {
	current, err := s.brackets.GetBracketByCategoryTx(ctx, tx, tournamentID, key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("failed to get current bracket: %w", err)
	case current.Status == bracket.BracketLocked:
		return bracket.E("build category", current.ID, bracket.ErrBracketLocked)
	}
	return nil
}

func orphanBrackets(existing []bracket.Bracket, categories []bracket.Category) []bracket.Bracket {
	keep := make(map[string]bool, len(categories))
	for _, c := range categories {
		keep[c.Key.String()] = true
	}
	var orphans []bracket.Bracket
	for _, b := range existing {
		if !keep[b.CategoryKey] {
			orphans = append(orphans, b)
		}
	}
	return orphans
}

func (s *GenerationService) currentCategory(ctx context.Context, tournamentID uuid.UUID, key bracket.Key) (bracket.Category, error) {
	regs, err := s.registrations.ListRegistrations(ctx, tournamentID)
	if err != nil {
		return bracket.Category{}, fmt.Errorf("failed to reload registrations: %w", err)
	}
	for _, c := range bracket.Classify(regs) {
		if c.Key.Equal(key) {
			return c, nil
		}
	}
	return bracket.Category{Key: key}, nil
}
