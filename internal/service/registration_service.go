package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/AdamBeresnev/dojo-brackets/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type RegistrationService struct {
	db            *sqlx.DB
	tournaments   TournamentRepository
	registrations RegistrationRepository
	brackets      BracketRepository
	locks         *KeyedMutex
	logger        *slog.Logger
}

// maxLockAttempts bounds how often a registration whose category keeps changing is re-read.
const maxLockAttempts = 3

func NewRegistrationService(db *sqlx.DB, tournaments TournamentRepository, registrations RegistrationRepository, brackets BracketRepository, locks *KeyedMutex, logger *slog.Logger) *RegistrationService {
	return &RegistrationService{
		db:            db,
		tournaments:   tournaments,
		registrations: registrations,
		brackets:      brackets,
		locks:         locks,
		logger:        logger,
	}
}

type RegistrationInput struct {
	MemberID    string `json:"memberId"`
	FighterName string `json:"fighterName"`
	Age         string `json:"categoryAge"`
	Weight      string `json:"categoryWeight"`
	Belt        string `json:"categoryBelt"`
}

// RegistrationChange reports which existing brackets no longer match the registrations after a
// change. Brackets are never rebuilt automatically; a flagged category needs a new generation run.
type RegistrationChange struct {
	Registration            bracket.Registration `json:"registration"`
	SourceNeedsRegeneration bool                 `json:"sourceNeedsRegeneration"`
	TargetNeedsRegeneration bool                 `json:"targetNeedsRegeneration"`
}

func (s *RegistrationService) Create(ctx context.Context, tournamentID uuid.UUID, in RegistrationInput) (*bracket.Registration, error) {
	name := strings.TrimSpace(in.FighterName)
	if name == "" {
		return nil, bracket.E("create registration", tournamentID, fmt.Errorf("%w: fighter name is required", bracket.ErrInvalidInput))
	}
	if _, err := s.tournaments.GetTournament(ctx, tournamentID); err != nil {
		return nil, lookupErr("create registration", tournamentID, err)
	}

	r := &bracket.Registration{
		ID:           uuid.New(),
		TournamentID: tournamentID,
		MemberID:     strings.TrimSpace(in.MemberID),
		FighterName:  name,
		Status:       bracket.RegistrationPending,
	}
	r.SetKey(bracket.NewKey(in.Age, in.Weight, in.Belt))

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.registrations.CreateRegistration(ctx, tx, r); err != nil {
		return nil, fmt.Errorf("failed to create registration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *RegistrationService) Get(ctx context.Context, id uuid.UUID) (*bracket.Registration, error) {
	r, err := s.registrations.GetRegistration(ctx, id)
	if err != nil {
		return nil, lookupErr("get registration", id, err)
	}
	return r, nil
}

func (s *RegistrationService) List(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Registration, error) {
	regs, err := s.registrations.ListRegistrations(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	return regs, nil
}

// Approve lets the registration into its category's bracket on the next generation.
func (s *RegistrationService) Approve(ctx context.Context, id uuid.UUID) (*RegistrationChange, error) {
	return s.setStatus(ctx, "approve registration", id, bracket.RegistrationApproved)
}

func (s *RegistrationService) Reject(ctx context.Context, id uuid.UUID) (*RegistrationChange, error) {
	return s.setStatus(ctx, "reject registration", id, bracket.RegistrationRejected)
}

func (s *RegistrationService) setStatus(ctx context.Context, op string, id uuid.UUID, status bracket.RegistrationStatus) (*RegistrationChange, error) {
	var change *RegistrationChange
	err := s.withRegistration(ctx, op, id, nil, func(tx *sqlx.Tx, r *bracket.Registration) error {
		change = &RegistrationChange{Registration: *r}
		if r.Status == status {
			return nil
		}

		wasApproved := r.IsApproved()
		stale, err := s.brackets.BracketExists(ctx, tx, r.TournamentID, r.Key().Normalize().String())
		if err != nil {
			return fmt.Errorf("failed to check bracket: %w", err)
		}

		r.Status = status
		if err := s.registrations.UpdateRegistrationStatus(ctx, tx, r); err != nil {
			return fmt.Errorf("failed to update registration status: %w", err)
		}

		change.Registration = *r
		switch {
		case wasApproved:
			change.SourceNeedsRegeneration = stale
		case r.IsApproved():
			change.TargetNeedsRegeneration = stale
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// MoveCategory rewrites the registration's three category labels. Brackets and matches are left
// alone; the result says whether the old or new category's bracket is now out of date.
func (s *RegistrationService) MoveCategory(ctx context.Context, id uuid.UUID, target bracket.Key) (*RegistrationChange, error) {
	const op = "move category"

	target = target.Normalize()
	var change *RegistrationChange
	var source bracket.Key
	err := s.withRegistration(ctx, op, id, &target, func(tx *sqlx.Tx, r *bracket.Registration) error {
		change = &RegistrationChange{Registration: *r}
		source = r.Key().Normalize()
		if source.Equal(target) {
			return nil
		}

		if r.IsApproved() {
			var err error
			if change.SourceNeedsRegeneration, err = s.brackets.BracketExists(ctx, tx, r.TournamentID, source.String()); err != nil {
				return fmt.Errorf("failed to check source bracket: %w", err)
			}
			if change.TargetNeedsRegeneration, err = s.brackets.BracketExists(ctx, tx, r.TournamentID, target.String()); err != nil {
				return fmt.Errorf("failed to check target bracket: %w", err)
			}
		}

		r.SetKey(target)
		if err := s.registrations.UpdateRegistrationCategory(ctx, tx, r); err != nil {
			return fmt.Errorf("failed to update registration category: %w", err)
		}
		change.Registration = *r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if source.Equal(target) {
		return change, nil
	}

	s.logger.Info("registration moved",
		"registration_id", id,
		"from", source.DisplayName(),
		"to", target.DisplayName(),
		"source_stale", change.SourceNeedsRegeneration,
		"target_stale", change.TargetNeedsRegeneration)
	return change, nil
}

// withRegistration runs fn in a transaction while holding the category locks of the registration's
// current category and of target, if given, so no generation run builds either category between
// the bracket check and the update. The registration handed to fn is read inside the transaction;
// if its category changed before the locks were taken, the attempt starts over.
func (s *RegistrationService) withRegistration(ctx context.Context, op string, id uuid.UUID, target *bracket.Key, fn func(tx *sqlx.Tx, r *bracket.Registration) error) error {
	for range maxLockAttempts {
		r, err := s.registrations.GetRegistration(ctx, id)
		if err != nil {
			return lookupErr(op, id, err)
		}

		locked := r.Key().Normalize().String()
		keys := []string{locked}
		if target != nil {
			keys = append(keys, target.String())
		}

		unlock := s.lockCategories(r.TournamentID, keys...)
		done, err := s.inRegistrationTx(ctx, op, id, locked, fn)
		unlock()
		if err != nil || done {
			return err
		}
	}
	return bracket.E(op, id, bracket.ErrCategoryBusy)
}

func (s *RegistrationService) inRegistrationTx(ctx context.Context, op string, id uuid.UUID, locked string, fn func(tx *sqlx.Tx, r *bracket.Registration) error) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	r, err := s.registrations.GetRegistrationTx(ctx, tx, id)
	if err != nil {
		return false, lookupErr(op, id, err)
	}
	if r.Key().Normalize().String() != locked {
		return false, nil
	}

	if err := fn(tx, r); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// lockCategories takes the category locks in sorted order, so two callers holding overlapping
// keys never wait on each other.
func (s *RegistrationService) lockCategories(tournamentID uuid.UUID, keys ...string) func() {
	keys = slices.Compact(slices.Sorted(slices.Values(keys)))
	unlocks := make([]func(), 0, len(keys))
	for _, key := range keys {
		unlocks = append(unlocks, s.locks.Lock(categoryLockKey(tournamentID, key)))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}
