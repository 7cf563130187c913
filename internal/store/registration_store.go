package store

import (
	"context"
	"time"

	"github.com/AdamBeresnev/dojo-brackets/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	getRegistrationQuery   = "SELECT * FROM registrations WHERE id = ?"
	listRegistrationsQuery = `
		SELECT * FROM registrations
		WHERE tournament_id = ?
		ORDER BY created_at ASC, id ASC
	`
	createRegistrationQuery = `
		INSERT INTO registrations (id, tournament_id, member_id, fighter_name, category_age, category_weight, category_belt, status, created_at, updated_at)
		VALUES (:id, :tournament_id, :member_id, :fighter_name, :category_age, :category_weight, :category_belt, :status, :created_at, :updated_at)
	`
	updateRegistrationCategoryQuery = `
		UPDATE registrations SET
		category_age = :category_age,
		category_weight = :category_weight,
		category_belt = :category_belt,
		updated_at = :updated_at
		WHERE id = :id
	`
	updateRegistrationStatusQuery = `
		UPDATE registrations SET
		status = :status,
		updated_at = :updated_at
		WHERE id = :id
	`
)

type RegistrationStore struct {
	db *sqlx.DB
}

func NewRegistrationStore(db *sqlx.DB) *RegistrationStore {
	return &RegistrationStore{db: db}
}

func (s *RegistrationStore) CreateRegistration(ctx context.Context, tx *sqlx.Tx, r *bracket.Registration) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	_, err := tx.NamedExecContext(ctx, createRegistrationQuery, r)
	return err
}

func (s *RegistrationStore) GetRegistration(ctx context.Context, id uuid.UUID) (*bracket.Registration, error) {
	var r bracket.Registration
	if err := s.db.GetContext(ctx, &r, s.db.Rebind(getRegistrationQuery), id); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RegistrationStore) GetRegistrationTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.Registration, error) {
	var r bracket.Registration
	if err := tx.GetContext(ctx, &r, tx.Rebind(getRegistrationQuery), id); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRegistrations returns a tournament's registrations in registration order.
func (s *RegistrationStore) ListRegistrations(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Registration, error) {
	var regs []bracket.Registration
	err := s.db.SelectContext(ctx, &regs, s.db.Rebind(listRegistrationsQuery), tournamentID)
	return regs, err
}

func (s *RegistrationStore) UpdateRegistrationCategory(ctx context.Context, tx *sqlx.Tx, r *bracket.Registration) error {
	r.UpdatedAt = time.Now().UTC()
	_, err := tx.NamedExecContext(ctx, updateRegistrationCategoryQuery, r)
	return err
}

func (s *RegistrationStore) UpdateRegistrationStatus(ctx context.Context, tx *sqlx.Tx, r *bracket.Registration) error {
	r.UpdatedAt = time.Now().UTC()
	_, err := tx.NamedExecContext(ctx, updateRegistrationStatusQuery, r)
	return err
}
