package bracket

import (
	"time"

	"github.com/google/uuid"
)

type Tournament struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type BracketStatus string

const (
	BracketDraft      BracketStatus = "DRAFT"
	BracketInProgress BracketStatus = "IN_PROGRESS"
	BracketCompleted  BracketStatus = "COMPLETED"
	BracketLocked     BracketStatus = "LOCKED"
)

// Bracket is the single-elimination tree of one category within a tournament.
type Bracket struct {
	ID               uuid.UUID     `db:"id" json:"id"`
	TournamentID     uuid.UUID     `db:"tournament_id" json:"tournamentId"`
	CategoryAge      *string       `db:"category_age" json:"categoryAge"`
	CategoryWeight   *string       `db:"category_weight" json:"categoryWeight"`
	CategoryBelt     *string       `db:"category_belt" json:"categoryBelt"`
	CategoryKey      string        `db:"category_key" json:"categoryKey"`
	DisplayName      string        `db:"display_name" json:"displayName"`
	ParticipantCount int           `db:"participant_count" json:"participantCount"`
	Status           BracketStatus `db:"status" json:"status"`
	CreatedAt        time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updatedAt"`
}

func (b *Bracket) Key() Key {
	return Key{Age: b.CategoryAge, Weight: b.CategoryWeight, Belt: b.CategoryBelt}
}
