package bracket

import (
	"time"

	"github.com/google/uuid"
)

type RegistrationStatus string

const (
	RegistrationPending  RegistrationStatus = "PENDING"
	RegistrationApproved RegistrationStatus = "APPROVED"
	RegistrationRejected RegistrationStatus = "REJECTED"
)

// Registration is a competitor's entry in a tournament. Only the approval state and the three
// category labels ever change after creation.
type Registration struct {
	ID             uuid.UUID          `db:"id" json:"id"`
	TournamentID   uuid.UUID          `db:"tournament_id" json:"tournamentId"`
	MemberID       string             `db:"member_id" json:"memberId"`
	FighterName    string             `db:"fighter_name" json:"fighterName"`
	CategoryAge    *string            `db:"category_age" json:"categoryAge"`
	CategoryWeight *string            `db:"category_weight" json:"categoryWeight"`
	CategoryBelt   *string            `db:"category_belt" json:"categoryBelt"`
	Status         RegistrationStatus `db:"status" json:"status"`
	CreatedAt      time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time          `db:"updated_at" json:"updatedAt"`
}

func (r *Registration) Key() Key {
	return Key{Age: r.CategoryAge, Weight: r.CategoryWeight, Belt: r.CategoryBelt}
}

func (r *Registration) SetKey(k Key) {
	k = k.Normalize()
	r.CategoryAge = k.Age
	r.CategoryWeight = k.Weight
	r.CategoryBelt = k.Belt
}

func (r *Registration) IsApproved() bool {
	return r.Status == RegistrationApproved
}
