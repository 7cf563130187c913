package bracket

import (
	"time"

	"github.com/google/uuid"
)

type MatchStatus string

const (
	MatchPending   MatchStatus = "PENDING"
	MatchLive      MatchStatus = "LIVE"
	MatchCompleted MatchStatus = "COMPLETED"
)

// Slots in a match. The downstream slot a match feeds is fixed at build time.
const (
	SlotA = 1
	SlotB = 2
)

type Match struct {
	ID        uuid.UUID `db:"id" json:"id"`
	BracketID uuid.UUID `db:"bracket_id" json:"bracketId"`

	// Position in the tree for ordering and connector rendering
	RoundNumber int    `db:"round_number" json:"roundNumber"`
	RoundName   string `db:"round_name" json:"roundName"`
	MatchNumber int    `db:"match_number" json:"matchNumber"`

	FighterAID   *uuid.UUID `db:"fighter_a_id" json:"fighterAId"`
	FighterAName *string    `db:"fighter_a_name" json:"fighterAName"`
	FighterBID   *uuid.UUID `db:"fighter_b_id" json:"fighterBId"`
	FighterBName *string    `db:"fighter_b_name" json:"fighterBName"`

	ScoreA   *int        `db:"score_a" json:"scoreA"`
	ScoreB   *int        `db:"score_b" json:"scoreB"`
	WinnerID *uuid.UUID  `db:"winner_id" json:"winnerId"`
	IsBye    bool        `db:"is_bye" json:"isBye"`
	Status   MatchStatus `db:"status" json:"status"`

	NextMatchID *uuid.UUID `db:"next_match_id" json:"nextMatchId"`
	NextSlot    *int       `db:"next_slot" json:"nextSlot"`

	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

func (m *Match) IsFinal() bool {
	return m.NextMatchID == nil
}

func (m *Match) Ready() bool {
	return m.FighterAID != nil && m.FighterBID != nil
}

// SlotOf returns the slot holding the fighter, or 0 when the fighter is not in the match.
func (m *Match) SlotOf(fighterID uuid.UUID) int {
	switch {
	case m.FighterAID != nil && *m.FighterAID == fighterID:
		return SlotA
	case m.FighterBID != nil && *m.FighterBID == fighterID:
		return SlotB
	}
	return 0
}

func (m *Match) Fighter(slot int) (*uuid.UUID, *string) {
	if slot == SlotA {
		return m.FighterAID, m.FighterAName
	}
	return m.FighterBID, m.FighterBName
}

func (m *Match) setFighter(slot int, id *uuid.UUID, name *string) {
	if slot == SlotA {
		m.FighterAID, m.FighterAName = id, name
		return
	}
	m.FighterBID, m.FighterBName = id, name
}

// Loser returns the fighter who lost a completed, non-bye match.
func (m *Match) Loser() *uuid.UUID {
	if m.Status != MatchCompleted || m.WinnerID == nil || m.IsBye {
		return nil
	}
	if m.SlotOf(*m.WinnerID) == SlotA {
		return m.FighterBID
	}
	return m.FighterAID
}

func (m *Match) clearResult() {
	m.ScoreA = nil
	m.ScoreB = nil
	m.WinnerID = nil
	m.Status = MatchPending
}
