package bracket

import (
	"fmt"

	"github.com/AdamBeresnev/dojo-brackets/internal/utils"
	"github.com/google/uuid"
)

// Result is a declared winner with optional final scores. Omitted scores keep whatever was entered
// while the match was live.
type Result struct {
	WinnerID uuid.UUID `json:"winnerId"`
	ScoreA   *int      `json:"scoreA"`
	ScoreB   *int      `json:"scoreB"`
}

// changeSet collects touched matches once each, in the order they were first touched.
type changeSet struct {
	seen  map[uuid.UUID]bool
	order []*Match
}

func newChangeSet() *changeSet {
	return &changeSet{seen: make(map[uuid.UUID]bool)}
}

func (c *changeSet) add(m *Match) {
	if c.seen[m.ID] {
		return
	}
	c.seen[m.ID] = true
	c.order = append(c.order, m)
}

func (c *changeSet) matches() []Match {
	out := make([]Match, 0, len(c.order))
	for _, m := range c.order {
		out = append(out, *m)
	}
	return out
}

// RecordResult completes a ready match and moves the winner into the next match. The returned
// matches are every match whose state changed, the recorded match first. Recording the winner a
// completed match already has changes nothing and returns no matches.
func (g *Graph) RecordResult(matchID uuid.UUID, res Result) ([]Match, error) {
	const op = "record result"

	m, err := g.playable(op, matchID)
	if err != nil {
		return nil, err
	}
	if m.SlotOf(res.WinnerID) == 0 {
		return nil, E(op, matchID, ErrWinnerNotInMatch)
	}
	if err := checkScores(res.ScoreA, res.ScoreB); err != nil {
		return nil, E(op, matchID, err)
	}
	if m.Status == MatchCompleted {
		if *m.WinnerID == res.WinnerID {
			return nil, nil
		}
		return nil, E(op, matchID, ErrResultAlreadyRecorded)
	}

	changes := newChangeSet()
	if err := g.complete(m, res, changes); err != nil {
		return nil, err
	}
	g.refreshStatus()
	return changes.matches(), nil
}

// OverrideResult corrects the winner of a completed match. Every downstream match the old winner
// reached is voided back to pending, recursively, before the new winner is propagated. Keeping the
// same winner only rewrites the scores.
func (g *Graph) OverrideResult(matchID uuid.UUID, res Result) ([]Match, error) {
	const op = "override result"

	m, err := g.playable(op, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status != MatchCompleted {
		return nil, E(op, matchID, ErrNotOverridable)
	}
	if m.SlotOf(res.WinnerID) == 0 {
		return nil, E(op, matchID, ErrWinnerNotInMatch)
	}
	if err := checkScores(res.ScoreA, res.ScoreB); err != nil {
		return nil, E(op, matchID, err)
	}

	changes := newChangeSet()
	if *m.WinnerID == res.WinnerID {
		setScores(m, res.ScoreA, res.ScoreB)
		changes.add(m)
		return changes.matches(), nil
	}

	changes.add(m)
	if err := g.voidDownstream(m, changes); err != nil {
		return nil, err
	}
	if err := g.complete(m, res, changes); err != nil {
		return nil, err
	}
	g.refreshStatus()
	return changes.matches(), nil
}

// UpdateScores records live scores for a ready match and marks it LIVE. It never decides a winner.
func (g *Graph) UpdateScores(matchID uuid.UUID, scoreA, scoreB int) (Match, error) {
	const op = "update scores"

	m, err := g.playable(op, matchID)
	if err != nil {
		return Match{}, err
	}
	if m.Status == MatchCompleted {
		return Match{}, E(op, matchID, ErrMatchCompleted)
	}
	if err := checkScores(&scoreA, &scoreB); err != nil {
		return Match{}, E(op, matchID, err)
	}

	m.ScoreA = utils.Ptr(scoreA)
	m.ScoreB = utils.Ptr(scoreB)
	m.Status = MatchLive
	g.refreshStatus()
	return *m, nil
}

// playable finds a match that results may be entered for.
func (g *Graph) playable(op string, matchID uuid.UUID) (*Match, error) {
	if g.Locked() {
		return nil, E(op, g.Bracket.ID, ErrBracketLocked)
	}
	m, ok := g.lookup(matchID)
	if !ok {
		return nil, E(op, matchID, ErrNotFound)
	}
	if m.IsBye {
		return nil, E(op, matchID, ErrByeImmutable)
	}
	if !m.Ready() {
		return nil, E(op, matchID, ErrMatchNotReady)
	}
	return m, nil
}

func (g *Graph) complete(m *Match, res Result, changes *changeSet) error {
	setScores(m, res.ScoreA, res.ScoreB)
	winner := res.WinnerID
	m.WinnerID = &winner
	m.Status = MatchCompleted
	changes.add(m)

	next, err := g.propagate(m)
	if err != nil {
		return err
	}
	if next != nil {
		changes.add(next)
	}
	return nil
}

// propagate places the winner of m into its slot of the next match. The slot must be empty or
// already hold that winner.
func (g *Graph) propagate(m *Match) (*Match, error) {
	if m.NextMatchID == nil {
		return nil, nil
	}
	next, ok := g.lookup(*m.NextMatchID)
	if !ok {
		return nil, g.violation("propagate", m.ID, "next match %s missing", *m.NextMatchID)
	}

	id, name := m.Fighter(m.SlotOf(*m.WinnerID))
	slot := *m.NextSlot
	if current, _ := next.Fighter(slot); current != nil {
		if utils.Same(current, id) {
			return nil, nil
		}
		return nil, g.violation("propagate", next.ID, "slot %d already holds %s", slot, *current)
	}

	next.setFighter(slot, id, name)
	return next, nil
}

// voidDownstream clears the slot m's winner occupies in the next match. A next match that was live
// or completed loses its result too, and a completed one voids its own downstream slot first.
func (g *Graph) voidDownstream(m *Match, changes *changeSet) error {
	if m.NextMatchID == nil {
		return nil
	}
	next, ok := g.lookup(*m.NextMatchID)
	if !ok {
		return g.violation("void", m.ID, "next match %s missing", *m.NextMatchID)
	}
	if next.IsBye {
		return g.violation("void", next.ID, "bye fed by match %s", m.ID)
	}

	if next.Status == MatchCompleted {
		if err := g.voidDownstream(next, changes); err != nil {
			return err
		}
	}

	next.setFighter(*m.NextSlot, nil, nil)
	if next.Status != MatchPending {
		next.clearResult()
	}
	changes.add(next)
	return nil
}

func (g *Graph) violation(op string, id uuid.UUID, format string, args ...any) error {
	return &Error{
		Kind:     KindInvariant,
		Op:       op,
		EntityID: id,
		Err:      fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...)),
	}
}

func checkScores(a, b *int) error {
	if (a != nil && *a < 0) || (b != nil && *b < 0) {
		return ErrInvalidScore
	}
	return nil
}

func setScores(m *Match, a, b *int) {
	if a != nil {
		m.ScoreA = utils.Ptr(*a)
	}
	if b != nil {
		m.ScoreB = utils.Ptr(*b)
	}
}
