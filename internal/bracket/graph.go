package bracket

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Graph is a bracket together with the matches it owns. Matches link to each other by ID only and
// are kept ordered by round and match number.
type Graph struct {
	Bracket Bracket `json:"bracket"`
	Matches []Match `json:"matches"`

	index map[uuid.UUID]int
}

type Round struct {
	Number  int     `json:"number"`
	Name    string  `json:"name"`
	Matches []Match `json:"matches"`
}

// NewGraph takes ownership of matches and checks that they form one well-formed tree.
func NewGraph(b Bracket, matches []Match) (*Graph, error) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].RoundNumber != matches[j].RoundNumber {
			return matches[i].RoundNumber < matches[j].RoundNumber
		}
		return matches[i].MatchNumber < matches[j].MatchNumber
	})

	g := &Graph{Bracket: b, Matches: matches, index: make(map[uuid.UUID]int, len(matches))}
	for i, m := range matches {
		if _, dup := g.index[m.ID]; dup {
			return nil, g.corrupt("duplicate match %s", m.ID)
		}
		g.index[m.ID] = i
	}

	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) validate() error {
	if len(g.Matches) == 0 {
		return g.corrupt("bracket has no matches")
	}

	last := g.Matches[len(g.Matches)-1].RoundNumber
	if g.Matches[0].RoundNumber != 1 {
		return g.corrupt("first round is %d", g.Matches[0].RoundNumber)
	}
	if want := 1<<last - 1; len(g.Matches) != want {
		return g.corrupt("%d rounds need %d matches, found %d", last, want, len(g.Matches))
	}

	finals := 0
	for i := range g.Matches {
		m := &g.Matches[i]
		if m.BracketID != g.Bracket.ID {
			return g.corrupt("match %s belongs to bracket %s", m.ID, m.BracketID)
		}
		if want := 1 << (last - m.RoundNumber); m.MatchNumber < 1 || m.MatchNumber > want {
			return g.corrupt("match %s has number %d in a round of %d", m.ID, m.MatchNumber, want)
		}
		if m.NextMatchID == nil {
			finals++
			if m.RoundNumber != last {
				return g.corrupt("match %s in round %d has no next match", m.ID, m.RoundNumber)
			}
			continue
		}
		next, ok := g.lookup(*m.NextMatchID)
		if !ok || next.RoundNumber != m.RoundNumber+1 {
			return g.corrupt("match %s links outside the next round", m.ID)
		}
		if m.NextSlot == nil || (*m.NextSlot != SlotA && *m.NextSlot != SlotB) {
			return g.corrupt("match %s has no valid next slot", m.ID)
		}
		if m.IsBye && m.RoundNumber != 1 {
			return g.corrupt("bye %s outside the first round", m.ID)
		}
	}
	if finals != 1 {
		return g.corrupt("found %d finals", finals)
	}
	return nil
}

func (g *Graph) corrupt(format string, args ...any) error {
	return &Error{
		Kind:     KindInvariant,
		Op:       "load bracket",
		EntityID: g.Bracket.ID,
		Err:      fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...)),
	}
}

func (g *Graph) lookup(id uuid.UUID) (*Match, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return &g.Matches[i], true
}

// Match returns a copy of the match with the given id.
func (g *Graph) Match(id uuid.UUID) (Match, bool) {
	m, ok := g.lookup(id)
	if !ok {
		return Match{}, false
	}
	return *m, true
}

func (g *Graph) Final() *Match {
	return &g.Matches[len(g.Matches)-1]
}

func (g *Graph) TotalRounds() int {
	return g.Final().RoundNumber
}

func (g *Graph) Rounds() []Round {
	rounds := make([]Round, 0, g.TotalRounds())
	for _, m := range g.Matches {
		if len(rounds) == 0 || rounds[len(rounds)-1].Number != m.RoundNumber {
			rounds = append(rounds, Round{Number: m.RoundNumber, Name: m.RoundName})
		}
		r := &rounds[len(rounds)-1]
		r.Matches = append(r.Matches, m)
	}
	return rounds
}

// Feeders returns the matches whose winners move into m, slot A first.
func (g *Graph) Feeders(id uuid.UUID) []*Match {
	var feeders []*Match
	for i := range g.Matches {
		m := &g.Matches[i]
		if m.NextMatchID != nil && *m.NextMatchID == id {
			feeders = append(feeders, m)
		}
	}
	sort.Slice(feeders, func(i, j int) bool { return *feeders[i].NextSlot < *feeders[j].NextSlot })
	return feeders
}

func (g *Graph) Locked() bool {
	return g.Bracket.Status == BracketLocked
}

func (g *Graph) Lock() {
	g.Bracket.Status = BracketLocked
}

func (g *Graph) Unlock() {
	if !g.Locked() {
		return
	}
	g.Bracket.Status = BracketDraft
	g.refreshStatus()
}

// refreshStatus derives the bracket status from its matches. A locked bracket stays locked.
func (g *Graph) refreshStatus() {
	if g.Locked() {
		return
	}
	if g.Final().Status == MatchCompleted {
		g.Bracket.Status = BracketCompleted
		return
	}
	for _, m := range g.Matches {
		if m.IsBye {
			continue
		}
		if m.Status != MatchPending {
			g.Bracket.Status = BracketInProgress
			return
		}
	}
	g.Bracket.Status = BracketDraft
}
