package bracket

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/AdamBeresnev/dojo-brackets/internal/utils"
	"github.com/google/uuid"
)

type BuildOptions struct {
	// Shuffles the participants before placement when set. Nil keeps registration order.
	Rand *rand.Rand
}

// Gets the nearest power of 2 while rounding up, so with input 5 it returns 8 and so on.
// A lone fighter still gets a two-slot bracket so they have a match to win by bye.
func calcBracketSize(count int) int {
	if count <= 0 {
		return 0
	}
	if count == 1 {
		return 2
	}

	log2 := math.Ceil(math.Log2(float64(count)))
	return int(math.Pow(2, log2))
}

func roundName(round, totalRounds int) string {
	switch round {
	case totalRounds:
		return "Final"
	case totalRounds - 1:
		return "Semi-Finals"
	}
	return fmt.Sprintf("Round %d", round)
}

// Build turns one category into a complete single-elimination tree. Byes go to the last round-1
// matches, are completed on the spot and their winners are already placed in round 2.
func Build(tournamentID uuid.UUID, c Category, opts BuildOptions) (*Graph, error) {
	participants := append([]Registration(nil), c.Participants...)
	if len(participants) == 0 {
		return nil, E("build bracket", tournamentID, ErrEmptyCategory)
	}
	if opts.Rand != nil {
		opts.Rand.Shuffle(len(participants), func(i, j int) {
			participants[i], participants[j] = participants[j], participants[i]
		})
	}

	key := c.Key.Normalize()
	b := Bracket{
		ID:               uuid.New(),
		TournamentID:     tournamentID,
		CategoryAge:      key.Age,
		CategoryWeight:   key.Weight,
		CategoryBelt:     key.Belt,
		CategoryKey:      key.String(),
		DisplayName:      key.DisplayName(),
		ParticipantCount: len(participants),
		Status:           BracketDraft,
	}

	bracketSize := calcBracketSize(len(participants))
	totalRounds := int(math.Log2(float64(bracketSize)))

	var matches []Match
	var round1 []int
	nextRoundMatchIDs := make(map[int]uuid.UUID)

	// Working back from the final means every match knows its parent when it is created
	for r := totalRounds; r >= 1; r-- {
		matchesInRound := bracketSize >> r
		currentRoundMatchIDs := make(map[int]uuid.UUID, matchesInRound)

		for i := 0; i < matchesInRound; i++ {
			matchNumber := i + 1
			m := Match{
				ID:          uuid.New(),
				BracketID:   b.ID,
				RoundNumber: r,
				RoundName:   roundName(r, totalRounds),
				MatchNumber: matchNumber,
				Status:      MatchPending,
			}

			if r < totalRounds {
				parentID := nextRoundMatchIDs[(matchNumber+1)/2]
				m.NextMatchID = &parentID
				if matchNumber%2 != 0 {
					m.NextSlot = utils.Ptr(SlotA)
				} else {
					m.NextSlot = utils.Ptr(SlotB)
				}
			}

			if r == 1 {
				round1 = append(round1, len(matches))
			}
			matches = append(matches, m)
			currentRoundMatchIDs[matchNumber] = m.ID
		}
		nextRoundMatchIDs = currentRoundMatchIDs
	}

	byes := bracketSize - len(participants)
	fullMatches := (len(participants) - byes) / 2

	next := 0
	seat := func(m *Match, slot int) {
		p := participants[next]
		next++
		m.setFighter(slot, utils.Ptr(p.ID), utils.Ptr(p.FighterName))
	}
	for i, idx := range round1 {
		m := &matches[idx]
		seat(m, SlotA)
		if i < fullMatches {
			seat(m, SlotB)
			continue
		}
		m.IsBye = true
		m.Status = MatchCompleted
		m.WinnerID = m.FighterAID
	}

	g, err := NewGraph(b, matches)
	if err != nil {
		return nil, err
	}

	for i := range g.Matches {
		m := &g.Matches[i]
		if !m.IsBye {
			continue
		}
		if _, err := g.propagate(m); err != nil {
			return nil, err
		}
	}
	g.refreshStatus()

	return g, nil
}
