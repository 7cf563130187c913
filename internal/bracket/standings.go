package bracket

import "github.com/google/uuid"

type Medal string

const (
	MedalGold   Medal = "GOLD"
	MedalSilver Medal = "SILVER"
	MedalBronze Medal = "BRONZE"
)

type Standing struct {
	RegistrationID uuid.UUID `json:"registrationId"`
	FighterName    string    `json:"fighterName"`
	Rank           int       `json:"rank"`
	Medal          Medal     `json:"medal"`
}

// Standings ranks the medallists of a finished bracket. Both semi-final losers share third place;
// anyone eliminated earlier is left out.
func Standings(g *Graph) ([]Standing, error) {
	for _, m := range g.Matches {
		if m.Status != MatchCompleted {
			return nil, E("standings", g.Bracket.ID, ErrStandingsNotFinal)
		}
	}

	final := g.Final()
	if final.WinnerID == nil {
		return nil, g.violation("standings", final.ID, "completed final has no winner")
	}

	standings := []Standing{medallist(final, *final.WinnerID, 1, MedalGold)}
	if loser := final.Loser(); loser != nil {
		standings = append(standings, medallist(final, *loser, 2, MedalSilver))
	}
	for _, semi := range g.Feeders(final.ID) {
		if loser := semi.Loser(); loser != nil {
			standings = append(standings, medallist(semi, *loser, 3, MedalBronze))
		}
	}
	return standings, nil
}

func medallist(m *Match, id uuid.UUID, rank int, medal Medal) Standing {
	_, name := m.Fighter(m.SlotOf(id))
	s := Standing{RegistrationID: id, Rank: rank, Medal: medal}
	if name != nil {
		s.FighterName = *name
	}
	return s
}
