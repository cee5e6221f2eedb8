package game

import (
	"testing"
	"time"
)

// testCards builds the standard 68-card distribution without going through
// the assets package (which imports this one).
func testCards() []Card {
	colors := []Color{ColorRed, ColorGreen, ColorBlue, ColorYellow}
	var cards []Card
	add := func(c Card, n int) {
		for i := 0; i < n; i++ {
			cards = append(cards, c)
		}
	}
	for _, col := range colors {
		add(Card{Kind: KindOrgan, Color: col}, 5)
		add(Card{Kind: KindVirus, Color: col}, 4)
		add(Card{Kind: KindMedicine, Color: col}, 4)
	}
	add(Card{Kind: KindOrgan, Color: ColorMulti}, 1)
	add(Card{Kind: KindVirus, Color: ColorMulti}, 1)
	add(Card{Kind: KindMedicine, Color: ColorMulti}, 4)
	add(Card{Kind: KindTreatment, Treatment: TreatmentTransplant}, 2)
	add(Card{Kind: KindTreatment, Treatment: TreatmentOrganThief}, 3)
	add(Card{Kind: KindTreatment, Treatment: TreatmentInfection}, 2)
	add(Card{Kind: KindTreatment, Treatment: TreatmentLatexGlove}, 1)
	add(Card{Kind: KindTreatment, Treatment: TreatmentMedicalError}, 2)
	return cards
}

// newRunningGame starts a deterministic game whose turn timer is far enough
// away that tests fully control the pace.
func newRunningGame(t *testing.T, names ...string) *Game {
	t.Helper()
	g, err := NewGame(GameConfig{
		Players:  names,
		Cards:    testCards(),
		TurnTime: time.Hour,
		Seed:     7,
	})
	if err != nil {
		t.Fatalf("NewGame failed: %v", err)
	}
	g.Start()
	return g
}

// setTurn points the game at the named player's seat.
func setTurn(t *testing.T, g *Game, name string) {
	t.Helper()
	idx := g.playerIndex(name)
	if idx == -1 {
		t.Fatalf("no player %q", name)
	}
	g.turn = idx
	g.discarding = false
}

func organ(c Color) Card    { return Card{Kind: KindOrgan, Color: c} }
func virus(c Color) Card    { return Card{Kind: KindVirus, Color: c} }
func medicine(c Color) Card { return Card{Kind: KindMedicine, Color: c} }
func treatment(tr Treatment) Card {
	return Card{Kind: KindTreatment, Treatment: tr}
}

// playCardAs runs a PlayCard action for the named player, taking the turn
// first.
func playCardAs(t *testing.T, g *Game, name string, data PlayCardData) (*Update, error) {
	t.Helper()
	setTurn(t, g, name)
	return g.RunAction(name, ActionPlayCard{Data: data})
}
