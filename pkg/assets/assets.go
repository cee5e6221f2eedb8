// Package assets holds the static game assets: the card catalog the deck is
// built from and the cosmetic board/avatar identifiers users can equip.
package assets

import "github.com/gatovid/arena/pkg/game"

// CardRecord is one catalog line: a card variant and how many copies of it
// the deck carries.
type CardRecord struct {
	Card  game.Card
	Count int
}

// DefaultCatalog is the standard 68-card distribution: five organs per color
// plus one multicolor, four viruses per color plus one multicolor, four
// medicines per color plus four multicolor, and ten treatments.
var DefaultCatalog = buildCatalog()

func buildCatalog() []CardRecord {
	colors := []game.Color{
		game.ColorRed, game.ColorGreen, game.ColorBlue, game.ColorYellow,
	}

	var cat []CardRecord
	for _, c := range colors {
		cat = append(cat, CardRecord{Card: game.Card{Kind: game.KindOrgan, Color: c}, Count: 5})
	}
	cat = append(cat, CardRecord{Card: game.Card{Kind: game.KindOrgan, Color: game.ColorMulti}, Count: 1})

	for _, c := range colors {
		cat = append(cat, CardRecord{Card: game.Card{Kind: game.KindVirus, Color: c}, Count: 4})
	}
	cat = append(cat, CardRecord{Card: game.Card{Kind: game.KindVirus, Color: game.ColorMulti}, Count: 1})

	for _, c := range colors {
		cat = append(cat, CardRecord{Card: game.Card{Kind: game.KindMedicine, Color: c}, Count: 4})
	}
	cat = append(cat, CardRecord{Card: game.Card{Kind: game.KindMedicine, Color: game.ColorMulti}, Count: 4})

	treatments := []struct {
		t game.Treatment
		n int
	}{
		{game.TreatmentTransplant, 2},
		{game.TreatmentOrganThief, 3},
		{game.TreatmentInfection, 2},
		{game.TreatmentLatexGlove, 1},
		{game.TreatmentMedicalError, 2},
	}
	for _, tr := range treatments {
		cat = append(cat, CardRecord{
			Card:  game.Card{Kind: game.KindTreatment, Treatment: tr.t},
			Count: tr.n,
		})
	}
	return cat
}

// Cards expands the catalog into the flat deck contents.
func Cards() []game.Card {
	var cards []game.Card
	for _, rec := range DefaultCatalog {
		for i := 0; i < rec.Count; i++ {
			cards = append(cards, rec.Card)
		}
	}
	return cards
}

// TotalCards is the deck size of the default catalog.
func TotalCards() int {
	n := 0
	for _, rec := range DefaultCatalog {
		n += rec.Count
	}
	return n
}

// Cosmetic asset ids. Users equip one avatar and one board; the match-start
// payload carries everyone's picks so clients can render the table.
const (
	NumAvatars = 12
	NumBoards  = 4
)

// ValidAvatar reports whether id names a known avatar.
func ValidAvatar(id int) bool { return id >= 0 && id < NumAvatars }

// ValidBoard reports whether id names a known board.
func ValidBoard(id int) bool { return id >= 0 && id < NumBoards }
