package game

import "math/rand"

// Deck is a stack of cards. The top of the deck is cards[0]; cards returned
// to the deck go to the bottom, so they only re-enter circulation after the
// current stack is exhausted.
type Deck struct {
	cards []Card
	rng   *rand.Rand
}

// NewDeck creates a deck over the given cards with the supplied random
// number generator. The cards are not shuffled until Shuffle is called.
func NewDeck(cards []Card, rng *rand.Rand) *Deck {
	d := &Deck{
		cards: make([]Card, len(cards)),
		rng:   rng,
	}
	copy(d.cards, cards)
	return d
}

// Shuffle randomizes the order of the remaining cards.
func (d *Deck) Shuffle() {
	d.rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Draw removes and returns the top card of the deck.
func (d *Deck) Draw() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}
	card := d.cards[0]
	d.cards = d.cards[1:]
	return card, true
}

// ReturnBottom places cards at the bottom of the deck.
func (d *Deck) ReturnBottom(cards ...Card) {
	d.cards = append(d.cards, cards...)
}

// Size returns the number of cards remaining in the deck.
func (d *Deck) Size() int {
	return len(d.cards)
}
