package game

// Player is a seat in a running game. The name is a copy of the user's
// display name at join time; the Game resolves every back-reference through
// it instead of holding user objects.
type Player struct {
	Name     string
	Hand     []Card
	Body     *Body
	Position int // finishing position 1..N, 0 while still playing
	AFKTurns int // consecutive turns ended by the timer
	IsAI     bool
}

// NewPlayer creates a player with an empty hand and body.
func NewPlayer(name string) *Player {
	return &Player{
		Name: name,
		Hand: make([]Card, 0, MinHandCards),
		Body: NewBody(),
	}
}

// Finished reports whether the player has completed their body.
func (p *Player) Finished() bool { return p.Position > 0 }

// removeCard removes and returns the card at the given hand slot.
func (p *Player) removeCard(slot int) (Card, error) {
	if slot < 0 || slot >= len(p.Hand) {
		return Card{}, errLogic("carta no válida")
	}
	card := p.Hand[slot]
	p.Hand = append(p.Hand[:slot], p.Hand[slot+1:]...)
	return card, nil
}

// handList returns the hand as a payload tree node.
func (p *Player) handList() []M {
	hand := make([]M, 0, len(p.Hand))
	for _, c := range p.Hand {
		hand = append(hand, c.toMap())
	}
	return hand
}

// toMap returns the public view of the player for the players list.
func (p *Player) toMap() M {
	return M{
		"name":     p.Name,
		"is_ai":    p.IsAI,
		"position": p.Position,
	}
}
