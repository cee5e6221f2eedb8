package game

// Pile is one slot of a player's body: a base organ plus up to two
// modifiers. The first modifier is a virus or a medicine; a second medicine
// on top of the first makes the organ immune. A pile never holds modifiers
// without an organ.
type Pile struct {
	Organ     *Card
	Modifiers []Card
}

// IsEmpty reports whether the pile has no organ.
func (p *Pile) IsEmpty() bool { return p.Organ == nil }

// IsFree reports whether the pile has an organ and no modifiers.
func (p *Pile) IsFree() bool { return p.Organ != nil && len(p.Modifiers) == 0 }

// IsInfected reports whether the organ has a virus on it.
func (p *Pile) IsInfected() bool {
	return len(p.Modifiers) > 0 && p.Modifiers[0].Kind == KindVirus
}

// IsProtected reports whether the organ is covered by exactly one medicine.
func (p *Pile) IsProtected() bool {
	return len(p.Modifiers) == 1 && p.Modifiers[0].Kind == KindMedicine
}

// IsImmune reports whether the organ is covered by two medicines. Immune
// organs cannot be targeted by viruses, organ thieves or transplants.
func (p *Pile) IsImmune() bool {
	return len(p.Modifiers) == 2
}

// TopColor returns the color of the topmost card of the pile.
func (p *Pile) TopColor() Color {
	if n := len(p.Modifiers); n > 0 {
		return p.Modifiers[n-1].Color
	}
	if p.Organ != nil {
		return p.Organ.Color
	}
	return ""
}

// Cards returns every card currently in the pile, organ first.
func (p *Pile) Cards() []Card {
	if p.Organ == nil {
		return nil
	}
	cards := make([]Card, 0, 1+len(p.Modifiers))
	cards = append(cards, *p.Organ)
	cards = append(cards, p.Modifiers...)
	return cards
}

// Clear empties the pile and returns the removed cards.
func (p *Pile) Clear() []Card {
	cards := p.Cards()
	p.Organ = nil
	p.Modifiers = nil
	return cards
}

// popModifier removes and returns the topmost modifier.
func (p *Pile) popModifier() Card {
	n := len(p.Modifiers)
	card := p.Modifiers[n-1]
	p.Modifiers = p.Modifiers[:n-1]
	return card
}

// toMap returns the pile as a payload tree node.
func (p *Pile) toMap() M {
	mods := make([]M, 0, len(p.Modifiers))
	for _, c := range p.Modifiers {
		mods = append(mods, c.toMap())
	}
	m := M{"modifiers": mods}
	if p.Organ != nil {
		m["organ"] = p.Organ.toMap()
	} else {
		m["organ"] = nil
	}
	return m
}

// BodySlots is the fixed number of organ slots per player.
const BodySlots = 4

// Body is a player's four-slot organ board. No two non-empty piles may hold
// organs of the same non-Multi color.
type Body struct {
	Piles []*Pile
}

// NewBody creates an empty body.
func NewBody() *Body {
	piles := make([]*Pile, BodySlots)
	for i := range piles {
		piles[i] = &Pile{}
	}
	return &Body{Piles: piles}
}

// Pile returns the pile at slot i, or nil if out of range.
func (b *Body) Pile(i int) *Pile {
	if i < 0 || i >= len(b.Piles) {
		return nil
	}
	return b.Piles[i]
}

// HasOrganColor reports whether some non-empty pile holds an organ of the
// given color. Multi organs never conflict and are ignored here, as is a
// Multi query.
func (b *Body) HasOrganColor(color Color) bool {
	if color == ColorMulti {
		return false
	}
	for _, p := range b.Piles {
		if p.Organ != nil && p.Organ.Color == color {
			return true
		}
	}
	return false
}

// FirstEmptySlot returns the index of the first empty pile, or -1.
func (b *Body) FirstEmptySlot() int {
	for i, p := range b.Piles {
		if p.IsEmpty() {
			return i
		}
	}
	return -1
}

// IsComplete reports whether the body wins the game: four non-empty piles
// whose organ colors are pairwise distinct, with Multi counting as any
// missing color.
func (b *Body) IsComplete() bool {
	seen := make(map[Color]bool)
	for _, p := range b.Piles {
		if p.IsEmpty() {
			return false
		}
		color := p.Organ.Color
		if color == ColorMulti {
			continue
		}
		if seen[color] {
			return false
		}
		seen[color] = true
	}
	return true
}

// cardCount returns the number of cards held across all piles.
func (b *Body) cardCount() int {
	n := 0
	for _, p := range b.Piles {
		n += len(p.Cards())
	}
	return n
}

// toList returns the body as a payload tree node (a list of piles, replaced
// wholesale on merge).
func (b *Body) toList() []M {
	piles := make([]M, 0, len(b.Piles))
	for _, p := range b.Piles {
		piles = append(piles, p.toMap())
	}
	return piles
}
