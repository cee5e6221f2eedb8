package game

import "fmt"

// applyCard dispatches on the card variant. On success the returned update
// carries the affected bodies and a broadcast message; on failure the game
// state is untouched. Caller holds the turn lock.
func (g *Game) applyCard(caller *Player, card Card, data PlayCardData) (*Update, error) {
	switch card.Kind {
	case KindOrgan:
		return g.playOrgan(caller, card, data)
	case KindVirus:
		return g.playVirus(caller, card, data)
	case KindMedicine:
		return g.playMedicine(caller, card, data)
	case KindTreatment:
		switch card.Treatment {
		case TreatmentTransplant:
			return g.playTransplant(caller, card, data)
		case TreatmentOrganThief:
			return g.playOrganThief(caller, card, data)
		case TreatmentInfection:
			return g.playInfection(caller, card)
		case TreatmentLatexGlove:
			return g.playLatexGlove(caller, card)
		case TreatmentMedicalError:
			return g.playMedicalError(caller, card, data)
		}
	}
	return nil, errLogic("carta no válida")
}

// targetPlayer resolves a target name from the action parameters.
func (g *Game) targetPlayer(name string) (*Player, error) {
	if name == "" {
		return nil, errLogic("parámetro vacío")
	}
	p := g.playerByName(name)
	if p == nil {
		return nil, errLogic("jugador no válido")
	}
	return p, nil
}

// targetPile resolves a pile index on a player's body.
func targetPile(p *Player, i int) (*Pile, error) {
	pile := p.Body.Pile(i)
	if pile == nil {
		return nil, errLogic("pila no válida")
	}
	return pile, nil
}

// bodiesOf returns the "bodies" payload node for the given players.
func bodiesOf(players ...*Player) M {
	bodies := M{}
	for _, p := range players {
		bodies[p.Name] = p.Body.toList()
	}
	return M{"bodies": bodies}
}

func cardArticle(card Card) string {
	if card.Kind == KindMedicine {
		return "una"
	}
	return "un"
}

func (g *Game) playOrgan(caller *Player, card Card, data PlayCardData) (*Update, error) {
	if data.Target != "" && data.Target != caller.Name {
		return nil, errLogic("solo puedes colocar órganos en tu propio cuerpo")
	}
	pile, err := targetPile(caller, data.OrganPile)
	if err != nil {
		return nil, err
	}
	if !pile.IsEmpty() {
		return nil, errLogic("esa pila ya tiene un órgano")
	}
	if card.Color != ColorMulti && caller.Body.HasOrganColor(card.Color) {
		return nil, errLogic("ya tienes un órgano de ese color")
	}

	organ := card
	pile.Organ = &organ

	u := g.newUpdate()
	u.Repeat(bodiesOf(caller))
	u.AddMessage(fmt.Sprintf("%s ha jugado %s %s",
		caller.Name, cardArticle(card), card.Name()))
	return u, nil
}

func (g *Game) playVirus(caller *Player, card Card, data PlayCardData) (*Update, error) {
	target, err := g.targetPlayer(data.Target)
	if err != nil {
		return nil, err
	}
	if target == caller {
		return nil, errLogic("no puedes infectar tus propios órganos")
	}
	if target.Finished() {
		return nil, errLogic("ese jugador ya ha terminado")
	}
	pile, err := targetPile(target, data.OrganPile)
	if err != nil {
		return nil, err
	}
	if pile.IsEmpty() {
		return nil, errLogic("esa pila está vacía")
	}
	if !colorsCompatible(card.Color, pile.TopColor()) {
		return nil, errLogic("el color del virus no coincide")
	}

	switch {
	case pile.IsImmune():
		return nil, errLogic("inmune")
	case pile.IsInfected():
		// Extirpate: the organ, its virus and the new virus all leave play.
		removed := pile.Clear()
		g.deck.ReturnBottom(append(removed, card)...)
	case pile.IsProtected():
		medicine := pile.popModifier()
		g.deck.ReturnBottom(medicine, card)
	default:
		pile.Modifiers = append(pile.Modifiers, card)
	}

	u := g.newUpdate()
	u.Repeat(bodiesOf(target))
	u.AddMessage(fmt.Sprintf("%s ha jugado %s %s sobre %s",
		caller.Name, cardArticle(card), card.Name(), target.Name))
	return u, nil
}

func (g *Game) playMedicine(caller *Player, card Card, data PlayCardData) (*Update, error) {
	if data.Target != "" && data.Target != caller.Name {
		return nil, errLogic("solo puedes medicar tus propios órganos")
	}
	pile, err := targetPile(caller, data.OrganPile)
	if err != nil {
		return nil, err
	}
	if pile.IsEmpty() {
		return nil, errLogic("esa pila está vacía")
	}
	if !colorsCompatible(card.Color, pile.TopColor()) {
		return nil, errLogic("el color de la medicina no coincide")
	}

	switch {
	case pile.IsImmune():
		return nil, errLogic("inmune")
	case pile.IsInfected():
		virus := pile.popModifier()
		g.deck.ReturnBottom(virus, card)
	default:
		// free -> protected, protected -> immune
		pile.Modifiers = append(pile.Modifiers, card)
	}

	u := g.newUpdate()
	u.Repeat(bodiesOf(caller))
	u.AddMessage(fmt.Sprintf("%s ha jugado %s %s",
		caller.Name, cardArticle(card), card.Name()))
	return u, nil
}

func (g *Game) playTransplant(caller *Player, card Card, data PlayCardData) (*Update, error) {
	p1, err := g.targetPlayer(data.Target1)
	if err != nil {
		return nil, err
	}
	p2, err := g.targetPlayer(data.Target2)
	if err != nil {
		return nil, err
	}
	if p1 == p2 {
		return nil, errLogic("elige dos jugadores distintos")
	}
	if p1.Finished() || p2.Finished() {
		return nil, errLogic("ese jugador ya ha terminado")
	}
	pile1, err := targetPile(p1, data.OrganPile1)
	if err != nil {
		return nil, err
	}
	pile2, err := targetPile(p2, data.OrganPile2)
	if err != nil {
		return nil, err
	}
	if pile1.IsEmpty() || pile2.IsEmpty() {
		return nil, errLogic("esa pila está vacía")
	}
	if pile1.IsImmune() || pile2.IsImmune() {
		return nil, errLogic("inmune")
	}
	if err := swapWouldDuplicate(p1, data.OrganPile1, pile2.Organ.Color); err != nil {
		return nil, err
	}
	if err := swapWouldDuplicate(p2, data.OrganPile2, pile1.Organ.Color); err != nil {
		return nil, err
	}

	p1.Body.Piles[data.OrganPile1], p2.Body.Piles[data.OrganPile2] = pile2, pile1
	g.deck.ReturnBottom(card)

	u := g.newUpdate()
	u.Repeat(bodiesOf(p1, p2))
	u.AddMessage(fmt.Sprintf("%s ha jugado un %s entre %s y %s",
		caller.Name, card.Name(), p1.Name, p2.Name))
	return u, nil
}

// swapWouldDuplicate checks that owner can receive an organ of the given
// color at slot, ignoring the slot itself (it is leaving in the same swap).
func swapWouldDuplicate(owner *Player, slot int, incoming Color) error {
	if incoming == ColorMulti {
		return nil
	}
	for i, p := range owner.Body.Piles {
		if i == slot {
			continue
		}
		if p.Organ != nil && p.Organ.Color == incoming {
			return errLogic("%s ya tiene un órgano de ese color", owner.Name)
		}
	}
	return nil
}

func (g *Game) playOrganThief(caller *Player, card Card, data PlayCardData) (*Update, error) {
	target, err := g.targetPlayer(data.Target)
	if err != nil {
		return nil, err
	}
	if target == caller {
		return nil, errLogic("no puedes robarte a ti mismo")
	}
	if target.Finished() {
		return nil, errLogic("ese jugador ya ha terminado")
	}
	pile, err := targetPile(target, data.OrganPile)
	if err != nil {
		return nil, err
	}
	if pile.IsEmpty() {
		return nil, errLogic("esa pila está vacía")
	}
	if pile.IsImmune() {
		return nil, errLogic("inmune")
	}
	slot := caller.Body.FirstEmptySlot()
	if slot == -1 {
		return nil, errLogic("no tienes ningún hueco libre")
	}
	if pile.Organ.Color != ColorMulti && caller.Body.HasOrganColor(pile.Organ.Color) {
		return nil, errLogic("ya tienes un órgano de ese color")
	}

	caller.Body.Piles[slot] = pile
	target.Body.Piles[data.OrganPile] = &Pile{}
	g.deck.ReturnBottom(card)

	u := g.newUpdate()
	u.Repeat(bodiesOf(caller, target))
	u.AddMessage(fmt.Sprintf("%s ha jugado un %s sobre %s",
		caller.Name, card.Name(), target.Name))
	return u, nil
}

func (g *Game) playInfection(caller *Player, card Card) (*Update, error) {
	// The caller's viruses, by pile index, in random order.
	var infected []int
	for i, p := range caller.Body.Piles {
		if p.IsInfected() {
			infected = append(infected, i)
		}
	}
	if len(infected) == 0 {
		return nil, errLogic("no tienes órganos infectados")
	}

	type slot struct {
		player *Player
		pile   int
	}
	var candidates []slot
	for _, p := range g.players {
		if p == caller || p.Finished() {
			continue
		}
		for i, pile := range p.Body.Piles {
			if pile.IsFree() {
				candidates = append(candidates, slot{player: p, pile: i})
			}
		}
	}
	if len(candidates) == 0 {
		return nil, errLogic("no hay órganos libres que contagiar")
	}

	g.rng.Shuffle(len(infected), func(i, j int) {
		infected[i], infected[j] = infected[j], infected[i]
	})
	g.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	affected := []*Player{caller}
	used := make(map[int]bool)
	for _, cand := range candidates {
		organColor := cand.player.Body.Piles[cand.pile].Organ.Color
		// Prefer a virus of the exact color, then fall back to a Multi one.
		pick := -1
		for _, vi := range infected {
			if used[vi] {
				continue
			}
			if caller.Body.Piles[vi].Modifiers[0].Color == organColor {
				pick = vi
				break
			}
		}
		if pick == -1 {
			for _, vi := range infected {
				if used[vi] {
					continue
				}
				virusColor := caller.Body.Piles[vi].Modifiers[0].Color
				if colorsCompatible(virusColor, organColor) {
					pick = vi
					break
				}
			}
		}
		if pick == -1 {
			continue
		}
		used[pick] = true
		virus := caller.Body.Piles[pick].popModifier()
		dst := cand.player.Body.Piles[cand.pile]
		dst.Modifiers = append(dst.Modifiers, virus)
		affected = append(affected, cand.player)
	}

	g.deck.ReturnBottom(card)

	u := g.newUpdate()
	u.Repeat(bodiesOf(affected...))
	u.AddMessage(fmt.Sprintf("%s ha jugado un %s", caller.Name, card.Name()))
	return u, nil
}

func (g *Game) playLatexGlove(caller *Player, card Card) (*Update, error) {
	u := g.newUpdate()
	for _, p := range g.players {
		if p == caller || p.Finished() {
			continue
		}
		g.deck.ReturnBottom(p.Hand...)
		p.Hand = p.Hand[:0]
		u.Add(p.Name, M{"hand": p.handList()})
	}
	g.deck.ReturnBottom(card)

	u.AddMessage(fmt.Sprintf("%s ha jugado un %s", caller.Name, card.Name()))
	return u, nil
}

func (g *Game) playMedicalError(caller *Player, card Card, data PlayCardData) (*Update, error) {
	target, err := g.targetPlayer(data.Target)
	if err != nil {
		return nil, err
	}
	if target == caller {
		return nil, errLogic("elige a otro jugador")
	}
	if target.Finished() {
		return nil, errLogic("ese jugador ya ha terminado")
	}

	// The whole bodies swap, immunized organs included.
	caller.Body, target.Body = target.Body, caller.Body
	g.deck.ReturnBottom(card)

	u := g.newUpdate()
	u.Repeat(bodiesOf(caller, target))
	u.AddMessage(fmt.Sprintf("%s ha jugado un %s sobre %s",
		caller.Name, card.Name(), target.Name))
	return u, nil
}
