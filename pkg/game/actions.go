package game

// Action is a player move submitted through Game.RunAction. The concrete
// types mirror the three client events: discard, pass and play a card.
type Action interface {
	isAction()
}

// ActionDiscard throws the card at the given hand slot to the bottom of the
// deck. It enters the discarding phase and does not advance the turn, so a
// player may discard several cards before passing.
type ActionDiscard struct {
	Slot int
}

// ActionPass ends the discarding phase and the turn.
type ActionPass struct{}

// ActionPlayCard plays the card at Data.Slot with its card-specific
// parameters.
type ActionPlayCard struct {
	Data PlayCardData
}

// PlayCardData carries the parameters of a play_card event. Only the fields
// relevant to the played card are read.
type PlayCardData struct {
	Slot int `json:"slot"`

	// Single-target cards (virus, medicine, organ thief, medical error).
	Target    string `json:"target,omitempty"`
	OrganPile int    `json:"organ_pile,omitempty"`

	// Transplant targets two (player, pile) pairs.
	Target1    string `json:"target1,omitempty"`
	OrganPile1 int    `json:"organ_pile1,omitempty"`
	Target2    string `json:"target2,omitempty"`
	OrganPile2 int    `json:"organ_pile2,omitempty"`
}

func (ActionDiscard) isAction()  {}
func (ActionPass) isAction()     {}
func (ActionPlayCard) isAction() {}
