package game

import "fmt"

// GameLogicError is returned when a player's action violates the game rules.
// The message is user-facing (the gateway relays it verbatim in the event
// acknowledgment), so it is written in the language of the client UI.
type GameLogicError struct {
	Msg string
}

func (e *GameLogicError) Error() string { return e.Msg }

// errLogic builds a GameLogicError with a formatted message.
func errLogic(format string, args ...interface{}) *GameLogicError {
	return &GameLogicError{Msg: fmt.Sprintf(format, args...)}
}

// PreconditionError signals misuse of a Timer: pausing a timer that was never
// started, pausing twice, or resuming a timer that is not paused.
type PreconditionError struct {
	Op string
}

func (e *PreconditionError) Error() string { return "timer: " + e.Op }
