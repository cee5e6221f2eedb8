package server

import "encoding/json"

// Client -> server event names.
const (
	EvCreateGame    = "create_game"
	EvJoin          = "join"
	EvLeave         = "leave"
	EvSearchGame    = "search_game"
	EvStopSearching = "stop_searching"
	EvStartGame     = "start_game"
	EvPauseGame     = "pause_game"
	EvChat          = "chat"
	EvPlayDiscard   = "play_discard"
	EvPlayPass      = "play_pass"
	EvPlayCard      = "play_card"
)

// Server -> client event names (the overlap with client names above is
// intentional: acks reuse the request's event type).
const (
	EvGameUpdate    = "game_update"
	EvGameCancelled = "game_cancelled"
	EvGameOwner     = "game_owner"
	EvUsersWaiting  = "users_waiting"
	EvFoundGame     = "found_game"
)

// SystemChatOwner is the owner name of server-generated chat notices.
const SystemChatOwner = "[GATOVID]"

// ClientMessage is a single event received from a client. Data is decoded
// per event type; ID, when nonzero, asks for an acknowledgment with the
// same id.
type ClientMessage struct {
	ID   int64           `json:"id,omitempty"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is a single event sent to a client. Acks echo the request's
// Type and ID; unsolicited emissions leave ID zero.
type ServerMessage struct {
	Type string      `json:"type"`
	ID   int64       `json:"id,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// JoinData is the payload of a join event.
type JoinData struct {
	Code string `json:"code"`
}

// PauseData is the payload of a pause_game event.
type PauseData struct {
	Paused bool `json:"paused"`
}

// ChatData is the payload of a client chat event.
type ChatData struct {
	Msg string `json:"msg"`
}

// DiscardData is the payload of a play_discard event.
type DiscardData struct {
	Slot int `json:"slot"`
}

// CodePayload carries a match code (create_game ack, found_game).
type CodePayload struct {
	Code string `json:"code"`
}

// ChatPayload is a chat broadcast.
type ChatPayload struct {
	Msg   string `json:"msg"`
	Owner string `json:"owner"`
}

// errorPayload is the ack shape of a failed event.
func errorPayload(msg string) map[string]string {
	return map[string]string{"error": msg}
}
