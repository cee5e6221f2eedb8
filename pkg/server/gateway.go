package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gatovid/arena/pkg/game"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 54 * time.Second
	wsWriteTimeout = 10 * time.Second

	// Each connection spawns two goroutines and a send buffer.
	maxConnections = 1024
	sendBufferSize = 64
)

var (
	errAlreadyInMatch = errors.New("ya estás en una partida")
	errNotInMatch     = errors.New("no estás en ninguna partida")
	errNoSuchMatch    = errors.New("no existe esa partida")
	errBadPayload     = errors.New("datos no válidos")
)

var upgrader = websocket.Upgrader{
	// The token check on upgrade is the real gate; games are not
	// origin-sensitive.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Client is one authenticated websocket connection. Messages to the client
// go through the buffered send channel so emitters never block on the
// socket.
type Client struct {
	sessionID string
	user      *User
	conn      *websocket.Conn
	send      chan ServerMessage
	gw        *Gateway
}

// Gateway owns the socket surface: it authenticates connections, decodes
// client events into manager/match calls and implements Emitter for the
// way back. A session is bound to at most one match at a time.
type Gateway struct {
	log slog.Logger
	db  Database
	mgr *MatchManager

	mu       sync.Mutex
	sessions map[string]*Client            // session id -> client
	rooms    map[string]map[string]*Client // match code -> session id -> client
	binding  map[string]string             // session id -> match code
}

// NewGateway creates a gateway. BindManager must be called before serving;
// the manager needs the gateway as its Emitter, so the two are constructed
// in sequence.
func NewGateway(db Database, log slog.Logger) *Gateway {
	if log == nil {
		log = slog.Disabled
	}
	return &Gateway{
		log:      log,
		db:       db,
		sessions: make(map[string]*Client),
		rooms:    make(map[string]map[string]*Client),
		binding:  make(map[string]string),
	}
}

// BindManager attaches the match manager.
func (gw *Gateway) BindManager(mgr *MatchManager) { gw.mgr = mgr }

// ServeWS upgrades an HTTP request into an authenticated game session. The
// session token comes from the "token" query parameter or a bearer header.
func (gw *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	gw.mu.Lock()
	n := len(gw.sessions)
	gw.mu.Unlock()
	if n >= maxConnections {
		http.Error(w, "server full", http.StatusServiceUnavailable)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	user, err := gw.db.UserByToken(token)
	if err != nil {
		gw.log.Debugf("rejected connection: %v", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		gw.log.Warnf("websocket upgrade failed: %v", err)
		return
	}

	c := &Client{
		sessionID: uuid.NewString(),
		user:      user,
		conn:      conn,
		send:      make(chan ServerMessage, sendBufferSize),
		gw:        gw,
	}
	gw.mu.Lock()
	gw.sessions[c.sessionID] = c
	gw.mu.Unlock()
	gw.log.Infof("session %s connected as %s", c.sessionID, user.Name)

	go c.writePump()
	go c.readPump()
}

// EmitTo implements Emitter.
func (gw *Gateway) EmitTo(sessionID string, msg ServerMessage) {
	gw.mu.Lock()
	c, ok := gw.sessions[sessionID]
	gw.mu.Unlock()
	if ok {
		c.enqueue(msg)
	}
}

// Broadcast implements Emitter.
func (gw *Gateway) Broadcast(code string, msg ServerMessage) {
	gw.mu.Lock()
	room := gw.rooms[code]
	clients := make([]*Client, 0, len(room))
	for _, c := range room {
		clients = append(clients, c)
	}
	gw.mu.Unlock()
	for _, c := range clients {
		c.enqueue(msg)
	}
}

// Evict implements Emitter: the session is unbound from its match, e.g.
// after an AFK kick.
func (gw *Gateway) Evict(sessionID string) {
	gw.mu.Lock()
	gw.unbindLocked(sessionID)
	gw.mu.Unlock()
}

// CloseRoom implements Emitter: when a match ends its room is torn down and
// every remaining member unbound. Codes are reissued once a match is gone,
// so a lingering membership would leak the next match's broadcasts.
func (gw *Gateway) CloseRoom(code string) {
	gw.mu.Lock()
	for sid := range gw.rooms[code] {
		delete(gw.binding, sid)
	}
	delete(gw.rooms, code)
	gw.mu.Unlock()
}

// bindLocked joins a session to a match room, leaving any previous room
// first. Caller holds gw.mu.
func (gw *Gateway) bindLocked(c *Client, code string) {
	gw.unbindLocked(c.sessionID)
	gw.binding[c.sessionID] = code
	room := gw.rooms[code]
	if room == nil {
		room = make(map[string]*Client)
		gw.rooms[code] = room
	}
	room[c.sessionID] = c
}

// unbindLocked removes a session from its room, if any. Caller holds gw.mu.
func (gw *Gateway) unbindLocked(sessionID string) {
	code, ok := gw.binding[sessionID]
	if !ok {
		return
	}
	delete(gw.binding, sessionID)
	if room := gw.rooms[code]; room != nil {
		delete(room, sessionID)
		if len(room) == 0 {
			delete(gw.rooms, code)
		}
	}
}

// boundMatch returns the match the session is currently in.
func (gw *Gateway) boundMatch(sessionID string) (*Match, bool) {
	gw.mu.Lock()
	code, ok := gw.binding[sessionID]
	gw.mu.Unlock()
	if !ok {
		return nil, false
	}
	return gw.mgr.Match(code)
}

// disconnect cleans up after a closed connection. Queued users are
// dequeued; users in a public or not-yet-started match leave it; a started
// private match keeps the user in its roster so they can rejoin.
func (gw *Gateway) disconnect(c *Client) {
	_ = gw.mgr.StopWaiting(c.user.Email)

	gw.mu.Lock()
	delete(gw.sessions, c.sessionID)
	code, bound := gw.binding[c.sessionID]
	gw.unbindLocked(c.sessionID)
	gw.mu.Unlock()

	if bound {
		if m, ok := gw.mgr.Match(code); ok {
			if m.IsPublic() || !m.Started() {
				m.RemoveUser(c.user.Email)
			}
		}
	}
	gw.log.Infof("session %s (%s) disconnected", c.sessionID, c.user.Name)
}

func (c *Client) enqueue(msg ServerMessage) {
	select {
	case c.send <- msg:
	default:
		c.gw.log.Warnf("session %s send buffer full, dropping %s",
			c.sessionID, msg.Type)
	}
}

// readPump decodes client events until the connection drops.
func (c *Client) readPump() {
	// The send channel is never closed: emitters may race a disconnect, and
	// an orphaned buffered channel is collectable. writePump exits on its
	// next failed write once the connection is closed.
	defer func() {
		c.gw.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.gw.log.Debugf("session %s read error: %v", c.sessionID, err)
			}
			return
		}
		c.handleMessage(msg)
	}
}

// writePump owns all writes to the socket.
func (c *Client) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage runs one client event and acknowledges it. Failed events
// ack with {"error": reason}.
func (c *Client) handleMessage(msg ClientMessage) {
	var (
		payload interface{}
		err     error
	)
	switch msg.Type {
	case EvCreateGame:
		payload, err = c.handleCreateGame()
	case EvJoin:
		err = c.handleJoin(msg.Data)
	case EvLeave:
		err = c.handleLeave()
	case EvSearchGame:
		err = c.handleSearchGame()
	case EvStopSearching:
		err = c.gw.mgr.StopWaiting(c.user.Email)
	case EvStartGame:
		err = c.handleStartGame()
	case EvPauseGame:
		err = c.handlePauseGame(msg.Data)
	case EvChat:
		err = c.handleChat(msg.Data)
	case EvPlayDiscard:
		err = c.handlePlayDiscard(msg.Data)
	case EvPlayPass:
		err = c.runAction(game.ActionPass{})
	case EvPlayCard:
		err = c.handlePlayCard(msg.Data)
	default:
		c.gw.log.Debugf("session %s: unknown event %q", c.sessionID, msg.Type)
		return
	}

	ack := ServerMessage{Type: msg.Type, ID: msg.ID, Data: payload}
	if err != nil {
		ack.Data = errorPayload(err.Error())
	}
	c.enqueue(ack)
}

func (c *Client) handleCreateGame() (interface{}, error) {
	if _, bound := c.gw.boundMatch(c.sessionID); bound {
		return nil, errAlreadyInMatch
	}
	m, err := c.gw.mgr.CreatePrivate(c.user)
	if err != nil {
		return nil, err
	}

	c.gw.mu.Lock()
	c.gw.bindLocked(c, m.Code())
	c.gw.mu.Unlock()
	if err := m.AddUser(c.user, c.sessionID); err != nil {
		c.gw.mu.Lock()
		c.gw.unbindLocked(c.sessionID)
		c.gw.mu.Unlock()
		return nil, err
	}
	return CodePayload{Code: m.Code()}, nil
}

func (c *Client) handleJoin(data json.RawMessage) error {
	var jd JoinData
	if err := json.Unmarshal(data, &jd); err != nil {
		return errBadPayload
	}
	if _, bound := c.gw.boundMatch(c.sessionID); bound {
		return errAlreadyInMatch
	}
	m, ok := c.gw.mgr.Match(jd.Code)
	if !ok {
		return errNoSuchMatch
	}

	// Rejoin path: a roster member coming back to a started private game
	// gets the room rebound and a full snapshot instead of a seat.
	if full, ok := m.CheckRejoin(c.user, c.sessionID); ok {
		c.gw.mu.Lock()
		c.gw.bindLocked(c, m.Code())
		c.gw.mu.Unlock()
		c.enqueue(ServerMessage{Type: EvStartGame})
		c.enqueue(ServerMessage{Type: EvGameUpdate, Data: full.Get(c.user.Name)})
		return nil
	}

	c.gw.mu.Lock()
	c.gw.bindLocked(c, m.Code())
	c.gw.mu.Unlock()
	if err := m.AddUser(c.user, c.sessionID); err != nil {
		c.gw.mu.Lock()
		c.gw.unbindLocked(c.sessionID)
		c.gw.mu.Unlock()
		return err
	}
	return nil
}

func (c *Client) handleLeave() error {
	m, ok := c.gw.boundMatch(c.sessionID)
	if !ok {
		return errNotInMatch
	}
	c.gw.mu.Lock()
	c.gw.unbindLocked(c.sessionID)
	c.gw.mu.Unlock()
	m.RemoveUser(c.user.Email)
	return nil
}

func (c *Client) handleSearchGame() error {
	if _, bound := c.gw.boundMatch(c.sessionID); bound {
		return errAlreadyInMatch
	}
	return c.gw.mgr.WaitForGame(c.user, c.sessionID)
}

func (c *Client) handleStartGame() error {
	m, ok := c.gw.boundMatch(c.sessionID)
	if !ok {
		return errNotInMatch
	}
	return m.Start(c.user.Email)
}

func (c *Client) handlePauseGame(data json.RawMessage) error {
	var pd PauseData
	if err := json.Unmarshal(data, &pd); err != nil {
		return errBadPayload
	}
	m, ok := c.gw.boundMatch(c.sessionID)
	if !ok {
		return errNotInMatch
	}
	return m.SetPaused(c.user.Name, pd.Paused)
}

func (c *Client) handleChat(data json.RawMessage) error {
	var cd ChatData
	if err := json.Unmarshal(data, &cd); err != nil {
		return errBadPayload
	}
	m, ok := c.gw.boundMatch(c.sessionID)
	if !ok {
		return errNotInMatch
	}
	return m.Chat(c.user.Name, cd.Msg)
}

func (c *Client) handlePlayDiscard(data json.RawMessage) error {
	var dd DiscardData
	if err := json.Unmarshal(data, &dd); err != nil {
		return errBadPayload
	}
	return c.runAction(game.ActionDiscard{Slot: dd.Slot})
}

func (c *Client) handlePlayCard(data json.RawMessage) error {
	var pd game.PlayCardData
	if err := json.Unmarshal(data, &pd); err != nil {
		return errBadPayload
	}
	return c.runAction(game.ActionPlayCard{Data: pd})
}

func (c *Client) runAction(action game.Action) error {
	m, ok := c.gw.boundMatch(c.sessionID)
	if !ok {
		return errNotInMatch
	}
	return m.RunAction(c.user.Name, action)
}
