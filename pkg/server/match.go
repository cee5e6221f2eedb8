package server

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/gatovid/arena/pkg/assets"
	"github.com/gatovid/arena/pkg/game"
	"github.com/gatovid/arena/pkg/statemachine"
)

// Room tunables.
const (
	TimeUntilStart = 5 * time.Second
	MaxChatMsgLen  = 240
)

// Emitter delivers server messages to connected sessions. The gateway
// implements it; tests use a recording fake.
type Emitter interface {
	// EmitTo sends a message to a single session.
	EmitTo(sessionID string, msg ServerMessage)
	// Broadcast sends a message to every session joined to the match room.
	Broadcast(code string, msg ServerMessage)
	// Evict unbinds a session from its match after a kick.
	Evict(sessionID string)
	// CloseRoom unbinds every session still in the room of an ended match,
	// so a later reuse of the code cannot reach them.
	CloseRoom(code string)
}

// MatchUser is a roster entry: the account snapshot taken at join time plus
// the session currently bound to it.
type MatchUser struct {
	Email     string
	Name      string
	AvatarID  int
	BoardID   int
	SessionID string
}

// MatchStateFn is a match lifecycle state function.
type MatchStateFn = statemachine.StateFn[Match]

func matchStateCreated(*Match) MatchStateFn   { return matchStateCreated }
func matchStateWaiting(*Match) MatchStateFn   { return matchStateWaiting }
func matchStateRunning(*Match) MatchStateFn   { return matchStateRunning }
func matchStateFinished(*Match) MatchStateFn  { return matchStateFinished }
func matchStateCancelled(*Match) MatchStateFn { return matchStateCancelled }

// Match is a room identified by its code. It wraps a Game with the
// external-world concerns: roster, message fan-out, reconnection, stats
// write-back and lifecycle. Public matches are auto-started by a panic
// timer and replace AFK players with the AI.
type Match struct {
	code   string
	public bool
	log    slog.Logger

	emit Emitter
	db   Database
	mgr  *MatchManager

	// startMu guards the created->running transition and the cancel path,
	// which race between user events and the start panic timer. The timer
	// callback uses the lock-free internals under this lock.
	startMu    sync.Mutex
	startTimer *game.Timer

	mu       sync.Mutex // roster and lifecycle flags
	users    []*MatchUser
	owner    string // owning user's email, private matches only
	expected int    // public: seats assigned by the matchmaker
	started  bool
	ended    bool

	game *game.Game
	sm   *statemachine.StateMachine[Match]

	// Overridable for tests; zero means the game defaults.
	turnTime time.Duration
	seed     int64
}

func newMatch(mgr *MatchManager, code string, public bool, expected int) *Match {
	m := &Match{
		code:     code,
		public:   public,
		log:      mgr.log,
		emit:     mgr.emit,
		db:       mgr.db,
		mgr:      mgr,
		expected: expected,
		turnTime: mgr.turnTime,
		seed:     mgr.seed,
	}
	m.sm = statemachine.New(m, matchStateCreated)
	return m
}

// Code returns the match code.
func (m *Match) Code() string { return m.code }

// IsPublic reports whether the match was formed by public matchmaking.
func (m *Match) IsPublic() bool { return m.public }

// Started reports whether the game has begun.
func (m *Match) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Owner returns the owning user's email (private matches).
func (m *Match) Owner() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner
}

// NumUsers returns the roster size.
func (m *Match) NumUsers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

// StateString returns the lifecycle state for logs.
func (m *Match) StateString() string {
	switch {
	case m.sm.Is(matchStateCreated):
		return "created"
	case m.sm.Is(matchStateWaiting):
		return "waiting"
	case m.sm.Is(matchStateRunning):
		return "running"
	case m.sm.Is(matchStateFinished):
		return "finished"
	case m.sm.Is(matchStateCancelled):
		return "cancelled"
	}
	return "unknown"
}

// AddUser appends a user to the roster. The first user of a private match
// becomes its owner. Public matches start on their own once the seats the
// matchmaker assigned are filled.
func (m *Match) AddUser(u *User, sessionID string) error {
	m.mu.Lock()
	if m.ended {
		m.mu.Unlock()
		return fmt.Errorf("la partida ya no existe")
	}
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("la partida ya ha comenzado")
	}
	max := game.MaxMatchUsers
	if m.public && m.expected > 0 {
		max = m.expected
	}
	if len(m.users) >= max {
		m.mu.Unlock()
		return fmt.Errorf("la partida está llena")
	}
	for _, mu := range m.users {
		if mu.Email == u.Email {
			m.mu.Unlock()
			return fmt.Errorf("ya estás en la partida")
		}
	}

	m.users = append(m.users, &MatchUser{
		Email:     u.Email,
		Name:      u.Name,
		AvatarID:  u.AvatarID,
		BoardID:   u.BoardID,
		SessionID: sessionID,
	})
	if !m.public && m.owner == "" {
		m.owner = u.Email
	}
	m.sm.Dispatch(matchStateWaiting)
	n := len(m.users)
	full := m.public && m.expected > 0 && n == m.expected
	m.mu.Unlock()

	m.log.Debugf("match %s: %s joined (%d users)", m.code, u.Name, n)
	m.emit.Broadcast(m.code, ServerMessage{Type: EvUsersWaiting, Data: n})

	if full {
		if err := m.Start(""); err != nil {
			m.log.Warnf("match %s: auto start failed: %v", m.code, err)
		}
	}
	return nil
}

// UpdateUser refreshes the roster entry of a reconnecting user, matched by
// email: new session id and cosmetic picks.
func (m *Match) UpdateUser(u *User, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mu := range m.users {
		if mu.Email == u.Email {
			mu.SessionID = sessionID
			mu.AvatarID = u.AvatarID
			mu.BoardID = u.BoardID
			return
		}
	}
}

// RemoveUser takes a user out of the roster. Before start it is a plain
// leave; after start the seat is handed to the game (AI takeover on public
// matches). No-op if the user is not in the roster.
func (m *Match) RemoveUser(email string) {
	m.mu.Lock()
	idx := -1
	for i, mu := range m.users {
		if mu.Email == email {
			idx = i
			break
		}
	}
	if idx == -1 || m.ended {
		m.mu.Unlock()
		return
	}
	leaver := m.users[idx]
	m.users = append(m.users[:idx], m.users[idx+1:]...)

	var newOwner *MatchUser
	if !m.public && m.owner == email && len(m.users) > 0 {
		m.owner = m.users[0].Email
		newOwner = m.users[0]
	}
	started := m.started
	empty := len(m.users) == 0
	n := len(m.users)
	m.mu.Unlock()

	m.log.Debugf("match %s: %s left (%d users)", m.code, leaver.Name, n)
	m.systemChat(fmt.Sprintf("%s ha abandonado la partida", leaver.Name))
	if newOwner != nil {
		m.emit.EmitTo(newOwner.SessionID, ServerMessage{Type: EvGameOwner})
	}
	if !started {
		m.emit.Broadcast(m.code, ServerMessage{Type: EvUsersWaiting, Data: n})
	}

	if empty {
		m.End(false)
		return
	}
	if started {
		u, err := m.game.RemovePlayer(leaver.Name)
		if err == nil {
			m.dispatch(u)
		}
		m.afterGameStep()
	}
}

// HasUser reports whether the email is in the roster.
func (m *Match) HasUser(email string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mu := range m.users {
		if mu.Email == email {
			return true
		}
	}
	return false
}

// Start begins the game. For private matches byEmail must be the owner; the
// public auto-start paths pass "".
func (m *Match) Start(byEmail string) error {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	return m.start(byEmail)
}

// start is the lock-free internal under startMu.
func (m *Match) start(byEmail string) error {
	m.mu.Lock()
	if m.ended {
		m.mu.Unlock()
		return fmt.Errorf("la partida ya no existe")
	}
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("la partida ya ha comenzado")
	}
	if !m.public && byEmail != m.owner {
		m.mu.Unlock()
		return fmt.Errorf("solo el líder puede comenzar la partida")
	}
	if len(m.users) < game.MinMatchUsers {
		m.mu.Unlock()
		return fmt.Errorf("no hay suficientes jugadores")
	}
	if m.startTimer != nil {
		m.startTimer.Cancel()
	}

	names := make([]string, 0, len(m.users))
	for _, mu := range m.users {
		names = append(names, mu.Name)
	}
	g, err := game.NewGame(game.GameConfig{
		Players:       names,
		Cards:         assets.Cards(),
		AIEnabled:     m.public,
		TurnTime:      m.turnTime,
		Seed:          m.seed,
		Log:           m.log,
		OnTimerUpdate: m.onTimerUpdate,
	})
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.game = g
	m.started = true
	m.sm.Dispatch(matchStateRunning)
	m.mu.Unlock()

	m.log.Infof("match %s: starting with %d players", m.code, len(names))
	m.emit.Broadcast(m.code, ServerMessage{Type: EvStartGame})

	u := g.Start()
	m.mergeMatchUpdate(u)
	m.dispatch(u)
	return nil
}

// mergeMatchUpdate folds the room-level state into a game update: everyone's
// avatar and the recipient's own board.
func (m *Match) mergeMatchUpdate(u *game.Update) {
	m.mu.Lock()
	defer m.mu.Unlock()

	avatars := game.M{}
	for _, mu := range m.users {
		avatars[mu.Name] = mu.AvatarID
	}
	u.Repeat(game.M{"avatars": avatars})
	for _, mu := range m.users {
		u.Add(mu.Name, game.M{"board": mu.BoardID})
	}
}

// CheckRejoin reports whether the user may rejoin a running game: private
// matches only, after start, and only for roster members. On success the
// session is rebound and the full snapshot for that user is returned.
func (m *Match) CheckRejoin(u *User, sessionID string) (*game.Update, bool) {
	m.mu.Lock()
	if m.public || !m.started || m.ended {
		m.mu.Unlock()
		return nil, false
	}
	found := false
	for _, mu := range m.users {
		if mu.Email == u.Email {
			mu.SessionID = sessionID
			found = true
			break
		}
	}
	g := m.game
	m.mu.Unlock()
	if !found {
		return nil, false
	}

	full := g.FullUpdate()
	m.mergeMatchUpdate(full)
	return full, true
}

// RunAction forwards a player action to the game and fans out the result.
// When the action ends the game, stats are written back for every user.
func (m *Match) RunAction(name string, action game.Action) error {
	m.mu.Lock()
	g := m.game
	started := m.started
	m.mu.Unlock()
	if !started || g == nil {
		return fmt.Errorf("la partida no ha comenzado")
	}

	u, err := g.RunAction(name, action)
	if err != nil {
		return err
	}
	m.dispatch(u)
	m.afterGameStep()
	return nil
}

// SetPaused pauses or resumes a private game on behalf of name.
func (m *Match) SetPaused(name string, val bool) error {
	m.mu.Lock()
	g := m.game
	started := m.started
	public := m.public
	m.mu.Unlock()
	if public {
		return fmt.Errorf("no se puede pausar una partida pública")
	}
	if !started || g == nil {
		return fmt.Errorf("la partida no ha comenzado")
	}

	u, err := g.SetPaused(val, name)
	if err != nil {
		return err
	}
	m.dispatch(u)
	return nil
}

// Chat relays a user chat line to the room.
func (m *Match) Chat(fromName, msg string) error {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return fmt.Errorf("la partida no ha comenzado")
	}
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return fmt.Errorf("mensaje vacío")
	}
	if len(msg) > MaxChatMsgLen {
		return fmt.Errorf("mensaje demasiado largo")
	}
	m.emit.Broadcast(m.code, ServerMessage{
		Type: EvChat,
		Data: ChatPayload{Msg: msg, Owner: fromName},
	})
	return nil
}

// End terminates the match: timers cancelled, a still-running game forced to
// finish, and the code released from the manager. With cancel, the room is
// told the game is gone.
func (m *Match) End(cancel bool) {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	m.end(cancel)
}

// end is the lock-free internal under startMu.
func (m *Match) end(cancel bool) {
	m.mu.Lock()
	if m.ended {
		m.mu.Unlock()
		return
	}
	m.ended = true
	if m.startTimer != nil {
		m.startTimer.Cancel()
	}
	g := m.game
	started := m.started
	if cancel {
		m.sm.Dispatch(matchStateCancelled)
	} else {
		m.sm.Dispatch(matchStateFinished)
	}
	m.mu.Unlock()

	if started && g != nil && !g.IsFinished() {
		g.Finish()
	}
	if cancel {
		m.emit.Broadcast(m.code, ServerMessage{Type: EvGameCancelled})
	}
	m.log.Infof("match %s: ended (cancel=%v)", m.code, cancel)
	m.emit.CloseRoom(m.code)
	m.mgr.removeMatch(m.code)
}

// armStartTimer schedules the public start panic timer. After
// TimeUntilStart the match starts with whoever arrived, or cancels if the
// table is still below the minimum.
func (m *Match) armStartTimer(d time.Duration) {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	m.startTimer = game.NewTimer(d, m.startPanic)
	m.startTimer.Start()
}

func (m *Match) startPanic() {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	m.mu.Lock()
	started, ended, n := m.started, m.ended, len(m.users)
	m.mu.Unlock()
	if started || ended {
		return
	}
	if n >= game.MinMatchUsers {
		if err := m.start(""); err != nil {
			m.log.Warnf("match %s: panic start failed: %v", m.code, err)
		}
		return
	}
	m.log.Infof("match %s: not enough users after %v, cancelling", m.code, TimeUntilStart)
	m.end(true)
}

// onTimerUpdate is the sink the game delivers timer-driven updates through.
// kicked lists players the AFK rules just removed; their sessions are
// evicted from the room.
func (m *Match) onTimerUpdate(u *game.Update, kicked []string) {
	if len(kicked) > 0 {
		m.mu.Lock()
		var sessions []string
		for _, name := range kicked {
			for i, mu := range m.users {
				if mu.Name == name {
					sessions = append(sessions, mu.SessionID)
					m.users = append(m.users[:i], m.users[i+1:]...)
					break
				}
			}
		}
		m.mu.Unlock()
		for _, sid := range sessions {
			m.emit.Evict(sid)
		}
	}
	m.dispatch(u)
	m.afterGameStep()
}

// afterGameStep runs the post-action bookkeeping: when the game just ended,
// either persist everyone's stats (normal finish) or cancel the room (ended
// because too few humans remained).
func (m *Match) afterGameStep() {
	m.mu.Lock()
	g := m.game
	m.mu.Unlock()
	if g == nil || !g.IsFinished() {
		return
	}
	if g.EndedShort() {
		m.End(true)
		return
	}
	m.persistStats(g)
	m.End(false)
}

// persistStats writes every roster user's outcome. Persistence failures are
// logged and ignored: the game already completed in memory.
func (m *Match) persistStats(g *game.Game) {
	lb := g.Leaderboard()
	mins := g.PlaytimeMins()

	m.mu.Lock()
	users := make([]*MatchUser, len(m.users))
	copy(users, m.users)
	m.mu.Unlock()

	for _, mu := range users {
		delta := StatsDelta{PlaytimeMins: mins, Losses: 1}
		if e, ok := lb[mu.Name]; ok {
			delta.Coins = e.Coins
			if e.Position == 1 {
				delta.Wins, delta.Losses = 1, 0
			}
		}
		if err := m.db.PersistStatsDelta(mu.Email, delta); err != nil {
			m.log.Errorf("match %s: failed to persist stats for %s: %v",
				m.code, mu.Email, err)
		}
	}
}

// systemChat broadcasts a server-generated chat notice.
func (m *Match) systemChat(msg string) {
	m.emit.Broadcast(m.code, ServerMessage{
		Type: EvChat,
		Data: ChatPayload{Msg: msg, Owner: SystemChatOwner},
	})
}

// dispatch fans a game update out to the room: repeated updates go out as a
// single broadcast, otherwise each recipient gets their own slice.
// Recipients with empty slices are skipped. An attached message becomes a
// system chat notice.
func (m *Match) dispatch(u *game.Update) {
	if u == nil {
		return
	}
	for _, msg := range u.Messages() {
		m.systemChat(msg)
	}

	if u.IsRepeated() {
		slice, err := u.GetAny()
		if err != nil || len(slice) == 0 {
			return
		}
		m.emit.Broadcast(m.code, ServerMessage{Type: EvGameUpdate, Data: slice})
		return
	}

	m.mu.Lock()
	sessions := make(map[string]string, len(m.users))
	for _, mu := range m.users {
		sessions[mu.Name] = mu.SessionID
	}
	m.mu.Unlock()

	for _, name := range u.Players() {
		slice := u.Get(name)
		if len(slice) == 0 {
			continue
		}
		sid, ok := sessions[name]
		if !ok {
			continue
		}
		m.emit.EmitTo(sid, ServerMessage{Type: EvGameUpdate, Data: slice})
	}
}
