package game

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/gatovid/arena/pkg/statemachine"
)

// Tunables of the match runtime.
const (
	MinMatchUsers = 2
	MaxMatchUsers = 6
	MinHandCards  = 3
	MaxAFKTurns   = 3

	TimeTurnEnd     = 30 * time.Second
	TimeUntilResume = 15 * time.Second
)

// UpdateSink receives updates produced by timer callbacks rather than user
// actions. kicked lists players evicted by AFK takeover during the callback,
// so the match can drop them from its roster.
type UpdateSink func(u *Update, kicked []string)

// GameStateFn is a game lifecycle state function.
type GameStateFn = statemachine.StateFn[Game]

// Lifecycle states. They are passive: all work happens in the operations,
// the machine only records where the game is.
func gameStateSetup(*Game) GameStateFn    { return gameStateSetup }
func gameStateRunning(*Game) GameStateFn  { return gameStateRunning }
func gameStatePaused(*Game) GameStateFn   { return gameStatePaused }
func gameStateFinished(*Game) GameStateFn { return gameStateFinished }

// GameConfig holds configuration for a new game.
type GameConfig struct {
	Players   []string // seat order
	Cards     []Card   // full catalog instantiation for the deck
	AIEnabled bool     // public matches replace AFK players with bots

	TurnTime    time.Duration // defaults to TimeTurnEnd
	PauseResume time.Duration // defaults to TimeUntilResume
	Seed        int64         // optional seed for deterministic games

	Log           slog.Logger
	OnTimerUpdate UpdateSink
}

// Game is the turn-based state machine of a running match. All mutations
// that end or skip a turn run under the turn lock; timer callbacks re-enter
// through the same lock and re-check the turn number to detect races with
// user actions.
type Game struct {
	log slog.Logger

	mu      sync.Mutex // turn lock
	pauseMu sync.Mutex // guards pause transitions and the pause timer

	players    []*Player
	seats      int // seat count at start, fixed for scoring
	deck       *Deck
	totalCards int
	rng        *rand.Rand

	turn            int
	turnNumber      int
	discarding      bool
	playersFinished int

	paused   bool
	pausedBy string

	finished bool
	shortage bool // finished because humans dropped below the minimum

	aiEnabled bool
	startTime time.Time

	turnTimer  *Timer
	pauseTimer *Timer
	turnDur    time.Duration
	resumeDur  time.Duration

	onTimerUpdate UpdateSink
	sm            *statemachine.StateMachine[Game]
}

// NewGame creates a game in the setup state. Start deals and begins play.
func NewGame(cfg GameConfig) (*Game, error) {
	if len(cfg.Players) < MinMatchUsers || len(cfg.Players) > MaxMatchUsers {
		return nil, fmt.Errorf("game: player count %d outside [%d, %d]",
			len(cfg.Players), MinMatchUsers, MaxMatchUsers)
	}
	if len(cfg.Cards) == 0 {
		return nil, fmt.Errorf("game: empty card catalog")
	}

	var rng *rand.Rand
	if cfg.Seed != 0 {
		rng = rand.New(rand.NewSource(cfg.Seed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	turnDur := cfg.TurnTime
	if turnDur == 0 {
		turnDur = TimeTurnEnd
	}
	resumeDur := cfg.PauseResume
	if resumeDur == 0 {
		resumeDur = TimeUntilResume
	}

	g := &Game{
		log:           log,
		seats:         len(cfg.Players),
		deck:          NewDeck(cfg.Cards, rng),
		totalCards:    len(cfg.Cards),
		rng:           rng,
		aiEnabled:     cfg.AIEnabled,
		turnDur:       turnDur,
		resumeDur:     resumeDur,
		onTimerUpdate: cfg.OnTimerUpdate,
	}
	for _, name := range cfg.Players {
		g.players = append(g.players, NewPlayer(name))
	}
	g.sm = statemachine.New(g, gameStateSetup)
	return g, nil
}

// StateString returns the lifecycle state for logs and snapshots.
func (g *Game) StateString() string {
	switch {
	case g.sm.Is(gameStateSetup):
		return "setup"
	case g.sm.Is(gameStateRunning):
		return "running"
	case g.sm.Is(gameStatePaused):
		return "paused"
	case g.sm.Is(gameStateFinished):
		return "finished"
	}
	return "unknown"
}

// Start shuffles the deck, deals the opening hands round-robin, picks the
// initial turn uniformly at random and starts the turn timer.
func (g *Game) Start() *Update {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.deck.Shuffle()
	for i := 0; i < MinHandCards; i++ {
		for _, p := range g.players {
			if card, ok := g.deck.Draw(); ok {
				p.Hand = append(p.Hand, card)
			}
		}
	}
	g.turn = g.rng.Intn(len(g.players))
	g.turnNumber = 1
	g.startTime = time.Now()
	g.sm.Dispatch(gameStateRunning)
	g.armTurnTimer()

	g.log.Debugf("game started: %d players, first turn %s",
		len(g.players), g.players[g.turn].Name)

	u := g.newUpdate()
	u.AddForEach(func(name string) M {
		return M{"hand": g.playerByName(name).handList()}
	})
	u.Repeat(M{
		"current_turn": g.players[g.turn].Name,
		"players":      g.playersList(),
	})
	return u
}

// RunAction executes a single player action under the turn lock.
func (g *Game) RunAction(caller string, action Action) (*Update, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.finished {
		return nil, errLogic("el juego ya ha terminado")
	}
	if g.paused {
		return nil, errLogic("el juego está pausado")
	}
	p := g.playerByName(caller)
	if p == nil {
		return nil, errLogic("no estás en la partida")
	}
	if g.players[g.turn] != p {
		return nil, errLogic("no es tu turno")
	}

	var (
		u   *Update
		err error
	)
	switch a := action.(type) {
	case ActionDiscard:
		u, err = g.discard(p, a.Slot)
	case ActionPass:
		g.discarding = false
		u = g.endTurn()
	case ActionPlayCard:
		u, err = g.playCard(p, a.Data)
	default:
		err = errLogic("acción desconocida")
	}
	if err != nil {
		return nil, err
	}
	g.checkConservation()
	return u, nil
}

// discard throws the card at slot to the bottom of the deck and enters the
// discarding phase. The turn does not advance.
func (g *Game) discard(p *Player, slot int) (*Update, error) {
	card, err := p.removeCard(slot)
	if err != nil {
		return nil, err
	}
	g.deck.ReturnBottom(card)
	g.discarding = true

	u := g.newUpdate()
	u.Add(p.Name, M{"hand": p.handList()})
	return u, nil
}

// playCard applies the card at data.Slot and, on success, removes it from
// the hand and ends the turn.
func (g *Game) playCard(p *Player, data PlayCardData) (*Update, error) {
	if g.discarding {
		return nil, errLogic("estás en fase de descarte")
	}
	if data.Slot < 0 || data.Slot >= len(p.Hand) {
		return nil, errLogic("carta no válida")
	}
	card := p.Hand[data.Slot]

	u, err := g.applyCard(p, card, data)
	if err != nil {
		return nil, err
	}
	// Only remove the card once the effect has succeeded; a failed play
	// leaves the game state untouched.
	if _, err := p.removeCard(data.Slot); err != nil {
		return nil, err
	}
	u.Add(p.Name, M{"hand": p.handList()})

	mergeUpdates(u, g.checkBodies())
	if !g.finished {
		mergeUpdates(u, g.endTurn())
	}
	return u, nil
}

// checkBodies marks any player whose body just became complete as finished
// and ends the game once all positions but the last are taken.
func (g *Game) checkBodies() *Update {
	u := g.newUpdate()
	for _, p := range g.players {
		if p.Finished() || !p.Body.IsComplete() {
			continue
		}
		g.playersFinished++
		p.Position = g.playersFinished
		u.Repeat(M{"players": g.playersList()})
		u.AddMessage(fmt.Sprintf("¡%s ha completado su cuerpo!", p.Name))
		g.log.Infof("player %s finished in position %d", p.Name, p.Position)
	}
	if !g.finished && g.playersFinished >= len(g.players)-1 {
		mergeUpdates(u, g.finishLocked())
	}
	return u
}

// endTurn replenishes the current player's hand and hands the turn to the
// next unfinished player. Caller holds the turn lock.
func (g *Game) endTurn() *Update {
	u := g.newUpdate()
	g.drawTo(g.players[g.turn], u)
	mergeUpdates(u, g.nextTurn())
	return u
}

// nextTurn advances to the next unfinished player, letting AI seats play
// their stub move inline. Caller holds the turn lock.
func (g *Game) nextTurn() *Update {
	u := g.newUpdate()
	for {
		g.discarding = false
		g.turnNumber++
		g.advanceTurn(u)
		if g.finished {
			return u
		}
		p := g.players[g.turn]
		if !p.IsAI {
			break
		}
		if g.humansUnfinished() == 0 {
			// Only bots left playing; nobody is watching this game.
			g.shortage = true
			mergeUpdates(u, g.finishLocked())
			return u
		}
		// AI stub: throw a random card and yield the turn.
		if len(p.Hand) > 0 {
			card, _ := p.removeCard(g.rng.Intn(len(p.Hand)))
			g.deck.ReturnBottom(card)
		}
		g.drawTo(p, u)
	}
	g.armTurnTimer()
	u.Repeat(M{"current_turn": g.players[g.turn].Name})
	return u
}

// advanceTurn moves the turn index to the next unfinished seat, skipping
// players with empty hands after replenishing them.
func (g *Game) advanceTurn(u *Update) {
	for i := 0; i < len(g.players)*2; i++ {
		g.turn = (g.turn + 1) % len(g.players)
		p := g.players[g.turn]
		if p.Finished() {
			continue
		}
		if len(p.Hand) == 0 && g.deck.Size() > 0 {
			// Emptied by a latex glove: draw a fresh hand, skip the turn.
			g.drawTo(p, u)
			continue
		}
		return
	}
}

// drawTo draws for p until the hand reaches the minimum or the deck runs
// out, recording the new hand in u.
func (g *Game) drawTo(p *Player, u *Update) {
	drew := false
	for len(p.Hand) < MinHandCards {
		card, ok := g.deck.Draw()
		if !ok {
			break
		}
		p.Hand = append(p.Hand, card)
		drew = true
	}
	if drew {
		u.Add(p.Name, M{"hand": p.handList()})
	}
}

// armTurnTimer replaces the turn timer with a fresh one bound to the current
// turn number. Caller holds the turn lock.
func (g *Game) armTurnTimer() {
	if g.turnTimer != nil {
		g.turnTimer.Cancel()
	}
	turnNo := g.turnNumber
	g.turnTimer = NewTimer(g.turnDur, func() { g.timerEndTurn(turnNo) })
	g.turnTimer.Start()
}

// timerEndTurn runs when the current player let the turn clock expire. It
// re-checks the turn number under the lock: if it moved, a user action beat
// the timer and the callback no-ops.
func (g *Game) timerEndTurn(turnNo int) {
	g.mu.Lock()
	if g.finished || g.paused || g.turnNumber != turnNo {
		g.mu.Unlock()
		return
	}
	p := g.players[g.turn]
	p.AFKTurns++
	g.log.Debugf("turn %d timed out for %s (afk streak %d)",
		turnNo, p.Name, p.AFKTurns)

	u := g.newUpdate()
	var kicked []string
	if g.aiEnabled && p.AFKTurns >= MaxAFKTurns {
		ru, err := g.removePlayerLocked(p.Name)
		if err == nil {
			mergeUpdates(u, ru)
			kicked = append(kicked, p.Name)
		}
	} else {
		if !g.discarding && len(p.Hand) > 0 {
			card, _ := p.removeCard(g.rng.Intn(len(p.Hand)))
			g.deck.ReturnBottom(card)
			u.Add(p.Name, M{"hand": p.handList()})
		}
		mergeUpdates(u, g.endTurn())
	}
	sink := g.onTimerUpdate
	g.mu.Unlock()

	if sink != nil {
		sink(u, kicked)
	}
}

// SetPaused pauses or resumes the game. Pausing suspends the turn timer and
// arms a pause timer that auto-resumes after TimeUntilResume. Only the
// player that paused may resume manually. Idempotent when val matches the
// current state.
func (g *Game) SetPaused(val bool, by string) (*Update, error) {
	g.pauseMu.Lock()
	defer g.pauseMu.Unlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.finished {
		return nil, errLogic("el juego ya ha terminado")
	}
	if g.paused == val {
		return nil, nil
	}
	if !val && g.pausedBy != by {
		return nil, errLogic("solo %s puede reanudar la partida", g.pausedBy)
	}

	var msg string
	if val {
		g.paused = true
		g.pausedBy = by
		if g.turnTimer != nil {
			_ = g.turnTimer.Pause()
		}
		g.pauseTimer = NewTimer(g.resumeDur, g.autoResume)
		g.pauseTimer.Start()
		g.sm.Dispatch(gameStatePaused)
		msg = fmt.Sprintf("%s ha pausado la partida", by)
	} else {
		g.paused = false
		g.pausedBy = ""
		if g.pauseTimer != nil {
			g.pauseTimer.Cancel()
		}
		// If the turn timer fired in the window before the pause took the
		// lock, its callback no-opped against the paused game and Resume
		// fails; the resumed turn still needs a clock.
		if g.turnTimer == nil {
			g.armTurnTimer()
		} else if err := g.turnTimer.Resume(); err != nil {
			g.armTurnTimer()
		}
		g.sm.Dispatch(gameStateRunning)
		msg = fmt.Sprintf("%s ha reanudado la partida", by)
	}

	u := g.newUpdate()
	u.Repeat(M{"paused": val, "paused_by": by})
	u.AddMessage(msg)
	return u, nil
}

// autoResume fires when a pause exceeds its budget.
func (g *Game) autoResume() {
	g.mu.Lock()
	by := g.pausedBy
	sink := g.onTimerUpdate
	g.mu.Unlock()

	u, err := g.SetPaused(false, by)
	if err != nil || u == nil {
		return
	}
	if sink != nil {
		sink(u, nil)
	}
}

// RemovePlayer takes name out of the game: AI takeover when enabled,
// otherwise the seat is dropped and the hand returned to the deck.
func (g *Game) RemovePlayer(name string) (*Update, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removePlayerLocked(name)
}

func (g *Game) removePlayerLocked(name string) (*Update, error) {
	if g.finished {
		return g.newUpdate(), nil
	}
	p := g.playerByName(name)
	if p == nil {
		return nil, errLogic("no está en la partida")
	}
	wasTurn := g.players[g.turn] == p

	u := g.newUpdate()
	if g.aiEnabled {
		p.IsAI = true
		p.AFKTurns = 0
		u.AddMessage(fmt.Sprintf("%s ha sido sustituido por la IA", name))
	} else {
		idx := g.playerIndex(name)
		g.deck.ReturnBottom(p.Hand...)
		p.Hand = nil
		g.players = append(g.players[:idx], g.players[idx+1:]...)
		if idx < g.turn {
			g.turn--
		}
		if g.turn >= len(g.players) {
			g.turn = 0
		}
		// The removed seat keeps pointing at the next player, so the
		// advance below starts from the right place.
		if wasTurn {
			g.turn = (g.turn - 1 + len(g.players)) % len(g.players)
		}
	}
	u.Repeat(M{"players": g.playersList()})

	if g.countHumans() < MinMatchUsers {
		g.shortage = true
		mergeUpdates(u, g.finishLocked())
		return u, nil
	}
	if wasTurn && !g.finished {
		mergeUpdates(u, g.nextTurn())
	}
	return u, nil
}

// Finish ends the game, cancelling both timers. Idempotent.
func (g *Game) Finish() *Update {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.finishLocked()
}

func (g *Game) finishLocked() *Update {
	u := g.newUpdate()
	if g.finished {
		return u
	}
	g.finished = true
	g.paused = false
	if g.turnTimer != nil {
		g.turnTimer.Cancel()
	}
	if g.pauseTimer != nil {
		g.pauseTimer.Cancel()
	}
	g.sm.Dispatch(gameStateFinished)
	g.log.Infof("game finished after %d turns (%d players ranked)",
		g.turnNumber, g.playersFinished)

	u.Repeat(M{
		"finished":      true,
		"leaderboard":   g.leaderboardMap(),
		"playtime_mins": g.playtimeMins(),
	})
	return u
}

// FullUpdate returns the composite state a reconnecting player needs:
// bodies, hands, turn, pause state, players and the leaderboard when over.
func (g *Game) FullUpdate() *Update {
	g.mu.Lock()
	defer g.mu.Unlock()

	u := g.newUpdate()
	u.AddForEach(func(name string) M {
		return M{"hand": g.playerByName(name).handList()}
	})
	bodies := M{}
	for _, p := range g.players {
		bodies[p.Name] = p.Body.toList()
	}
	u.Repeat(M{
		"bodies":    bodies,
		"players":   g.playersList(),
		"paused":    g.paused,
		"paused_by": g.pausedBy,
	})
	if g.finished {
		u.Repeat(M{
			"finished":      true,
			"leaderboard":   g.leaderboardMap(),
			"playtime_mins": g.playtimeMins(),
		})
	} else {
		u.Repeat(M{"current_turn": g.players[g.turn].Name})
	}
	return u
}

// LeaderboardEntry is a finished player's rank and coin reward.
type LeaderboardEntry struct {
	Position int
	Coins    int
}

// Leaderboard returns rank and coins per finished human player. With N
// seats, position i earns 10*(N-i) coins; the last survivor and players
// taken over by the AI earn nothing.
func (g *Game) Leaderboard() map[string]LeaderboardEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.leaderboard()
}

func (g *Game) leaderboard() map[string]LeaderboardEntry {
	lb := make(map[string]LeaderboardEntry)
	for _, p := range g.players {
		if p.IsAI || !p.Finished() {
			continue
		}
		lb[p.Name] = LeaderboardEntry{
			Position: p.Position,
			Coins:    10 * (g.seats - p.Position),
		}
	}
	return lb
}

func (g *Game) leaderboardMap() M {
	lb := M{}
	for name, e := range g.leaderboard() {
		lb[name] = M{"position": e.Position, "coins": e.Coins}
	}
	return lb
}

func (g *Game) playtimeMins() int {
	return int(time.Since(g.startTime).Minutes())
}

// PlaytimeMins returns the minutes elapsed since Start.
func (g *Game) PlaytimeMins() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.playtimeMins()
}

// IsFinished reports whether the game has ended.
func (g *Game) IsFinished() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.finished
}

// IsPaused reports whether the game is paused.
func (g *Game) IsPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// EndedShort reports whether the game finished because too few human
// players remained.
func (g *Game) EndedShort() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.shortage
}

// CurrentTurn returns the name of the player to act, or "" when finished.
func (g *Game) CurrentTurn() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.finished || len(g.players) == 0 {
		return ""
	}
	return g.players[g.turn].Name
}

// TurnNumber returns the monotonic turn counter.
func (g *Game) TurnNumber() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.turnNumber
}

// PlayerNames returns the current seat order.
func (g *Game) PlayerNames() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.players))
	for _, p := range g.players {
		names = append(names, p.Name)
	}
	return names
}

// CardCount returns the number of cards across deck, hands and bodies. At
// any quiescent moment it equals the catalog total.
func (g *Game) CardCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cardCount()
}

func (g *Game) cardCount() int {
	n := g.deck.Size()
	for _, p := range g.players {
		n += len(p.Hand)
		n += p.Body.cardCount()
	}
	return n
}

// checkConservation logs a card accounting mismatch. The game keeps running;
// this is an internal invariant violation, not a user error.
func (g *Game) checkConservation() {
	if n := g.cardCount(); n != g.totalCards {
		g.log.Errorf("card conservation violated: have %d, want %d", n, g.totalCards)
	}
}

func (g *Game) newUpdate() *Update {
	names := make([]string, 0, len(g.players))
	for _, p := range g.players {
		names = append(names, p.Name)
	}
	return NewUpdate(names...)
}

func (g *Game) playerByName(name string) *Player {
	for _, p := range g.players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (g *Game) playerIndex(name string) int {
	for i, p := range g.players {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func (g *Game) playersList() []M {
	list := make([]M, 0, len(g.players))
	for _, p := range g.players {
		list = append(list, p.toMap())
	}
	return list
}

func (g *Game) countHumans() int {
	n := 0
	for _, p := range g.players {
		if !p.IsAI {
			n++
		}
	}
	return n
}

func (g *Game) humansUnfinished() int {
	n := 0
	for _, p := range g.players {
		if !p.IsAI && !p.Finished() {
			n++
		}
	}
	return n
}

// mergeUpdates merges src into dst for internal composition. Messages from
// both sides are kept in event order.
func mergeUpdates(dst, src *Update) *Update {
	dst.MergeWith(src)
	return dst
}
