package server

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/gatovid/arena/pkg/game"
)

// Match codes: 4 characters over a 28-symbol alphabet with the ambiguous
// glyphs (0/O, 1/I/L, 8/B, 2/Z) removed, around 614k distinct codes.
const (
	codeAlphabet = "ACDEFGHJKLMNPQRSTUVWXY345679"
	codeLength   = 4
)

// MatchManagerConfig holds configuration for a new MatchManager.
type MatchManagerConfig struct {
	DB      Database
	Emitter Emitter
	Log     slog.Logger

	// Test overrides; zero means the production defaults.
	TurnTime  time.Duration // game turn clock
	StartTime time.Duration // public start panic delay
	PanicTime time.Duration // matchmaking panic delay
	Seed      int64         // deterministic games and codes
}

// waitingUser is a queued matchmaking entry.
type waitingUser struct {
	user      *User
	sessionID string
}

// MatchManager owns the code-indexed match registry and the public
// matchmaking queue. Matches unregister themselves through removeMatch when
// they end.
type MatchManager struct {
	log  slog.Logger
	db   Database
	emit Emitter

	mu      sync.Mutex // registry
	matches map[string]*Match

	wmu        sync.Mutex // waiting queue and its panic timer
	waiting    []*waitingUser
	panicTimer *game.Timer

	rng       *rand.Rand
	rngMu     sync.Mutex
	turnTime  time.Duration
	startTime time.Duration
	panicTime time.Duration
	seed      int64
}

// NewMatchManager creates an empty manager.
func NewMatchManager(cfg MatchManagerConfig) *MatchManager {
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	seed := cfg.Seed
	rngSeed := seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}
	startTime := cfg.StartTime
	if startTime == 0 {
		startTime = TimeUntilStart
	}
	panicTime := cfg.PanicTime
	if panicTime == 0 {
		panicTime = TimeUntilStart
	}
	return &MatchManager{
		log:       log,
		db:        cfg.DB,
		emit:      cfg.Emitter,
		matches:   make(map[string]*Match),
		rng:       rand.New(rand.NewSource(rngSeed)),
		turnTime:  cfg.TurnTime,
		startTime: startTime,
		panicTime: panicTime,
		seed:      seed,
	}
}

// Match resolves a code (case-insensitive) to its match.
func (mm *MatchManager) Match(code string) (*Match, bool) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	m, ok := mm.matches[strings.ToUpper(code)]
	return m, ok
}

// NumMatches returns the registry size.
func (mm *MatchManager) NumMatches() int {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return len(mm.matches)
}

// CreatePrivate registers a new private match owned by u. The caller joins
// it separately, like any other user.
func (mm *MatchManager) CreatePrivate(u *User) (*Match, error) {
	if mm.IsWaiting(u.Email) {
		return nil, fmt.Errorf("ya estás buscando partida pública")
	}

	mm.mu.Lock()
	code := mm.newCodeLocked()
	m := newMatch(mm, code, false, 0)
	mm.matches[code] = m
	mm.mu.Unlock()

	mm.log.Infof("created private match %s for %s", code, u.Name)
	return m, nil
}

// WaitForGame queues a user for public matchmaking. A full queue forms a
// game immediately; otherwise reaching the minimum arms the panic timer
// that forms one with whoever is present when it fires.
func (mm *MatchManager) WaitForGame(u *User, sessionID string) error {
	mm.wmu.Lock()
	defer mm.wmu.Unlock()

	for _, w := range mm.waiting {
		if w.user.Email == u.Email {
			return fmt.Errorf("ya estás buscando partida")
		}
	}
	mm.waiting = append(mm.waiting, &waitingUser{user: u, sessionID: sessionID})
	mm.log.Debugf("matchmaking queue: %d users", len(mm.waiting))

	if len(mm.waiting) >= game.MaxMatchUsers {
		mm.createPublicLocked()
		return nil
	}
	if len(mm.waiting) == game.MinMatchUsers {
		mm.panicTimer = game.NewTimer(mm.panicTime, mm.panicFire)
		mm.panicTimer.Start()
	}
	return nil
}

// StopWaiting removes a user from the matchmaking queue.
func (mm *MatchManager) StopWaiting(email string) error {
	mm.wmu.Lock()
	defer mm.wmu.Unlock()

	idx := -1
	for i, w := range mm.waiting {
		if w.user.Email == email {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("no estás buscando partida")
	}
	mm.waiting = append(mm.waiting[:idx], mm.waiting[idx+1:]...)
	if len(mm.waiting) < game.MinMatchUsers && mm.panicTimer != nil {
		mm.panicTimer.Cancel()
		mm.panicTimer = nil
	}
	return nil
}

// IsWaiting reports whether the email is queued for matchmaking.
func (mm *MatchManager) IsWaiting(email string) bool {
	mm.wmu.Lock()
	defer mm.wmu.Unlock()
	for _, w := range mm.waiting {
		if w.user.Email == email {
			return true
		}
	}
	return false
}

// panicFire forms a public game with whoever is queued when the wait ran
// long, provided the minimum is still met.
func (mm *MatchManager) panicFire() {
	mm.wmu.Lock()
	defer mm.wmu.Unlock()
	if len(mm.waiting) >= game.MinMatchUsers {
		mm.createPublicLocked()
	}
}

// createPublicLocked drains up to MaxMatchUsers from the queue into a fresh
// public match and tells each drained user where to go. They join through
// the normal join path; the match auto-starts when all of them arrive, with
// its own panic timer as a fallback. Caller holds wmu.
func (mm *MatchManager) createPublicLocked() {
	n := len(mm.waiting)
	if n > game.MaxMatchUsers {
		n = game.MaxMatchUsers
	}
	drained := mm.waiting[:n]
	mm.waiting = append([]*waitingUser(nil), mm.waiting[n:]...)
	if mm.panicTimer != nil {
		mm.panicTimer.Cancel()
		mm.panicTimer = nil
	}

	mm.mu.Lock()
	code := mm.newCodeLocked()
	m := newMatch(mm, code, true, n)
	mm.matches[code] = m
	mm.mu.Unlock()

	m.armStartTimer(mm.startTime)
	mm.log.Infof("formed public match %s for %d users", code, n)

	// The drained users have not joined the room yet, so the room cannot
	// reach them; each is told individually.
	for _, w := range drained {
		mm.emit.EmitTo(w.sessionID, ServerMessage{
			Type: EvFoundGame,
			Data: CodePayload{Code: code},
		})
	}
}

// removeMatch drops a code from the registry. Called by the match itself
// when it ends.
func (mm *MatchManager) removeMatch(code string) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	delete(mm.matches, code)
}

// newCodeLocked rejection-samples an unused code. Caller holds mu.
func (mm *MatchManager) newCodeLocked() string {
	buf := make([]byte, codeLength)
	for {
		mm.rngMu.Lock()
		for i := range buf {
			buf[i] = codeAlphabet[mm.rng.Intn(len(codeAlphabet))]
		}
		mm.rngMu.Unlock()
		code := string(buf)
		if _, taken := mm.matches[code]; !taken {
			return code
		}
	}
}
