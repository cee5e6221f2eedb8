package game

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGameStartDeals(t *testing.T) {
	g := newRunningGame(t, "ana", "bob", "carla")

	for _, p := range g.players {
		if len(p.Hand) != MinHandCards {
			t.Errorf("%s dealt %d cards, want %d", p.Name, len(p.Hand), MinHandCards)
		}
	}
	want := 68 - 3*MinHandCards
	if g.deck.Size() != want {
		t.Errorf("Deck size %d after deal, want %d", g.deck.Size(), want)
	}
	if g.CurrentTurn() == "" {
		t.Error("Start should pick a first turn")
	}
	if g.StateString() != "running" {
		t.Errorf("State %q after start, want running", g.StateString())
	}
}

func TestRunActionRejectsOutOfTurn(t *testing.T) {
	g := newRunningGame(t, "ana", "bob")
	setTurn(t, g, "ana")

	if _, err := g.RunAction("bob", ActionPass{}); err == nil {
		t.Error("Expected rejection for out-of-turn action")
	}
	if _, err := g.RunAction("mallory", ActionPass{}); err == nil {
		t.Error("Expected rejection for unknown player")
	}
}

func TestDiscardPhase(t *testing.T) {
	g := newRunningGame(t, "ana", "bob")
	setTurn(t, g, "ana")
	ana := g.playerByName("ana")

	if _, err := g.RunAction("ana", ActionDiscard{Slot: 0}); err != nil {
		t.Fatalf("Discard failed: %v", err)
	}
	if g.players[g.turn].Name != "ana" {
		t.Error("Discard must not advance the turn")
	}
	if _, err := g.RunAction("ana", ActionDiscard{Slot: 0}); err != nil {
		t.Fatalf("Second discard failed: %v", err)
	}
	if len(ana.Hand) != 1 {
		t.Errorf("Hand size %d after two discards, want 1", len(ana.Hand))
	}

	// Playing a card mid-discard is rejected.
	if _, err := g.RunAction("ana", ActionPlayCard{Data: PlayCardData{Slot: 0}}); err == nil {
		t.Error("Expected rejection while in the discard phase")
	}

	if _, err := g.RunAction("ana", ActionPass{}); err != nil {
		t.Fatalf("Pass failed: %v", err)
	}
	if g.players[g.turn].Name != "bob" {
		t.Error("Pass should hand the turn to bob")
	}
	if len(ana.Hand) != MinHandCards {
		t.Errorf("Hand should be replenished to %d, has %d", MinHandCards, len(ana.Hand))
	}
}

func TestCardConservation(t *testing.T) {
	g := newRunningGame(t, "ana", "bob", "carla")
	for i := 0; i < 12; i++ {
		name := g.CurrentTurn()
		if _, err := g.RunAction(name, ActionDiscard{Slot: 0}); err != nil {
			t.Fatalf("Discard failed: %v", err)
		}
		if _, err := g.RunAction(name, ActionPass{}); err != nil {
			t.Fatalf("Pass failed: %v", err)
		}
	}
	if n := g.CardCount(); n != 68 {
		t.Errorf("Card conservation violated: %d cards, want 68", n)
	}
}

func TestVictoryAndLeaderboard(t *testing.T) {
	g := newRunningGame(t, "ana", "bob")
	ana := g.playerByName("ana")
	setOrgan(ana, 0, ColorRed)
	setOrgan(ana, 1, ColorGreen)
	setOrgan(ana, 2, ColorBlue)
	ana.Hand = []Card{organ(ColorYellow)}

	u, err := playCardAs(t, g, "ana", PlayCardData{Slot: 0, OrganPile: 3})
	if err != nil {
		t.Fatalf("Winning play failed: %v", err)
	}
	if !g.IsFinished() {
		t.Fatal("Game should finish once N-1 players complete their body")
	}
	if g.EndedShort() {
		t.Error("A played-out game is not a shortage finish")
	}
	if ana.Position != 1 {
		t.Errorf("Winner position %d, want 1", ana.Position)
	}

	if slice := u.Get("ana"); slice["finished"] != true {
		t.Error("Final update should carry finished=true")
	}

	// The composed update announces both the play and the completion.
	msgs := u.Messages()
	if len(msgs) < 2 {
		t.Fatalf("Winning play should carry both notices, got %v", msgs)
	}
	if !strings.Contains(msgs[0], "ha jugado") {
		t.Errorf("First notice should announce the play: %q", msgs[0])
	}
	if !strings.Contains(msgs[1], "ha completado") {
		t.Errorf("Second notice should announce the completion: %q", msgs[1])
	}

	lb := g.Leaderboard()
	e, ok := lb["ana"]
	if !ok {
		t.Fatal("Winner missing from leaderboard")
	}
	if e.Coins != 10 {
		t.Errorf("Winner coins %d, want 10 (two seats)", e.Coins)
	}
	if _, ok := lb["bob"]; ok {
		t.Error("Unranked player should not be on the leaderboard")
	}

	// Nothing runs after the end.
	if _, err := g.RunAction("bob", ActionPass{}); err == nil {
		t.Error("Expected rejection after game end")
	}
}

func TestPauseResume(t *testing.T) {
	g := newRunningGame(t, "ana", "bob")
	setTurn(t, g, "ana")

	if _, err := g.SetPaused(true, "ana"); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if !g.IsPaused() {
		t.Fatal("Game should be paused")
	}
	if _, err := g.RunAction("ana", ActionPass{}); err == nil {
		t.Error("Expected rejection while paused")
	}
	if _, err := g.SetPaused(false, "bob"); err == nil {
		t.Error("Only the pausing player may resume")
	}

	// Pausing again is idempotent: no update, no error.
	u, err := g.SetPaused(true, "bob")
	if err != nil || u != nil {
		t.Errorf("Idempotent pause: got update %v, err %v", u, err)
	}

	if _, err := g.SetPaused(false, "ana"); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if g.IsPaused() {
		t.Error("Game should be running again")
	}
}

func TestResumeRearmsExpiredTurnTimer(t *testing.T) {
	g := newRunningGame(t, "ana", "bob")
	setTurn(t, g, "ana")

	// The turn timer fired just before the pause reached the lock: its
	// callback no-opped against the paused game and the timer is spent.
	g.turnTimer.Cancel()
	if _, err := g.SetPaused(true, "ana"); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	spent := g.turnTimer

	if _, err := g.SetPaused(false, "ana"); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if g.turnTimer == spent {
		t.Fatal("Resume should arm a fresh turn timer when the old one is spent")
	}
	if g.turnTimer.Remaining() == 0 {
		t.Error("Resumed turn should be running on a live clock")
	}
}

func TestPauseAutoResume(t *testing.T) {
	var mu sync.Mutex
	var got []*Update
	g, err := NewGame(GameConfig{
		Players:     []string{"ana", "bob"},
		Cards:       testCards(),
		TurnTime:    time.Hour,
		PauseResume: 20 * time.Millisecond,
		Seed:        7,
		OnTimerUpdate: func(u *Update, kicked []string) {
			mu.Lock()
			got = append(got, u)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("NewGame failed: %v", err)
	}
	g.Start()

	if _, err := g.SetPaused(true, "ana"); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for g.IsPaused() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if g.IsPaused() {
		t.Fatal("Pause budget expired but the game is still paused")
	}
	mu.Lock()
	n := len(got)
	mu.Unlock()
	if n == 0 {
		t.Error("Auto-resume should deliver an update through the sink")
	}
}

func TestTurnTimerRace(t *testing.T) {
	g := newRunningGame(t, "ana", "bob")
	setTurn(t, g, "ana")
	stale := g.turnNumber

	if _, err := g.RunAction("ana", ActionPass{}); err != nil {
		t.Fatalf("Pass failed: %v", err)
	}
	afkBefore := g.playerByName("bob").AFKTurns

	// A timer armed for the old turn fires late: it must detect the moved
	// turn number and no-op.
	g.timerEndTurn(stale)
	if g.playerByName("bob").AFKTurns != afkBefore {
		t.Error("Stale timer callback must not touch the new turn")
	}
	if g.playerByName("ana").AFKTurns != 0 {
		t.Error("Stale timer callback must not penalize the player who acted")
	}
}

func TestAFKTakeoverAndShortage(t *testing.T) {
	var mu sync.Mutex
	var kickedAll []string
	g, err := NewGame(GameConfig{
		Players:   []string{"ana", "bob"},
		Cards:     testCards(),
		AIEnabled: true,
		TurnTime:  10 * time.Millisecond,
		Seed:      7,
		OnTimerUpdate: func(u *Update, kicked []string) {
			mu.Lock()
			kickedAll = append(kickedAll, kicked...)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("NewGame failed: %v", err)
	}
	g.Start()

	// Nobody acts: after MaxAFKTurns timeouts the current player is handed
	// to the AI, which drops humans below the minimum and ends the game.
	deadline := time.Now().Add(5 * time.Second)
	for !g.IsFinished() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !g.IsFinished() {
		t.Fatal("Game should have ended from AFK takeovers")
	}
	if !g.EndedShort() {
		t.Error("AFK cascade should count as a shortage finish")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(kickedAll) == 0 {
		t.Error("At least one player should have been kicked to the AI")
	}
}

func TestRemovePlayerBeforeShortage(t *testing.T) {
	g := newRunningGame(t, "ana", "bob", "carla")
	setTurn(t, g, "ana")

	if _, err := g.RemovePlayer("carla"); err != nil {
		t.Fatalf("RemovePlayer failed: %v", err)
	}
	if g.IsFinished() {
		t.Fatal("Two humans remain, the game goes on")
	}
	if len(g.PlayerNames()) != 2 {
		t.Errorf("Seats %v after removal", g.PlayerNames())
	}
	if g.CurrentTurn() != "ana" {
		t.Errorf("Turn moved to %s after removing a non-turn player", g.CurrentTurn())
	}
	if n := g.CardCount(); n != 68 {
		t.Errorf("Removed player's hand should return to the deck: %d cards", n)
	}

	if _, err := g.RemovePlayer("bob"); err != nil {
		t.Fatalf("RemovePlayer failed: %v", err)
	}
	if !g.IsFinished() || !g.EndedShort() {
		t.Error("Dropping below the minimum should end the game short")
	}
}

func TestFullUpdateSnapshot(t *testing.T) {
	g := newRunningGame(t, "ana", "bob")
	setTurn(t, g, "ana")
	setOrgan(g.playerByName("ana"), 0, ColorRed)

	u := g.FullUpdate()
	slice := u.Get("ana")
	if slice["current_turn"] != "ana" {
		t.Errorf("Snapshot current_turn = %v", slice["current_turn"])
	}
	if slice["paused"] != false {
		t.Error("Snapshot should carry the pause state")
	}
	hand, ok := slice["hand"].([]M)
	if !ok || len(hand) != MinHandCards {
		t.Errorf("Snapshot hand = %v", slice["hand"])
	}
	bodies, ok := slice["bodies"].(M)
	if !ok {
		t.Fatalf("Snapshot bodies = %v", slice["bodies"])
	}
	if _, ok := bodies["ana"]; !ok {
		t.Error("Snapshot should include every player's body")
	}
}
