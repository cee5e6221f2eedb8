package game

import (
	"math/rand"
	"testing"
)

func TestDeckDrawFromTop(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	cards := []Card{organ(ColorRed), virus(ColorGreen), medicine(ColorBlue)}
	deck := NewDeck(cards, rng)

	first, ok := deck.Draw()
	if !ok {
		t.Fatal("Draw failed on non-empty deck")
	}
	if first != cards[0] {
		t.Errorf("Expected top card %v, got %v", cards[0], first)
	}
	if deck.Size() != 2 {
		t.Errorf("Expected size 2 after draw, got %d", deck.Size())
	}
}

func TestDeckReturnBottom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	deck := NewDeck([]Card{organ(ColorRed), organ(ColorGreen)}, rng)

	returned := virus(ColorBlue)
	deck.ReturnBottom(returned)

	var last Card
	for deck.Size() > 0 {
		last, _ = deck.Draw()
	}
	if last != returned {
		t.Errorf("Returned card should come out last, got %v", last)
	}
}

func TestDeckDrawEmpty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	deck := NewDeck(nil, rng)
	if _, ok := deck.Draw(); ok {
		t.Error("Draw on empty deck should report failure")
	}
}

func TestDeckShuffleDeterministic(t *testing.T) {
	a := NewDeck(testCards(), rand.New(rand.NewSource(7)))
	b := NewDeck(testCards(), rand.New(rand.NewSource(7)))
	a.Shuffle()
	b.Shuffle()

	if a.Size() != 68 || b.Size() != 68 {
		t.Fatalf("Catalog should have 68 cards, got %d", a.Size())
	}
	for a.Size() > 0 {
		ca, _ := a.Draw()
		cb, _ := b.Draw()
		if ca != cb {
			t.Fatal("Same seed should yield the same shuffle")
		}
	}
}

func TestDeckDoesNotAliasInput(t *testing.T) {
	cards := []Card{organ(ColorRed), organ(ColorGreen)}
	deck := NewDeck(cards, rand.New(rand.NewSource(1)))
	cards[0] = virus(ColorBlue)

	got, _ := deck.Draw()
	if got != organ(ColorRed) {
		t.Error("Deck should copy the catalog slice")
	}
}
