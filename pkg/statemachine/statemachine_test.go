package statemachine

import "testing"

type door struct {
	opens int
}

func doorClosed(*door) StateFn[door] { return doorClosed }

func doorOpen(d *door) StateFn[door] {
	d.opens++
	return doorOpen
}

func doorLatching(*door) StateFn[door] { return doorClosed }

func TestDispatchRunsStateOnce(t *testing.T) {
	d := &door{}
	sm := New(d, doorClosed)

	if !sm.Is(doorClosed) {
		t.Fatal("Initial state not reported")
	}
	sm.Dispatch(doorOpen)
	if d.opens != 1 {
		t.Errorf("State ran %d times, want 1", d.opens)
	}
	if !sm.Is(doorOpen) {
		t.Error("Machine should rest in the returned state")
	}
}

func TestDispatchFollowsReturnedState(t *testing.T) {
	d := &door{}
	sm := New(d, doorOpen)

	// Latching runs once and hands over to closed.
	sm.Dispatch(doorLatching)
	if !sm.Is(doorClosed) {
		t.Error("Machine should record the state the function returned")
	}
}

func TestSame(t *testing.T) {
	if !Same[door](doorOpen, doorOpen) {
		t.Error("Identical functions should compare equal")
	}
	if Same[door](doorOpen, doorClosed) {
		t.Error("Distinct functions should not compare equal")
	}
	if !Same[door](nil, nil) {
		t.Error("Two nil states are the same")
	}
	if Same[door](doorOpen, nil) {
		t.Error("A state is not nil")
	}
}

func TestDispatchNilTerminates(t *testing.T) {
	d := &door{}
	sm := New(d, doorOpen)
	sm.Dispatch(nil)
	if sm.Current() != nil {
		t.Error("Dispatching nil should terminate the machine")
	}
}
