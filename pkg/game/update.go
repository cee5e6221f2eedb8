package game

import "fmt"

// M is a partial-state payload tree: a mapping of string keys to primitives,
// nested M maps or lists. Lists are replaced wholesale on merge; only nested
// maps merge recursively.
type M map[string]interface{}

// deepMerge merges src into dst and returns dst. When both sides hold a map
// at the same key the merge recurses; otherwise the right-hand side wins.
func deepMerge(dst, src M) M {
	if dst == nil {
		dst = make(M, len(src))
	}
	for k, v := range src {
		if sv, ok := v.(M); ok {
			if dv, ok := dst[k].(M); ok {
				dst[k] = deepMerge(dv, sv)
				continue
			}
		}
		dst[k] = v
	}
	return dst
}

// Update is a per-recipient set of partial game-state diffs. Every player of
// the game owns a slot; slots start empty and identical, and the update stays
// flagged as repeated (broadcastable as a single message) until a
// player-specific Add breaks the symmetry.
type Update struct {
	slices   map[string]M
	order    []string
	repeated bool
	msgs     []string
}

// NewUpdate creates an empty update over the given recipients.
func NewUpdate(players ...string) *Update {
	u := &Update{
		slices:   make(map[string]M, len(players)),
		order:    make([]string, 0, len(players)),
		repeated: true,
	}
	for _, name := range players {
		u.slices[name] = M{}
		u.order = append(u.order, name)
	}
	return u
}

// Add deep-merges data into the named player's slot. The update is no longer
// guaranteed identical across recipients afterwards.
func (u *Update) Add(player string, data M) {
	slice, ok := u.slices[player]
	if !ok {
		slice = M{}
		u.slices[player] = slice
		u.order = append(u.order, player)
	}
	u.slices[player] = deepMerge(slice, data)
	u.repeated = false
}

// AddForEach deep-merges f(player) into every player's slot.
func (u *Update) AddForEach(f func(player string) M) {
	for _, name := range u.order {
		u.Add(name, f(name))
	}
}

// Repeat deep-merges the same data into every player's slot, preserving the
// repeated flag.
func (u *Update) Repeat(data M) {
	for _, name := range u.order {
		u.slices[name] = deepMerge(u.slices[name], data)
	}
}

// Get returns the named player's slice.
func (u *Update) Get(player string) M {
	return u.slices[player]
}

// GetAny returns any player's slice. It fails unless the update is repeated,
// because otherwise the slices differ and "any" is meaningless.
func (u *Update) GetAny() (M, error) {
	if !u.repeated {
		return nil, fmt.Errorf("update is not repeated")
	}
	for _, name := range u.order {
		return u.slices[name], nil
	}
	return M{}, nil
}

// MergeWith combines another update over the same game into this one by
// per-recipient deep merge. The combination is repeated only if both inputs
// were. Messages accumulate in event order.
func (u *Update) MergeWith(other *Update) {
	if other == nil {
		return
	}
	u.msgs = append(u.msgs, other.msgs...)
	for _, name := range other.order {
		slice, ok := u.slices[name]
		if !ok {
			slice = M{}
			u.order = append(u.order, name)
		}
		u.slices[name] = deepMerge(slice, other.slices[name])
	}
	u.repeated = u.repeated && other.repeated
}

// IsRepeated reports whether every recipient's slice is identical.
func (u *Update) IsRepeated() bool { return u.repeated }

// AddMessage attaches a human-readable broadcast message. An update composed
// from several game events carries one message per event, in order.
func (u *Update) AddMessage(msg string) { u.msgs = append(u.msgs, msg) }

// Messages returns the attached broadcast messages in event order.
func (u *Update) Messages() []string { return u.msgs }

// Players returns the recipients in insertion order.
func (u *Update) Players() []string { return u.order }
