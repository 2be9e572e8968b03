package gossip

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"sugarscape.ai/internal/sim/geom"
)

// Entry is the per-location tally of claims an agent has heard.
type Entry struct {
	Accepted  uint32 `json:"accepted,omitempty"`
	Confirmed uint32 `json:"confirmed,omitempty"`
	Rejected  uint32 `json:"rejected,omitempty"`
	LastHeard uint64 `json:"last_heard"`
}

func (e Entry) Count(c Characteristic) uint32 {
	switch c {
	case Accepted:
		return e.Accepted
	case Confirmed:
		return e.Confirmed
	case Rejected:
		return e.Rejected
	}
	return 0
}

func (e Entry) Empty() bool {
	return e.Accepted == 0 && e.Confirmed == 0 && e.Rejected == 0
}

// Predominant returns the characteristic with the highest count.
// Ties resolve confirmed, then accepted, then rejected.
func (e Entry) Predominant() (Characteristic, uint32) {
	best, n := Confirmed, e.Confirmed
	if e.Accepted > n {
		best, n = Accepted, e.Accepted
	}
	if e.Rejected > n {
		best, n = Rejected, e.Rejected
	}
	return best, n
}

func (e *Entry) slot(c Characteristic) *uint32 {
	switch c {
	case Accepted:
		return &e.Accepted
	case Confirmed:
		return &e.Confirmed
	case Rejected:
		return &e.Rejected
	}
	return nil
}

// Item is a ledger row as returned by Items.
type Item struct {
	Loc   geom.Loc `json:"loc"`
	Entry Entry    `json:"entry"`
}

// Ledger is an agent's private record of claims received from others, ordered by
// recency: the most recently touched location is always last.
type Ledger struct {
	m *orderedmap.OrderedMap[geom.Loc, *Entry]
}

func NewLedger() *Ledger {
	return &Ledger{m: orderedmap.New[geom.Loc, *Entry]()}
}

func (l *Ledger) Len() int { return l.m.Len() }

func (l *Ledger) Get(loc geom.Loc) (Entry, bool) {
	e, ok := l.m.Get(loc)
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Increment adds one claim of c for loc, stamps it as heard at now and moves loc to the back.
func (l *Ledger) Increment(loc geom.Loc, c Characteristic, now uint64) {
	if !c.Valid() {
		return
	}
	e, ok := l.m.Get(loc)
	if !ok {
		e = &Entry{}
		l.m.Set(loc, e)
	} else {
		_ = l.m.MoveToBack(loc)
	}
	*e.slot(c) = *e.slot(c) + 1
	e.LastHeard = now
}

// Decrement retracts one claim of c for loc. Counts never go below zero; a characteristic
// at zero is dropped, and a location with nothing left is removed. Reports whether
// anything changed.
func (l *Ledger) Decrement(loc geom.Loc, c Characteristic) bool {
	if !c.Valid() {
		return false
	}
	e, ok := l.m.Get(loc)
	if !ok {
		return false
	}
	s := e.slot(c)
	if *s == 0 {
		return false
	}
	*s--
	if e.Empty() {
		l.m.Delete(loc)
	}
	return true
}

// Apply moves one sender's claim about loc from prev to next.
func (l *Ledger) Apply(loc geom.Loc, prev, next Characteristic, now uint64) {
	if prev != None {
		l.Decrement(loc, prev)
	}
	l.Increment(loc, next, now)
}

func (l *Ledger) Remove(loc geom.Loc) {
	l.m.Delete(loc)
}

// Each walks entries from oldest to newest until fn returns false.
func (l *Ledger) Each(fn func(loc geom.Loc, e Entry) bool) {
	for p := l.m.Oldest(); p != nil; p = p.Next() {
		if !fn(p.Key, *p.Value) {
			return
		}
	}
}

// Items copies the ledger, oldest first.
func (l *Ledger) Items() []Item {
	out := make([]Item, 0, l.m.Len())
	l.Each(func(loc geom.Loc, e Entry) bool {
		out = append(out, Item{Loc: loc, Entry: e})
		return true
	})
	return out
}
