package gossip

import (
	"sort"

	"sugarscape.ai/internal/sim/geom"
)

// Recipient is the narrow entry point a neighbor exposes to broadcasters.
// ReceiveBroadcast reports false when the recipient refuses the claim
// (it has already confirmed the location false).
type Recipient interface {
	PeerID() int
	ReceiveBroadcast(loc geom.Loc, prev, next Characteristic, now uint64) bool
}

// Suppression remembers, per recipient and location, the last characteristic a sender
// delivered, so identical claims are not re-sent every tick.
type Suppression struct {
	byPeer map[int]map[geom.Loc]Characteristic
}

func NewSuppression() *Suppression {
	return &Suppression{byPeer: map[int]map[geom.Loc]Characteristic{}}
}

func (s *Suppression) Last(peer int, loc geom.Loc) Characteristic {
	return s.byPeer[peer][loc]
}

func (s *Suppression) Record(peer int, loc geom.Loc, c Characteristic) {
	m := s.byPeer[peer]
	if m == nil {
		m = map[geom.Loc]Characteristic{}
		s.byPeer[peer] = m
	}
	m[loc] = c
}

// Forget drops every record for loc and returns the affected peers in id order.
func (s *Suppression) Forget(loc geom.Loc) []int {
	var peers []int
	for peer, m := range s.byPeer {
		if _, ok := m[loc]; !ok {
			continue
		}
		delete(m, loc)
		if len(m) == 0 {
			delete(s.byPeer, peer)
		}
		peers = append(peers, peer)
	}
	sort.Ints(peers)
	return peers
}

func (s *Suppression) ForgetPeer(peer int) {
	delete(s.byPeer, peer)
}

// Peers returns the ids of every recipient that holds a record for loc, in id order.
func (s *Suppression) Peers(loc geom.Loc) []int {
	var peers []int
	for peer, m := range s.byPeer {
		if _, ok := m[loc]; ok {
			peers = append(peers, peer)
		}
	}
	sort.Ints(peers)
	return peers
}

func (s *Suppression) Len() int {
	n := 0
	for _, m := range s.byPeer {
		n += len(m)
	}
	return n
}

// Broadcast delivers (loc, c) from the owner of sup to each recipient, in the order given.
// A recipient already told c about loc is skipped; otherwise it gets the transition from
// whatever the sender told it last. Returns the number of recipients whose ledger changed.
func Broadcast(sup *Suppression, recipients []Recipient, loc geom.Loc, c Characteristic, now uint64) int {
	if !c.Valid() {
		return 0
	}
	delivered := 0
	for _, r := range recipients {
		peer := r.PeerID()
		prev := sup.Last(peer, loc)
		if prev == c {
			continue
		}
		if !r.ReceiveBroadcast(loc, prev, c, now) {
			continue
		}
		sup.Record(peer, loc, c)
		delivered++
	}
	return delivered
}

// Retire forgets everything the sender has said about loc. Recipients keep what they
// heard; the sender will treat them as uninformed if it ever speaks about loc again.
func Retire(sup *Suppression, loc geom.Loc) int {
	return len(sup.Forget(loc))
}
