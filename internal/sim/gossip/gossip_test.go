package gossip

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sugarscape.ai/internal/sim/geom"
)

type peer struct {
	id     int
	ledger *Ledger
	falsey map[geom.Loc]bool
}

func newPeer(id int) *peer {
	return &peer{id: id, ledger: NewLedger(), falsey: map[geom.Loc]bool{}}
}

func (p *peer) PeerID() int { return p.id }

func (p *peer) ReceiveBroadcast(loc geom.Loc, prev, next Characteristic, now uint64) bool {
	if p.falsey[loc] {
		return false
	}
	p.ledger.Apply(loc, prev, next, now)
	return true
}

var l1 = geom.Loc{X: 100, Y: 200}

func TestBroadcast_AcceptedThenConfirmedMovesTheClaim(t *testing.T) {
	sup := NewSuppression()
	b := newPeer(2)

	require.Equal(t, 1, Broadcast(sup, []Recipient{b}, l1, Accepted, 10))
	require.Equal(t, 1, Broadcast(sup, []Recipient{b}, l1, Confirmed, 11))

	e, ok := b.ledger.Get(l1)
	require.True(t, ok)
	require.Zero(t, e.Accepted)
	require.EqualValues(t, 1, e.Confirmed)
	require.EqualValues(t, 11, e.LastHeard)
}

func TestBroadcast_SameClaimTwiceChangesLedgerOnce(t *testing.T) {
	sup := NewSuppression()
	b := newPeer(2)

	Broadcast(sup, []Recipient{b}, l1, Accepted, 1)
	require.Zero(t, Broadcast(sup, []Recipient{b}, l1, Accepted, 2))

	e, _ := b.ledger.Get(l1)
	require.EqualValues(t, 1, e.Accepted)
	require.EqualValues(t, 1, e.LastHeard)
}

func TestBroadcast_ConfirmedFalseIsQuarantined(t *testing.T) {
	sup := NewSuppression()
	b := newPeer(2)
	b.falsey[l1] = true

	require.Zero(t, Broadcast(sup, []Recipient{b}, l1, Confirmed, 1))
	_, ok := b.ledger.Get(l1)
	require.False(t, ok)
	require.Equal(t, None, sup.Last(2, l1))
}

func TestBroadcast_ConservationAcrossSenders(t *testing.T) {
	a, c := NewSuppression(), NewSuppression()
	b := newPeer(2)

	steps := []struct {
		sup *Suppression
		ch  Characteristic
	}{
		{a, Accepted},
		{c, Accepted},
		{a, Accepted},
		{a, Rejected},
		{c, Confirmed},
		{a, Confirmed},
		{c, Confirmed},
	}
	for i, s := range steps {
		Broadcast(s.sup, []Recipient{b}, l1, s.ch, uint64(i))
	}

	e, ok := b.ledger.Get(l1)
	require.True(t, ok)
	require.Zero(t, e.Accepted)
	require.Zero(t, e.Rejected)
	require.EqualValues(t, 2, e.Confirmed)
}

func TestLedger_DecrementNeverNegativeAndEvicts(t *testing.T) {
	l := NewLedger()
	require.False(t, l.Decrement(l1, Accepted))

	l.Increment(l1, Accepted, 1)
	l.Increment(l1, Rejected, 2)
	require.True(t, l.Decrement(l1, Accepted))
	require.False(t, l.Decrement(l1, Accepted))

	e, ok := l.Get(l1)
	require.True(t, ok)
	require.EqualValues(t, 1, e.Rejected)

	require.True(t, l.Decrement(l1, Rejected))
	_, ok = l.Get(l1)
	require.False(t, ok)
	require.Zero(t, l.Len())
}

func TestLedger_IncrementMovesLocationToBack(t *testing.T) {
	l := NewLedger()
	a, b, c := geom.Loc{X: 1}, geom.Loc{X: 2}, geom.Loc{X: 3}
	l.Increment(a, Accepted, 1)
	l.Increment(b, Accepted, 2)
	l.Increment(c, Accepted, 3)
	l.Increment(a, Confirmed, 4)

	var order []geom.Loc
	for _, it := range l.Items() {
		order = append(order, it.Loc)
	}
	require.Equal(t, []geom.Loc{b, c, a}, order)
}

func TestLedger_IgnoresNone(t *testing.T) {
	l := NewLedger()
	l.Increment(l1, None, 1)
	require.Zero(t, l.Len())
}

func TestEntry_Predominant(t *testing.T) {
	c, n := Entry{Accepted: 2, Confirmed: 2, Rejected: 1}.Predominant()
	require.Equal(t, Confirmed, c)
	require.EqualValues(t, 2, n)

	c, _ = Entry{Accepted: 1, Rejected: 3}.Predominant()
	require.Equal(t, Rejected, c)
}

func TestRetire_ForgetsRecordsButKeepsRecipientLedgers(t *testing.T) {
	sup := NewSuppression()
	b, d := newPeer(2), newPeer(4)
	Broadcast(sup, []Recipient{d, b}, l1, Confirmed, 1)
	require.Equal(t, []int{2, 4}, sup.Peers(l1))

	require.Equal(t, 2, Retire(sup, l1))
	require.Zero(t, sup.Len())

	e, ok := b.ledger.Get(l1)
	require.True(t, ok)
	require.EqualValues(t, 1, e.Confirmed)

	// A fresh broadcast after retirement counts as a new claim.
	Broadcast(sup, []Recipient{b}, l1, Confirmed, 5)
	e, _ = b.ledger.Get(l1)
	require.EqualValues(t, 2, e.Confirmed)
}
