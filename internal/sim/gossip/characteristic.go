package gossip

// Characteristic is what a claim says about a location.
type Characteristic uint8

const (
	None Characteristic = iota
	// Accepted: the sender is travelling there, unverified.
	Accepted
	// Confirmed: the sender stood there and found a resource.
	Confirmed
	// Rejected: the sender stood there and found nothing.
	Rejected
)

func (c Characteristic) String() string {
	switch c {
	case Accepted:
		return "accepted"
	case Confirmed:
		return "confirmed"
	case Rejected:
		return "rejected"
	default:
		return "none"
	}
}

func (c Characteristic) Valid() bool {
	return c == Accepted || c == Confirmed || c == Rejected
}
