package domain

// Condition is the lifecycle state of an item on the remote side.
type Condition int

const (
	Open Condition = iota
	Closed
	Merged
)

func (c Condition) String() string {
	switch c {
	case Closed:
		return "closed"
	case Merged:
		return "merged"
	default:
		return "open"
	}
}

// NextCondition is applied on every ingestion of an item seen in an open
// listing. The item becomes Open and is flagged reopened when it was Closed.
// Merged and Closed are assigned later, when an item drops out of the listing.
func NextCondition(previous Condition) (next Condition, reopened bool) {
	return Open, previous == Closed
}
