package api

// Event is implemented by every notification published after a successful
// mutation of a range.
type Event interface {
	// Subnet returns the subnet the event applies to.
	Subnet() string
}

// EventCreateRange is published when a range is created for a subnet.
type EventCreateRange struct {
	Range *Range
}

// Subnet implements Event.
func (e EventCreateRange) Subnet() string { return e.Range.SubnetID }

// EventDeleteRange is published when the range of a subnet is removed.
type EventDeleteRange struct {
	Range *Range
}

// Subnet implements Event.
func (e EventDeleteRange) Subnet() string { return e.Range.SubnetID }

// EventAllocate is published once per newly allocated address.
type EventAllocate struct {
	Allocation *Allocation
}

// Subnet implements Event.
func (e EventAllocate) Subnet() string { return e.Allocation.SubnetID }

// EventRelease is published once per released address.
type EventRelease struct {
	SubnetID string
	Address  string
}

// Subnet implements Event.
func (e EventRelease) Subnet() string { return e.SubnetID }

// EventUpdateState is published when the lifecycle state of an address
// changes.
type EventUpdateState struct {
	Allocation *Allocation
}

// Subnet implements Event.
func (e EventUpdateState) Subnet() string { return e.Allocation.SubnetID }
