package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IPVersion identifies the address family of a range.
type IPVersion int

const (
	// IPv4 ranges use 32-bit addresses.
	IPv4 IPVersion = 4
	// IPv6 ranges use 128-bit addresses.
	IPv6 IPVersion = 6
)

func (v IPVersion) String() string {
	switch v {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	}
	return "ipv" + strconv.Itoa(int(v))
}

// Valid reports whether v is one of the supported address families.
func (v IPVersion) Valid() bool {
	return v == IPv4 || v == IPv6
}

// ParseIPVersion accepts "4", "6", "ipv4" or "ipv6".
func ParseIPVersion(s string) (IPVersion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "4", "ipv4", "v4":
		return IPv4, nil
	case "6", "ipv6", "v6":
		return IPv6, nil
	}
	return 0, fmt.Errorf("unknown ip version %q", s)
}

// State is the lifecycle state of an address inside a range. Its numeric
// value is the 2-bit status code kept by the allocator.
type State uint8

const (
	// StateFree is status code 0. Unallocated addresses always report it.
	StateFree State = iota
	// StateActivated is status code 1, assigned on allocation.
	StateActivated
	// StateDeactivated is status code 2, an allocated address that is down.
	StateDeactivated
)

var stateNames = map[State]string{
	StateFree:        "free",
	StateActivated:   "activated",
	StateDeactivated: "deactivated",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether s is one of the defined lifecycle states.
func (s State) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

// ParseState converts the display form of a state back into a State.
func ParseState(s string) (State, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for state, name := range stateNames {
		if name == want {
			return state, nil
		}
	}
	return 0, fmt.Errorf("unknown address state %q", s)
}

// MarshalJSON encodes the state as its display string.
func (s State) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot marshal undefined address state %d", uint8(s))
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the display string form of a state.
func (s *State) UnmarshalJSON(p []byte) error {
	var str string
	if err := json.Unmarshal(p, &str); err != nil {
		return err
	}
	parsed, err := ParseState(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Range is the persisted identity and bounds of the address pool owned by a
// subnet. Bounds are inclusive and kept in display form.
type Range struct {
	ID        string    `json:"id"`
	VpcID     string    `json:"vpc_id"`
	SubnetID  string    `json:"subnet_id"`
	IPVersion IPVersion `json:"ip_version"`
	FirstIP   string    `json:"first_ip"`
	LastIP    string    `json:"last_ip"`
	CreatedAt time.Time `json:"created_at"`
}

// Copy returns a deep copy of the range.
func (r *Range) Copy() *Range {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Allocation describes the assignment of one address. It is a snapshot taken
// when it was produced and is never updated in place.
type Allocation struct {
	IPVersion IPVersion `json:"ip_version"`
	SubnetID  string    `json:"subnet_id"`
	RangeID   string    `json:"range_id"`
	Address   string    `json:"ip"`
	State     State     `json:"state"`
}

// Copy returns a deep copy of the allocation.
func (a *Allocation) Copy() *Allocation {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// AllocationRequest asks for an address in a subnet. An empty Address means
// any free address.
type AllocationRequest struct {
	SubnetID string `json:"subnet_id"`
	Address  string `json:"ip,omitempty"`
}
