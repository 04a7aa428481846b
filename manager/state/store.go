package state

import (
	"context"
	"errors"

	"github.com/vfabric/privateip/api"
)

var (
	// ErrExist is returned by create operations if the subnet already has a
	// range.
	ErrExist = errors.New("object already exists")

	// ErrNotExist is returned when the subnet has no range.
	ErrNotExist = errors.New("object does not exist")
)

// Store persists address ranges and their allocations. Ranges are keyed by
// subnet id, allocations by subnet id and address. Implementations must be
// safe for concurrent use.
type Store interface {
	// ListRanges returns every range in the store.
	ListRanges(ctx context.Context) ([]*api.Range, error)
	// GetRange returns the range of a subnet, or ErrNotExist.
	GetRange(ctx context.Context, subnetID string) (*api.Range, error)
	// CreateRange stores a new range. Returns ErrExist if the subnet already
	// has one.
	CreateRange(ctx context.Context, r *api.Range) error
	// DeleteRange removes the range of a subnet together with its
	// allocations. Returns ErrNotExist if there is no such range.
	DeleteRange(ctx context.Context, subnetID string) error

	// ListAllocations returns the allocations of a subnet, in no
	// particular order.
	ListAllocations(ctx context.Context, subnetID string) ([]*api.Allocation, error)
	// PutAllocations creates or replaces allocations. Returns ErrNotExist,
	// writing nothing, if the subnet of an allocation has no range.
	PutAllocations(ctx context.Context, allocs []*api.Allocation) error
	// DeleteAllocations removes allocations of a subnet. Addresses that are
	// not stored are ignored.
	DeleteAllocations(ctx context.Context, subnetID string, addrs []string) error

	Close() error
}
