package ipam

import (
	"fmt"
	"strconv"

	"github.com/bits-and-blooms/bitset"

	"github.com/vfabric/privateip/api"
	"github.com/vfabric/privateip/manager/allocator/errors"
)

// Allocator hands out addresses from one contiguous block.
type Allocator interface {
	// Allocate allocates addr, or the lowest free address if addr is empty.
	// An explicit address is not checked for conflicts: allocating an address
	// twice leaves it allocated and resets its status to activated.
	Allocate(addr string) (string, error)
	// AllocateBulk allocates count addresses, lowest first. It allocates
	// either all of them or none.
	AllocateBulk(count int) ([]string, error)
	// AllocateList allocates each address in order and stops at the first
	// failure. The addresses allocated before the failure are returned and
	// stay allocated.
	AllocateList(addrs []string) []string
	// Release frees addr. Releasing a free address is not an error.
	Release(addr string) error
	// ReleaseBulk releases each address in order and returns the first error.
	// Addresses released before the error stay released.
	ReleaseBulk(addrs []string) error

	IPIndex(addr string) (int, error)
	IP(index int) (string, error)
	AllocatedIPs() []string

	// SetStatus stores code as the status of the address at index. Codes
	// other than the three lifecycle states are ignored.
	SetStatus(code api.State, index int)
	Status(index int) api.State

	// Validate reports whether addr lies within the bounds.
	Validate(addr string) bool
	// IsAllocated reports whether addr is allocated. Input that does not map
	// into the block reads as not allocated.
	IsAllocated(addr string) bool

	Total() int
	Used() int
	Version() api.IPVersion
	First() string
	Last() string
}

type bitmapAllocator struct {
	space     addressSpace
	total     uint
	allocated *bitset.BitSet
	status    statusArray
}

// New returns an Allocator for the block [first, last] of the given family.
func New(version api.IPVersion, first, last string) (Allocator, error) {
	space, err := newAddressSpace(version, first, last)
	if err != nil {
		return nil, err
	}
	n := space.size()
	return &bitmapAllocator{
		space:     space,
		total:     uint(n),
		allocated: bitset.New(uint(n)),
		status:    newStatusArray(n),
	}, nil
}

func (a *bitmapAllocator) Allocate(addr string) (string, error) {
	if addr == "" {
		i, ok := a.nextFree(0)
		if !ok {
			return "", errors.ErrAddressPoolExhausted(1, a.available())
		}
		a.mark(i)
		return a.space.address(int(i)), nil
	}

	idx, err := a.space.index(addr)
	if err != nil {
		return "", err
	}
	a.mark(uint(idx))
	return a.space.address(idx), nil
}

func (a *bitmapAllocator) AllocateBulk(count int) ([]string, error) {
	if count <= 0 {
		return []string{}, nil
	}
	if count > a.available() {
		return nil, errors.ErrAddressPoolExhausted(count, a.available())
	}

	found := make([]uint, 0, count)
	var from uint
	for len(found) < count {
		i, ok := a.nextFree(from)
		if !ok {
			return nil, errors.ErrAddressPoolExhausted(count, a.available())
		}
		found = append(found, i)
		from = i + 1
	}

	addrs := make([]string, 0, count)
	for _, i := range found {
		a.mark(i)
		addrs = append(addrs, a.space.address(int(i)))
	}
	return addrs, nil
}

func (a *bitmapAllocator) AllocateList(addrs []string) []string {
	allocated := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		ip, err := a.Allocate(addr)
		if err != nil {
			break
		}
		allocated = append(allocated, ip)
	}
	return allocated
}

func (a *bitmapAllocator) Release(addr string) error {
	idx, err := a.space.index(addr)
	if err != nil {
		return err
	}
	a.allocated.Clear(uint(idx))
	a.status.set(idx, statusCleared)
	return nil
}

func (a *bitmapAllocator) ReleaseBulk(addrs []string) error {
	for _, addr := range addrs {
		if err := a.Release(addr); err != nil {
			return err
		}
	}
	return nil
}

func (a *bitmapAllocator) IPIndex(addr string) (int, error) {
	return a.space.index(addr)
}

func (a *bitmapAllocator) IP(index int) (string, error) {
	if index < 0 || uint(index) >= a.total {
		return "", errors.ErrAddressOutOfRange(fmt.Sprintf("index %d", index), "0", strconv.Itoa(int(a.total)-1))
	}
	return a.space.address(index), nil
}

func (a *bitmapAllocator) AllocatedIPs() []string {
	addrs := make([]string, 0, a.allocated.Count())
	for i, ok := a.allocated.NextSet(0); ok && i < a.total; i, ok = a.allocated.NextSet(i + 1) {
		addrs = append(addrs, a.space.address(int(i)))
	}
	return addrs
}

func (a *bitmapAllocator) SetStatus(code api.State, index int) {
	if !code.Valid() || index < 0 || uint(index) >= a.total {
		return
	}
	a.status.set(index, uint8(code))
}

func (a *bitmapAllocator) Status(index int) api.State {
	if index < 0 || uint(index) >= a.total {
		return api.StateFree
	}
	return api.State(a.status.get(index))
}

func (a *bitmapAllocator) Validate(addr string) bool {
	_, err := a.space.index(addr)
	return err == nil
}

func (a *bitmapAllocator) IsAllocated(addr string) bool {
	idx, err := a.space.index(addr)
	if err != nil {
		return false
	}
	return a.allocated.Test(uint(idx))
}

func (a *bitmapAllocator) Total() int { return int(a.total) }

func (a *bitmapAllocator) Used() int { return int(a.allocated.Count()) }

func (a *bitmapAllocator) Version() api.IPVersion { return a.space.version() }

func (a *bitmapAllocator) First() string { return a.space.first() }

func (a *bitmapAllocator) Last() string { return a.space.last() }

func (a *bitmapAllocator) available() int { return int(a.total) - a.Used() }

// nextFree returns the lowest clear index at or after from.
func (a *bitmapAllocator) nextFree(from uint) (uint, bool) {
	if from >= a.total {
		return 0, false
	}
	i, ok := a.allocated.NextClear(from)
	if !ok || i >= a.total {
		return 0, false
	}
	return i, true
}

func (a *bitmapAllocator) mark(i uint) {
	a.allocated.Set(i)
	a.status.set(int(i), uint8(api.StateActivated))
}
