// Package iprange layers allocation policy on top of an ipam.Allocator:
// conflict detection, lifecycle state transitions, and conversion of raw
// addresses into api.Allocation records.
//
// A Range is not safe for concurrent use.
package iprange

import (
	"sort"

	"github.com/vfabric/privateip/api"
	"github.com/vfabric/privateip/manager/allocator/errors"
	"github.com/vfabric/privateip/manager/allocator/ipam"
)

// Range is the address range of one subnet.
type Range struct {
	record *api.Range
	alloc  ipam.Allocator
}

// New creates an empty Range for r.
func New(r *api.Range) (*Range, error) {
	if r == nil {
		return nil, errors.ErrInvalidRange("range is nil")
	}
	if r.SubnetID == "" {
		return nil, errors.ErrInvalidRange("subnet id is empty")
	}
	alloc, err := ipam.New(r.IPVersion, r.FirstIP, r.LastIP)
	if err != nil {
		return nil, err
	}
	record := r.Copy()
	// store the canonical form of the bounds
	record.FirstIP = alloc.First()
	record.LastIP = alloc.Last()
	return &Range{record: record, alloc: alloc}, nil
}

// Record returns a copy of the range's identity and bounds.
func (r *Range) Record() *api.Range {
	return r.record.Copy()
}

// Allocate allocates addr, or the lowest free address if addr is empty. An
// explicit address that is already allocated fails with ErrAddressConflict.
func (r *Range) Allocate(addr string) (*api.Allocation, error) {
	if addr != "" && r.alloc.IsAllocated(addr) {
		return nil, errors.ErrAddressConflict(addr)
	}
	ip, err := r.alloc.Allocate(addr)
	if err != nil {
		return nil, err
	}
	return r.allocation(ip, api.StateActivated), nil
}

// AllocateBulk allocates count addresses. Either all of them are allocated or
// none is.
func (r *Range) AllocateBulk(count int) ([]*api.Allocation, error) {
	ips, err := r.alloc.AllocateBulk(count)
	if err != nil {
		return nil, err
	}
	return r.allocations(ips), nil
}

// AllocateList allocates the given addresses in order and stops at the first
// one that cannot be allocated, including an address that is already
// allocated. The records of the allocated prefix are returned; a result
// shorter than addrs is not an error, and the prefix is not rolled back.
func (r *Range) AllocateList(addrs []string) []*api.Allocation {
	seen := make(map[string]struct{}, len(addrs))
	n := 0
	for _, addr := range addrs {
		if addr == "" || r.alloc.IsAllocated(addr) {
			break
		}
		idx, err := r.alloc.IPIndex(addr)
		if err != nil {
			break
		}
		ip, _ := r.alloc.IP(idx)
		if _, ok := seen[ip]; ok {
			break
		}
		seen[ip] = struct{}{}
		n++
	}
	return r.allocations(r.alloc.AllocateList(addrs[:n]))
}

// ModifyState sets the lifecycle state of an allocated address. A state
// other than the defined lifecycle states is dropped and the record returned
// carries the unchanged current state.
func (r *Range) ModifyState(addr string, state api.State) (*api.Allocation, error) {
	idx, err := r.alloc.IPIndex(addr)
	if err != nil {
		return nil, err
	}
	if !r.alloc.IsAllocated(addr) {
		return nil, errors.ErrAllocationNotFound(addr)
	}
	r.alloc.SetStatus(state, idx)
	ip, _ := r.alloc.IP(idx)
	return r.allocation(ip, r.alloc.Status(idx)), nil
}

// Release frees addr. Releasing an address that is not allocated succeeds.
func (r *Range) Release(addr string) error {
	if err := r.alloc.Release(addr); err != nil {
		return err
	}
	if r.alloc.IsAllocated(addr) {
		return errors.ErrAllocationNotFound(addr)
	}
	return nil
}

// ReleaseBulk releases each address in order and stops at the first error.
// It returns the number of addresses processed before the error; those stay
// released.
func (r *Range) ReleaseBulk(addrs []string) (int, error) {
	for i, addr := range addrs {
		if err := r.Release(addr); err != nil {
			return i, err
		}
	}
	return len(addrs), nil
}

// IsAllocated reports whether addr is allocated in the range.
func (r *Range) IsAllocated(addr string) bool {
	return r.alloc.IsAllocated(addr)
}

// GetAddress returns the allocation record of addr. An address within the
// bounds that is not allocated yields a record in the free state.
func (r *Range) GetAddress(addr string) (*api.Allocation, error) {
	idx, err := r.alloc.IPIndex(addr)
	if err != nil {
		return nil, err
	}
	ip, _ := r.alloc.IP(idx)
	if !r.alloc.IsAllocated(ip) {
		return r.allocation(ip, api.StateFree), nil
	}
	return r.allocation(ip, r.alloc.Status(idx)), nil
}

// AllocatedRecords returns a record for every allocated address, in
// ascending address order.
func (r *Range) AllocatedRecords() []*api.Allocation {
	ips := r.alloc.AllocatedIPs()
	records := make([]*api.Allocation, 0, len(ips))
	for _, ip := range ips {
		idx, _ := r.alloc.IPIndex(ip)
		records = append(records, r.allocation(ip, r.alloc.Status(idx)))
	}
	return records
}

// UsedCount returns the number of allocated addresses.
func (r *Range) UsedCount() int { return len(r.alloc.AllocatedIPs()) }

// TotalCount returns the number of addresses in the range.
func (r *Range) TotalCount() int { return r.alloc.Total() }

// Restore rebuilds the allocations of the range from persisted records. The
// records are replayed in ascending address order through the allocator, and
// each persisted state is applied after the address is allocated. A record
// that belongs to another subnet, lies outside of the bounds, carries an
// undefined state or duplicates another record fails the restore with
// ErrBadState, leaving the range unchanged.
func (r *Range) Restore(allocs []*api.Allocation) error {
	fresh, err := ipam.New(r.record.IPVersion, r.record.FirstIP, r.record.LastIP)
	if err != nil {
		return err
	}

	type indexed struct {
		idx   int
		alloc *api.Allocation
	}
	replay := make([]indexed, 0, len(allocs))
	for _, a := range allocs {
		if a.SubnetID != r.record.SubnetID {
			return errors.ErrBadState("allocation %v belongs to subnet %v, not %v", a.Address, a.SubnetID, r.record.SubnetID)
		}
		if !a.State.Valid() {
			return errors.ErrBadState("allocation %v has undefined state %d", a.Address, uint8(a.State))
		}
		idx, err := fresh.IPIndex(a.Address)
		if err != nil {
			return errors.ErrBadState("allocation %v cannot be restored: %v", a.Address, err)
		}
		replay = append(replay, indexed{idx: idx, alloc: a})
	}
	sort.Slice(replay, func(i, j int) bool { return replay[i].idx < replay[j].idx })

	for _, rec := range replay {
		if fresh.IsAllocated(rec.alloc.Address) {
			return errors.ErrBadState("allocation %v is recorded twice", rec.alloc.Address)
		}
		if _, err := fresh.Allocate(rec.alloc.Address); err != nil {
			return errors.ErrBadState("allocation %v cannot be restored: %v", rec.alloc.Address, err)
		}
		fresh.SetStatus(rec.alloc.State, rec.idx)
	}

	r.alloc = fresh
	return nil
}

func (r *Range) allocation(ip string, state api.State) *api.Allocation {
	return &api.Allocation{
		IPVersion: r.record.IPVersion,
		SubnetID:  r.record.SubnetID,
		RangeID:   r.record.ID,
		Address:   ip,
		State:     state,
	}
}

func (r *Range) allocations(ips []string) []*api.Allocation {
	records := make([]*api.Allocation, 0, len(ips))
	for _, ip := range ips {
		records = append(records, r.allocation(ip, api.StateActivated))
	}
	return records
}
