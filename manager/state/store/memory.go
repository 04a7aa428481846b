// Package store provides MemoryStore, an in-memory implementation of
// state.Store on top of go-memdb.
package store

import (
	"context"
	"fmt"

	memdb "github.com/hashicorp/go-memdb"

	"github.com/vfabric/privateip/api"
	"github.com/vfabric/privateip/manager/state"
)

const (
	tableRange      = "range"
	tableAllocation = "allocation"

	indexID       = "id"
	indexSubnetID = "subnetid"
)

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tableRange: {
			Name: tableRange,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {
					Name:    indexID,
					Unique:  true,
					Indexer: rangeIndexerBySubnet{},
				},
			},
		},
		tableAllocation: {
			Name: tableAllocation,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {
					Name:    indexID,
					Unique:  true,
					Indexer: allocationIndexerByID{},
				},
				indexSubnetID: {
					Name:    indexSubnetID,
					Indexer: allocationIndexerBySubnet{},
				},
			},
		},
	},
}

// MemoryStore is a concurrency-safe, in-memory implementation of the
// state.Store interface.
type MemoryStore struct {
	memDB *memdb.MemDB
}

var _ state.Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	memDB, err := memdb.NewMemDB(schema)
	if err != nil {
		// This shouldn't fail
		panic(err)
	}
	return &MemoryStore{memDB: memDB}
}

// ListRanges returns every range in the store.
func (s *MemoryStore) ListRanges(ctx context.Context) ([]*api.Range, error) {
	txn := s.memDB.Txn(false)
	it, err := txn.Get(tableRange, indexID)
	if err != nil {
		return nil, err
	}
	ranges := []*api.Range{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		ranges = append(ranges, obj.(*api.Range).Copy())
	}
	return ranges, nil
}

// GetRange returns the range of a subnet.
func (s *MemoryStore) GetRange(ctx context.Context, subnetID string) (*api.Range, error) {
	obj, err := s.memDB.Txn(false).First(tableRange, indexID, subnetID)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, state.ErrNotExist
	}
	return obj.(*api.Range).Copy(), nil
}

// CreateRange stores a new range.
func (s *MemoryStore) CreateRange(ctx context.Context, r *api.Range) error {
	txn := s.memDB.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(tableRange, indexID, r.SubnetID)
	if err != nil {
		return err
	}
	if existing != nil {
		return state.ErrExist
	}
	if err := txn.Insert(tableRange, r.Copy()); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// DeleteRange removes a range and its allocations.
func (s *MemoryStore) DeleteRange(ctx context.Context, subnetID string) error {
	txn := s.memDB.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(tableRange, indexID, subnetID)
	if err != nil {
		return err
	}
	if existing == nil {
		return state.ErrNotExist
	}
	if err := txn.Delete(tableRange, existing); err != nil {
		return err
	}
	if _, err := txn.DeleteAll(tableAllocation, indexSubnetID, subnetID); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// ListAllocations returns the allocations of a subnet.
func (s *MemoryStore) ListAllocations(ctx context.Context, subnetID string) ([]*api.Allocation, error) {
	it, err := s.memDB.Txn(false).Get(tableAllocation, indexSubnetID, subnetID)
	if err != nil {
		return nil, err
	}
	allocs := []*api.Allocation{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		allocs = append(allocs, obj.(*api.Allocation).Copy())
	}
	return allocs, nil
}

// PutAllocations creates or replaces allocations in a single transaction.
func (s *MemoryStore) PutAllocations(ctx context.Context, allocs []*api.Allocation) error {
	txn := s.memDB.Txn(true)
	defer txn.Abort()

	for _, a := range allocs {
		r, err := txn.First(tableRange, indexID, a.SubnetID)
		if err != nil {
			return err
		}
		if r == nil {
			return state.ErrNotExist
		}
		if err := txn.Insert(tableAllocation, a.Copy()); err != nil {
			return err
		}
	}
	txn.Commit()
	return nil
}

// DeleteAllocations removes allocations of a subnet in a single transaction.
func (s *MemoryStore) DeleteAllocations(ctx context.Context, subnetID string, addrs []string) error {
	txn := s.memDB.Txn(true)
	defer txn.Abort()

	for _, addr := range addrs {
		obj, err := txn.First(tableAllocation, indexID, subnetID, addr)
		if err != nil {
			return err
		}
		if obj == nil {
			continue
		}
		if err := txn.Delete(tableAllocation, obj); err != nil {
			return err
		}
	}
	txn.Commit()
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func fromArgs(args ...interface{}) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("must provide only a single argument")
	}
	arg, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("argument must be a string: %#v", args[0])
	}
	// Add the null character as a terminator
	arg += "\x00"
	return []byte(arg), nil
}

type rangeIndexerBySubnet struct{}

func (ri rangeIndexerBySubnet) FromArgs(args ...interface{}) ([]byte, error) {
	return fromArgs(args...)
}

func (ri rangeIndexerBySubnet) FromObject(obj interface{}) (bool, []byte, error) {
	r, ok := obj.(*api.Range)
	if !ok {
		panic("unexpected type passed to FromObject")
	}
	// Add the null character as a terminator
	return true, []byte(r.SubnetID + "\x00"), nil
}

type allocationIndexerBySubnet struct{}

func (ai allocationIndexerBySubnet) FromArgs(args ...interface{}) ([]byte, error) {
	return fromArgs(args...)
}

func (ai allocationIndexerBySubnet) FromObject(obj interface{}) (bool, []byte, error) {
	a, ok := obj.(*api.Allocation)
	if !ok {
		panic("unexpected type passed to FromObject")
	}
	return true, []byte(a.SubnetID + "\x00"), nil
}

// allocationIndexerByID indexes allocations by subnet id and address.
type allocationIndexerByID struct{}

func (ai allocationIndexerByID) FromArgs(args ...interface{}) ([]byte, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("must provide a subnet id and an address")
	}
	subnetID, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("subnet id must be a string: %#v", args[0])
	}
	addr, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("address must be a string: %#v", args[1])
	}
	return []byte(subnetID + "\x00" + addr + "\x00"), nil
}

func (ai allocationIndexerByID) FromObject(obj interface{}) (bool, []byte, error) {
	a, ok := obj.(*api.Allocation)
	if !ok {
		panic("unexpected type passed to FromObject")
	}
	return true, []byte(a.SubnetID + "\x00" + a.Address + "\x00"), nil
}
