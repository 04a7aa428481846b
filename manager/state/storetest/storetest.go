// Package storetest holds a conformance suite run against every state.Store
// implementation.
package storetest

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vfabric/privateip/api"
	"github.com/vfabric/privateip/manager/state"
)

// NewStoreFunc returns an empty store. The suite closes it.
type NewStoreFunc func(t *testing.T) state.Store

func testRange(subnetID string) *api.Range {
	return &api.Range{
		ID:        "range-" + subnetID,
		VpcID:     "vpc-1",
		SubnetID:  subnetID,
		IPVersion: api.IPv4,
		FirstIP:   "10.0.0.1",
		LastIP:    "10.0.0.254",
		CreatedAt: time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func testAllocation(subnetID, addr string, st api.State) *api.Allocation {
	return &api.Allocation{
		IPVersion: api.IPv4,
		SubnetID:  subnetID,
		RangeID:   "range-" + subnetID,
		Address:   addr,
		State:     st,
	}
}

func sortAllocations(allocs []*api.Allocation) {
	sort.Slice(allocs, func(i, j int) bool {
		if allocs[i].SubnetID != allocs[j].SubnetID {
			return allocs[i].SubnetID < allocs[j].SubnetID
		}
		return allocs[i].Address < allocs[j].Address
	})
}

// Run runs the suite.
func Run(t *testing.T, newStore NewStoreFunc) {
	t.Run("Ranges", func(t *testing.T) { testRanges(t, newStore) })
	t.Run("Allocations", func(t *testing.T) { testAllocations(t, newStore) })
	t.Run("DeleteRangeDropsAllocations", func(t *testing.T) { testDeleteRangeDropsAllocations(t, newStore) })
	t.Run("PutAllocationsWithoutRange", func(t *testing.T) { testPutAllocationsWithoutRange(t, newStore) })
}

func testRanges(t *testing.T, newStore NewStoreFunc) {
	ctx := context.Background()
	s := newStore(t)
	defer s.Close()

	ranges, err := s.ListRanges(ctx)
	require.NoError(t, err)
	assert.Empty(t, ranges)

	_, err = s.GetRange(ctx, "subnet-1")
	assert.Equal(t, state.ErrNotExist, err)

	r1 := testRange("subnet-1")
	require.NoError(t, s.CreateRange(ctx, r1))
	require.NoError(t, s.CreateRange(ctx, testRange("subnet-2")))
	assert.Equal(t, state.ErrExist, s.CreateRange(ctx, testRange("subnet-1")))

	got, err := s.GetRange(ctx, "subnet-1")
	require.NoError(t, err)
	assert.Equal(t, r1.ID, got.ID)
	assert.Equal(t, r1.FirstIP, got.FirstIP)
	assert.Equal(t, r1.LastIP, got.LastIP)
	assert.Equal(t, r1.IPVersion, got.IPVersion)
	assert.True(t, r1.CreatedAt.Equal(got.CreatedAt))

	// the returned range is a copy
	got.FirstIP = "10.9.9.9"
	got, err = s.GetRange(ctx, "subnet-1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", got.FirstIP)

	ranges, err = s.ListRanges(ctx)
	require.NoError(t, err)
	require.Len(t, ranges, 2)
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].SubnetID < ranges[j].SubnetID })
	assert.Equal(t, "subnet-1", ranges[0].SubnetID)
	assert.Equal(t, "subnet-2", ranges[1].SubnetID)

	require.NoError(t, s.DeleteRange(ctx, "subnet-2"))
	assert.Equal(t, state.ErrNotExist, s.DeleteRange(ctx, "subnet-2"))
	_, err = s.GetRange(ctx, "subnet-2")
	assert.Equal(t, state.ErrNotExist, err)
}

func testAllocations(t *testing.T, newStore NewStoreFunc) {
	ctx := context.Background()
	s := newStore(t)
	defer s.Close()

	require.NoError(t, s.CreateRange(ctx, testRange("subnet-1")))
	require.NoError(t, s.CreateRange(ctx, testRange("subnet-2")))

	allocs, err := s.ListAllocations(ctx, "subnet-1")
	require.NoError(t, err)
	assert.Empty(t, allocs)

	require.NoError(t, s.PutAllocations(ctx, []*api.Allocation{
		testAllocation("subnet-1", "10.0.0.1", api.StateActivated),
		testAllocation("subnet-1", "10.0.0.2", api.StateActivated),
		testAllocation("subnet-2", "10.0.0.1", api.StateActivated),
	}))

	// replace an existing allocation
	require.NoError(t, s.PutAllocations(ctx, []*api.Allocation{
		testAllocation("subnet-1", "10.0.0.2", api.StateDeactivated),
	}))

	allocs, err = s.ListAllocations(ctx, "subnet-1")
	require.NoError(t, err)
	sortAllocations(allocs)
	assert.Equal(t, []*api.Allocation{
		testAllocation("subnet-1", "10.0.0.1", api.StateActivated),
		testAllocation("subnet-1", "10.0.0.2", api.StateDeactivated),
	}, allocs)

	require.NoError(t, s.DeleteAllocations(ctx, "subnet-1", []string{"10.0.0.1", "10.0.0.77"}))
	allocs, err = s.ListAllocations(ctx, "subnet-1")
	require.NoError(t, err)
	assert.Equal(t, []*api.Allocation{
		testAllocation("subnet-1", "10.0.0.2", api.StateDeactivated),
	}, allocs)

	allocs, err = s.ListAllocations(ctx, "subnet-2")
	require.NoError(t, err)
	assert.Equal(t, []*api.Allocation{
		testAllocation("subnet-2", "10.0.0.1", api.StateActivated),
	}, allocs)
}

func testDeleteRangeDropsAllocations(t *testing.T, newStore NewStoreFunc) {
	ctx := context.Background()
	s := newStore(t)
	defer s.Close()

	require.NoError(t, s.CreateRange(ctx, testRange("subnet-1")))
	require.NoError(t, s.PutAllocations(ctx, []*api.Allocation{
		testAllocation("subnet-1", "10.0.0.1", api.StateActivated),
		testAllocation("subnet-1", "10.0.0.3", api.StateActivated),
	}))
	require.NoError(t, s.DeleteRange(ctx, "subnet-1"))

	allocs, err := s.ListAllocations(ctx, "subnet-1")
	require.NoError(t, err)
	assert.Empty(t, allocs)

	// the subnet can get a new range
	require.NoError(t, s.CreateRange(ctx, testRange("subnet-1")))
}

func testPutAllocationsWithoutRange(t *testing.T, newStore NewStoreFunc) {
	ctx := context.Background()
	s := newStore(t)
	defer s.Close()

	require.NoError(t, s.CreateRange(ctx, testRange("subnet-1")))
	err := s.PutAllocations(ctx, []*api.Allocation{
		testAllocation("subnet-1", "10.0.0.1", api.StateActivated),
		testAllocation("subnet-9", "10.0.0.1", api.StateActivated),
	})
	assert.Equal(t, state.ErrNotExist, err)

	// nothing was written
	allocs, err := s.ListAllocations(ctx, "subnet-1")
	require.NoError(t, err)
	assert.Empty(t, allocs)
	allocs, err = s.ListAllocations(ctx, "subnet-9")
	require.NoError(t, err)
	assert.Empty(t, allocs)

	ranges, err := s.ListRanges(ctx)
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, "subnet-1", ranges[0].SubnetID)
	_, err = s.GetRange(ctx, "subnet-9")
	assert.Equal(t, state.ErrNotExist, err)
}
