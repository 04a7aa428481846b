package boltstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vfabric/privateip/api"
	"github.com/vfabric/privateip/manager/state"
	"github.com/vfabric/privateip/manager/state/storetest"
)

func TestBoltStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) state.Store {
		s, err := Open(filepath.Join(t.TempDir(), DefaultDBName))
		require.NoError(t, err)
		return s
	})
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", DefaultDBName)

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateRange(ctx, &api.Range{
		ID:        "range-1",
		SubnetID:  "subnet-1",
		IPVersion: api.IPv6,
		FirstIP:   "fd00::1",
		LastIP:    "fd00::ff",
	}))
	require.NoError(t, s.PutAllocations(ctx, []*api.Allocation{
		{IPVersion: api.IPv6, SubnetID: "subnet-1", RangeID: "range-1", Address: "fd00::10", State: api.StateDeactivated},
	}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	r, err := s.GetRange(ctx, "subnet-1")
	require.NoError(t, err)
	assert.Equal(t, api.IPv6, r.IPVersion)
	assert.Equal(t, "fd00::ff", r.LastIP)

	allocs, err := s.ListAllocations(ctx, "subnet-1")
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, "fd00::10", allocs[0].Address)
	assert.Equal(t, api.StateDeactivated, allocs[0].State)
}
