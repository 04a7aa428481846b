// Package redisstore implements state.Store on Redis, for deployments where
// several processes share the persisted allocations.
//
// Keys:
//
//	<prefix>:ranges            set of subnet ids
//	<prefix>:range:<subnet>    range json
//	<prefix>:allocs:<subnet>   hash of address -> allocation json
//
// Multi-key writes rely on scripts and WATCH over keys that do not share a
// hash slot, so a store needs a single Redis primary.
package redisstore

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/vfabric/privateip/api"
	"github.com/vfabric/privateip/manager/state"
)

// DefaultPrefix is the key prefix used when none is given.
const DefaultPrefix = "ipam"

// Store is a state.Store backed by Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
}

var _ state.Store = (*Store)(nil)

// New returns a Store using client. Keys are namespaced with prefix.
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Open connects to the Redis server at addr.
func Open(ctx context.Context, addr, prefix string) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "failed to reach redis at %s", addr)
	}
	return New(client, prefix), nil
}

func (s *Store) rangesKey() string { return s.prefix + ":ranges" }

func (s *Store) rangeKey(subnetID string) string { return s.prefix + ":range:" + subnetID }

func (s *Store) allocsKey(subnetID string) string { return s.prefix + ":allocs:" + subnetID }

// ListRanges returns every range.
func (s *Store) ListRanges(ctx context.Context) ([]*api.Range, error) {
	ids, err := s.client.SMembers(ctx, s.rangesKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list subnets")
	}
	ranges := []*api.Range{}
	if len(ids) == 0 {
		return ranges, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.rangeKey(id))
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load ranges")
	}
	for i, v := range vals {
		p, ok := v.(string)
		if !ok {
			// deleted between SMEMBERS and MGET, or left indexed by a
			// create that failed
			continue
		}
		var r api.Range
		if err := json.Unmarshal([]byte(p), &r); err != nil {
			return nil, errors.Wrapf(err, "failed to decode range of subnet %s", ids[i])
		}
		ranges = append(ranges, &r)
	}
	return ranges, nil
}

// GetRange returns the range of a subnet.
func (s *Store) GetRange(ctx context.Context, subnetID string) (*api.Range, error) {
	p, err := s.client.Get(ctx, s.rangeKey(subnetID)).Bytes()
	if err == redis.Nil {
		return nil, state.ErrNotExist
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load range of subnet %s", subnetID)
	}
	var r api.Range
	if err := json.Unmarshal(p, &r); err != nil {
		return nil, errors.Wrapf(err, "failed to decode range of subnet %s", subnetID)
	}
	return &r, nil
}

// createRangeScript indexes the subnet and stores its range in one step. The
// index is written first: a script that fails half way keeps what it wrote,
// and an indexed subnet without a range is ignored by ListRanges.
var createRangeScript = redis.NewScript(`
redis.call("SADD", KEYS[2], ARGV[2])
return redis.call("SETNX", KEYS[1], ARGV[1])
`)

// CreateRange stores a new range.
func (s *Store) CreateRange(ctx context.Context, r *api.Range) error {
	p, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "failed to encode range")
	}
	created, err := createRangeScript.Run(ctx, s.client, []string{s.rangeKey(r.SubnetID), s.rangesKey()}, p, r.SubnetID).Int()
	if err != nil {
		return errors.Wrapf(err, "failed to store range of subnet %s", r.SubnetID)
	}
	if created == 0 {
		return state.ErrExist
	}
	return nil
}

// DeleteRange removes a range and its allocations.
func (s *Store) DeleteRange(ctx context.Context, subnetID string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.rangeKey(subnetID))
		pipe.Del(ctx, s.allocsKey(subnetID))
		pipe.SRem(ctx, s.rangesKey(), subnetID)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to delete range of subnet %s", subnetID)
	}
	if del.Val() == 0 {
		return state.ErrNotExist
	}
	return nil
}

// ListAllocations returns the allocations of a subnet.
func (s *Store) ListAllocations(ctx context.Context, subnetID string) ([]*api.Allocation, error) {
	vals, err := s.client.HGetAll(ctx, s.allocsKey(subnetID)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load allocations of subnet %s", subnetID)
	}
	allocs := make([]*api.Allocation, 0, len(vals))
	for addr, p := range vals {
		var a api.Allocation
		if err := json.Unmarshal([]byte(p), &a); err != nil {
			return nil, errors.Wrapf(err, "failed to decode allocation %s of subnet %s", addr, subnetID)
		}
		allocs = append(allocs, &a)
	}
	return allocs, nil
}

// PutAllocations creates or replaces allocations in a MULTI/EXEC block. The
// ranges of the subnets involved are watched, so a range deleted in the
// meantime fails the write.
func (s *Store) PutAllocations(ctx context.Context, allocs []*api.Allocation) error {
	if len(allocs) == 0 {
		return nil
	}

	var keys []string
	seen := map[string]struct{}{}
	for _, a := range allocs {
		if _, ok := seen[a.SubnetID]; ok {
			continue
		}
		seen[a.SubnetID] = struct{}{}
		keys = append(keys, s.rangeKey(a.SubnetID))
	}

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, keys...).Result()
		if err != nil {
			return err
		}
		if int(n) != len(keys) {
			return state.ErrNotExist
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, a := range allocs {
				p, err := json.Marshal(a)
				if err != nil {
					return errors.Wrapf(err, "failed to encode allocation %s", a.Address)
				}
				pipe.HSet(ctx, s.allocsKey(a.SubnetID), a.Address, p)
			}
			return nil
		})
		return err
	}, keys...)
	if err == state.ErrNotExist {
		return err
	}
	return errors.Wrap(err, "failed to store allocations")
}

// DeleteAllocations removes allocations of a subnet.
func (s *Store) DeleteAllocations(ctx context.Context, subnetID string, addrs []string) error {
	if len(addrs) == 0 {
		return nil
	}
	err := s.client.HDel(ctx, s.allocsKey(subnetID), addrs...).Err()
	return errors.Wrapf(err, "failed to delete allocations of subnet %s", subnetID)
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}
