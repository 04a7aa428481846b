// Package boltstore implements state.Store on a local bbolt database.
package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/vfabric/privateip/api"
	"github.com/vfabric/privateip/log"
	"github.com/vfabric/privateip/manager/state"
)

// Layout:
//
//	bucket(v1.ranges.<subnet id>) ->
//			range (range json)
//			bucket(allocations) ->
//				<address> (allocation json)
var (
	bucketKeyStorageVersion = []byte("v1")
	bucketKeyRanges         = []byte("ranges")
	bucketKeyAllocations    = []byte("allocations")
	bucketKeyRange          = []byte("range")
)

// DefaultDBName is the file created in a state directory.
const DefaultDBName = "ipam.db"

type bucketKeyPath [][]byte

func (bk bucketKeyPath) String() string {
	return string(bytes.Join([][]byte(bk), []byte("/")))
}

// Store is a state.Store backed by bbolt.
type Store struct {
	db *bolt.DB
}

var _ state.Store = (*Store)(nil)

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.Wrap(err, "failed to create state directory")
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := createBucketIfNotExists(tx, bucketKeyStorageVersion, bucketKeyRanges)
		return err
	}); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize database")
	}
	return &Store{db: db}, nil
}

// ListRanges returns every range in the database.
func (s *Store) ListRanges(ctx context.Context) ([]*api.Range, error) {
	ranges := []*api.Range{}
	err := s.db.View(func(tx *bolt.Tx) error {
		bkt := getBucket(ctx, tx, bucketKeyStorageVersion, bucketKeyRanges)
		if bkt == nil {
			return nil
		}
		return bkt.ForEach(func(k, v []byte) error {
			rbkt := bkt.Bucket(k)
			if rbkt == nil {
				return nil
			}
			var r api.Range
			if err := json.Unmarshal(rbkt.Get(bucketKeyRange), &r); err != nil {
				return errors.Wrapf(err, "failed to decode range of subnet %s", k)
			}
			ranges = append(ranges, &r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ranges, nil
}

// GetRange returns the range of a subnet.
func (s *Store) GetRange(ctx context.Context, subnetID string) (*api.Range, error) {
	var r api.Range
	err := s.db.View(func(tx *bolt.Tx) error {
		return withRangeBucket(ctx, tx, subnetID, func(bkt *bolt.Bucket) error {
			p := bkt.Get(bucketKeyRange)
			if p == nil {
				return state.ErrNotExist
			}
			return errors.Wrapf(json.Unmarshal(p, &r), "failed to decode range of subnet %s", subnetID)
		})
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRange stores a new range.
func (s *Store) CreateRange(ctx context.Context, r *api.Range) error {
	p, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "failed to encode range")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if getRangeBucket(ctx, tx, r.SubnetID) != nil {
			return state.ErrExist
		}
		bkt, err := createBucketIfNotExists(tx, bucketKeyStorageVersion, bucketKeyRanges, []byte(r.SubnetID))
		if err != nil {
			return err
		}
		if _, err := bkt.CreateBucketIfNotExists(bucketKeyAllocations); err != nil {
			return err
		}
		return bkt.Put(bucketKeyRange, p)
	})
}

// DeleteRange removes a range and its allocations.
func (s *Store) DeleteRange(ctx context.Context, subnetID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := getBucket(ctx, tx, bucketKeyStorageVersion, bucketKeyRanges)
		if bkt == nil || bkt.Bucket([]byte(subnetID)) == nil {
			return state.ErrNotExist
		}
		return bkt.DeleteBucket([]byte(subnetID))
	})
}

// ListAllocations returns the allocations of a subnet.
func (s *Store) ListAllocations(ctx context.Context, subnetID string) ([]*api.Allocation, error) {
	allocs := []*api.Allocation{}
	err := s.db.View(func(tx *bolt.Tx) error {
		bkt := getBucket(ctx, tx, bucketKeyStorageVersion, bucketKeyRanges, []byte(subnetID), bucketKeyAllocations)
		if bkt == nil {
			return nil
		}
		return bkt.ForEach(func(k, v []byte) error {
			var a api.Allocation
			if err := json.Unmarshal(v, &a); err != nil {
				return errors.Wrapf(err, "failed to decode allocation %s of subnet %s", k, subnetID)
			}
			allocs = append(allocs, &a)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return allocs, nil
}

// PutAllocations creates or replaces allocations in a single transaction.
// Nothing is written if one of the subnets has no range.
func (s *Store) PutAllocations(ctx context.Context, allocs []*api.Allocation) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, a := range allocs {
			p, err := json.Marshal(a)
			if err != nil {
				return errors.Wrapf(err, "failed to encode allocation %s", a.Address)
			}
			if err := withRangeBucket(ctx, tx, a.SubnetID, func(rbkt *bolt.Bucket) error {
				bkt, err := rbkt.CreateBucketIfNotExists(bucketKeyAllocations)
				if err != nil {
					return err
				}
				return bkt.Put([]byte(a.Address), p)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteAllocations removes allocations of a subnet in a single transaction.
func (s *Store) DeleteAllocations(ctx context.Context, subnetID string, addrs []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := getBucket(ctx, tx, bucketKeyStorageVersion, bucketKeyRanges, []byte(subnetID), bucketKeyAllocations)
		if bkt == nil {
			return nil
		}
		for _, addr := range addrs {
			if err := bkt.Delete([]byte(addr)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func createBucketIfNotExists(tx *bolt.Tx, keys ...[]byte) (*bolt.Bucket, error) {
	bkt, err := tx.CreateBucketIfNotExists(keys[0])
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create bucket %v", bucketKeyPath(keys))
	}

	for _, key := range keys[1:] {
		bkt, err = bkt.CreateBucketIfNotExists(key)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create bucket %v", bucketKeyPath(keys))
		}
	}

	return bkt, nil
}

func withRangeBucket(ctx context.Context, tx *bolt.Tx, subnetID string, fn func(bkt *bolt.Bucket) error) error {
	bkt := getRangeBucket(ctx, tx, subnetID)
	if bkt == nil {
		return state.ErrNotExist
	}

	return fn(bkt)
}

func getRangeBucket(ctx context.Context, tx *bolt.Tx, subnetID string) *bolt.Bucket {
	return getBucket(ctx, tx, bucketKeyStorageVersion, bucketKeyRanges, []byte(subnetID))
}

func getBucket(ctx context.Context, tx *bolt.Tx, keys ...[]byte) *bolt.Bucket {
	bkt := tx.Bucket(keys[0])

	for _, key := range keys[1:] {
		if bkt == nil {
			break
		}
		bkt = bkt.Bucket(key)
	}

	if bkt == nil {
		log.G(ctx).Debugf("bucket %v does not exist", bucketKeyPath(keys))
	}
	return bkt
}
