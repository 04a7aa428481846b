// Package registry keeps one address range per subnet and is the entry point
// for every allocation.
//
// Each subnet has its own critical section: at most one operation, reading
// or mutating, runs against a subnet at any time. Waiting for it is bounded
// by Config.LockTimeout and by the deadline of the context; callers that
// give up get ErrSubnetBusy.
//
// Ranges live in memory and are loaded lazily from the store by replaying
// their persisted allocations. Every successful mutation is written to the
// store before the operation returns. When that write fails the in-memory
// range is dropped, so that the next operation on the subnet reloads the
// persisted state.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/docker/go-events"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	netutils "k8s.io/utils/net"

	"github.com/vfabric/privateip/api"
	"github.com/vfabric/privateip/log"
	"github.com/vfabric/privateip/manager/allocator/errors"
	"github.com/vfabric/privateip/manager/allocator/ipam"
	"github.com/vfabric/privateip/manager/allocator/iprange"
	"github.com/vfabric/privateip/manager/metrics"
	"github.com/vfabric/privateip/manager/state"
	"github.com/vfabric/privateip/watch"
)

// Config is the configuration of a Registry.
type Config struct {
	// LockTimeout is the longest an operation waits for the lock of a
	// subnet.
	LockTimeout time.Duration
	// RestoreParallelism is the number of ranges Restore loads at once.
	RestoreParallelism int
	// WatchBuffer is the channel buffer of each watcher of the event queue.
	WatchBuffer int
	// Clock stamps range creation and times operations. Lock waits always
	// use the wall clock.
	Clock clock.Clock
}

// DefaultConfig returns the default Registry configuration.
func DefaultConfig() *Config {
	return &Config{
		LockTimeout:        5 * time.Second,
		RestoreParallelism: 8,
		Clock:              clock.NewClock(),
	}
}

// RangeSpec describes a range to create. The bounds are either given
// explicitly with FirstIP and LastIP, or derived from CIDR.
type RangeSpec struct {
	// ID is generated when empty.
	ID       string
	VpcID    string
	SubnetID string
	// IPVersion is inferred from the bounds when zero.
	IPVersion api.IPVersion
	FirstIP   string
	LastIP    string
	CIDR      string
}

// RangeInfo is a range together with its usage.
type RangeInfo struct {
	Range *api.Range
	Used  int
	Total int
}

// Registry owns the address ranges of every subnet.
type Registry struct {
	store  state.Store
	config Config
	locks  *lockProvider
	queue  *watch.Queue

	mu     sync.RWMutex
	ranges map[string]*iprange.Range
}

// New returns a Registry persisting to st. A nil cfg selects
// DefaultConfig; zero fields of cfg take their default value.
func New(st state.Store, cfg *Config) *Registry {
	defaults := DefaultConfig()
	if cfg == nil {
		cfg = defaults
	}
	config := *cfg
	if config.LockTimeout <= 0 {
		config.LockTimeout = defaults.LockTimeout
	}
	if config.RestoreParallelism <= 0 {
		config.RestoreParallelism = defaults.RestoreParallelism
	}
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}

	return &Registry{
		store:  st,
		config: config,
		locks:  newLockProvider(),
		queue:  watch.NewQueue(config.WatchBuffer),
		ranges: make(map[string]*iprange.Range),
	}
}

// WatchQueue returns the queue on which the registry publishes an api.Event
// after each successful mutation.
func (r *Registry) WatchQueue() *watch.Queue {
	return r.queue
}

// Close stops every watcher. The store is not closed.
func (r *Registry) Close() error {
	return r.queue.Close()
}

// MatchSubnet returns a matcher for CallbackWatch selecting the events of
// one subnet.
func MatchSubnet(subnetID string) events.MatcherFunc {
	return func(e events.Event) bool {
		ev, ok := e.(api.Event)
		return ok && ev.Subnet() == subnetID
	}
}

// Restore loads every persisted range into memory.
func (r *Registry) Restore(ctx context.Context) (err error) {
	defer r.observe("restore")(&err)
	ctx = log.WithModule(ctx, "registry")

	recs, err := r.store.ListRanges(ctx)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to list ranges")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.RestoreParallelism)
	for _, rec := range recs {
		subnetID := rec.SubnetID
		g.Go(func() error {
			return r.withRange(gctx, subnetID, func(*iprange.Range) error { return nil })
		})
	}
	if err := g.Wait(); err != nil {
		log.G(ctx).WithError(err).Error("failed to restore ranges")
		return err
	}

	metrics.Restored(len(recs))
	log.G(ctx).WithField("ranges", len(recs)).Info("restored ranges")
	return nil
}

// CreateRange creates the range of a subnet.
func (r *Registry) CreateRange(ctx context.Context, spec RangeSpec) (_ *api.Range, err error) {
	defer r.observe("create_range")(&err)
	ctx = log.WithModule(ctx, "registry")

	rec, err := r.rangeFromSpec(spec)
	if err != nil {
		return nil, err
	}
	rng, err := iprange.New(rec)
	if err != nil {
		return nil, err
	}
	rec = rng.Record()

	unlock, err := r.locks.acquire(ctx, rec.SubnetID, r.config.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if r.cached(rec.SubnetID) != nil {
		return nil, errors.ErrRangeExists(rec.SubnetID)
	}
	if err := r.store.CreateRange(ctx, rec); err != nil {
		if err == state.ErrExist {
			return nil, errors.ErrRangeExists(rec.SubnetID)
		}
		return nil, pkgerrors.Wrapf(err, "failed to persist range of subnet %s", rec.SubnetID)
	}

	r.mu.Lock()
	r.ranges[rec.SubnetID] = rng
	r.mu.Unlock()

	r.queue.Publish(api.EventCreateRange{Range: rec.Copy()})
	log.G(ctx).WithFields(logrus.Fields{
		"subnet.id": rec.SubnetID,
		"range.id":  rec.ID,
		"first":     rec.FirstIP,
		"last":      rec.LastIP,
	}).Info("created range")
	return rec, nil
}

func (r *Registry) rangeFromSpec(spec RangeSpec) (*api.Range, error) {
	if spec.SubnetID == "" {
		return nil, errors.ErrInvalidRange("subnet id is empty")
	}
	rec := &api.Range{
		ID:        spec.ID,
		VpcID:     spec.VpcID,
		SubnetID:  spec.SubnetID,
		IPVersion: spec.IPVersion,
		FirstIP:   spec.FirstIP,
		LastIP:    spec.LastIP,
		CreatedAt: r.config.Clock.Now().UTC(),
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	if spec.CIDR != "" {
		if spec.FirstIP != "" || spec.LastIP != "" {
			return nil, errors.ErrInvalidRange("bounds and cidr are mutually exclusive")
		}
		first, last, version, err := ipam.BoundsFromCIDR(spec.CIDR)
		if err != nil {
			return nil, err
		}
		if spec.IPVersion != 0 && spec.IPVersion != version {
			return nil, errors.ErrInvalidRange("subnet %v is not %v", spec.CIDR, spec.IPVersion)
		}
		rec.FirstIP, rec.LastIP, rec.IPVersion = first, last, version
		return rec, nil
	}

	if spec.FirstIP == "" || spec.LastIP == "" {
		return nil, errors.ErrInvalidRange("either both bounds or a cidr are required")
	}
	if rec.IPVersion == 0 {
		rec.IPVersion = api.IPv4
		if netutils.IsIPv6String(spec.FirstIP) {
			rec.IPVersion = api.IPv6
		}
	}
	return rec, nil
}

// DeleteRange deletes the range of a subnet. A range that still holds
// allocations cannot be deleted.
func (r *Registry) DeleteRange(ctx context.Context, subnetID string) (err error) {
	defer r.observe("delete_range")(&err)
	ctx = log.WithModule(ctx, "registry")

	return r.withRange(ctx, subnetID, func(rng *iprange.Range) error {
		if rng.UsedCount() > 0 {
			return errors.ErrResourceInUse("range", subnetID)
		}
		if err := r.store.DeleteRange(ctx, subnetID); err != nil {
			r.discard(subnetID)
			if err == state.ErrNotExist {
				return errors.ErrRangeNotFound(subnetID)
			}
			return pkgerrors.Wrapf(err, "failed to delete range of subnet %s", subnetID)
		}
		r.discard(subnetID)

		rec := rng.Record()
		r.queue.Publish(api.EventDeleteRange{Range: rec})
		log.G(ctx).WithFields(logrus.Fields{
			"subnet.id": subnetID,
			"range.id":  rec.ID,
		}).Info("deleted range")
		return nil
	})
}

// GetRange returns the range of a subnet and its usage.
func (r *Registry) GetRange(ctx context.Context, subnetID string) (info *RangeInfo, err error) {
	defer r.observe("get_range")(&err)

	err = r.withRange(ctx, subnetID, func(rng *iprange.Range) error {
		info = rangeInfo(rng)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// ListRanges returns every range, ordered by subnet id.
func (r *Registry) ListRanges(ctx context.Context) ([]*RangeInfo, error) {
	recs, err := r.store.ListRanges(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list ranges")
	}
	infos := make([]*RangeInfo, 0, len(recs))
	for _, rec := range recs {
		info, err := r.GetRange(ctx, rec.SubnetID)
		if errors.IsErrRangeNotFound(err) {
			// deleted in the meantime
			continue
		}
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Range.SubnetID < infos[j].Range.SubnetID
	})
	return infos, nil
}

// Allocate allocates addr in the range of a subnet, or the lowest free
// address if addr is empty.
func (r *Registry) Allocate(ctx context.Context, subnetID, addr string) (alloc *api.Allocation, err error) {
	defer r.observe("allocate")(&err)
	ctx = log.WithModule(ctx, "registry")

	err = r.withRange(ctx, subnetID, func(rng *iprange.Range) error {
		a, err := rng.Allocate(addr)
		if err != nil {
			return err
		}
		if err := r.store.PutAllocations(ctx, []*api.Allocation{a}); err != nil {
			return r.persistFailed(ctx, subnetID, err)
		}
		r.publishAllocated(ctx, []*api.Allocation{a})
		alloc = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return alloc, nil
}

// AllocateBulk allocates count addresses in the range of a subnet. Either
// all of them are allocated or none is.
func (r *Registry) AllocateBulk(ctx context.Context, subnetID string, count int) (allocs []*api.Allocation, err error) {
	defer r.observe("allocate_bulk")(&err)
	ctx = log.WithModule(ctx, "registry")

	err = r.withRange(ctx, subnetID, func(rng *iprange.Range) error {
		as, err := rng.AllocateBulk(count)
		if err != nil {
			return err
		}
		if len(as) > 0 {
			if err := r.store.PutAllocations(ctx, as); err != nil {
				return r.persistFailed(ctx, subnetID, err)
			}
		}
		r.publishAllocated(ctx, as)
		allocs = as
		return nil
	})
	if err != nil {
		return nil, err
	}
	return allocs, nil
}

// AllocateList allocates the given addresses in order and stops at the first
// one that cannot be allocated. The allocated prefix is returned without an
// error and is kept; callers compare its length with the request.
func (r *Registry) AllocateList(ctx context.Context, subnetID string, addrs []string) (allocs []*api.Allocation, err error) {
	defer r.observe("allocate_list")(&err)
	ctx = log.WithModule(ctx, "registry")

	err = r.withRange(ctx, subnetID, func(rng *iprange.Range) error {
		as := rng.AllocateList(addrs)
		if len(as) > 0 {
			if err := r.store.PutAllocations(ctx, as); err != nil {
				return r.persistFailed(ctx, subnetID, err)
			}
		}
		if len(as) < len(addrs) {
			log.G(ctx).WithFields(logrus.Fields{
				"subnet.id": subnetID,
				"requested": len(addrs),
				"allocated": len(as),
			}).Debug("partial list allocation")
		}
		r.publishAllocated(ctx, as)
		allocs = as
		return nil
	})
	if err != nil {
		return nil, err
	}
	return allocs, nil
}

// AllocateRequests serves requests that may span several subnets. Either
// every request is served or none: on failure the addresses allocated so far
// are released again. If that release fails as well an ErrDoubleFault is
// returned.
func (r *Registry) AllocateRequests(ctx context.Context, reqs []*api.AllocationRequest) (allocs []*api.Allocation, rerr error) {
	defer r.observe("allocate_requests")(&rerr)
	ctx = log.WithModule(ctx, "registry")

	if len(reqs) == 0 {
		return []*api.Allocation{}, nil
	}

	subnets := map[string]struct{}{}
	for i, req := range reqs {
		if req == nil {
			return nil, errors.ErrInvalidFixedIPs("request %d is empty", i)
		}
		if req.SubnetID == "" {
			return nil, errors.ErrInvalidFixedIPs("request %d has no subnet id", i)
		}
		subnets[req.SubnetID] = struct{}{}
	}
	ids := make([]string, 0, len(subnets))
	for id := range subnets {
		ids = append(ids, id)
	}
	// a fixed order keeps concurrent callers from deadlocking
	sort.Strings(ids)

	unlock, err := r.locks.acquireAll(ctx, ids, r.config.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ranges := make(map[string]*iprange.Range, len(ids))
	for _, id := range ids {
		rng, err := r.load(ctx, id)
		if err != nil {
			return nil, err
		}
		ranges[id] = rng
	}

	allocs = make([]*api.Allocation, 0, len(reqs))
	defer func() {
		if rerr == nil {
			return
		}
		for i := len(allocs) - 1; i >= 0; i-- {
			a := allocs[i]
			if err := ranges[a.SubnetID].Release(a.Address); err != nil {
				log.G(ctx).WithError(err).WithField("subnet.id", a.SubnetID).Error("failed to roll back allocation")
				rerr = errors.NewErrDoubleFault(rerr, err)
				for _, id := range ids {
					r.discard(id)
				}
				break
			}
		}
		allocs = nil
	}()

	for _, req := range reqs {
		a, err := ranges[req.SubnetID].Allocate(req.Address)
		if err != nil {
			return allocs, err
		}
		allocs = append(allocs, a)
	}

	if err := r.store.PutAllocations(ctx, allocs); err != nil {
		for _, id := range ids {
			r.discard(id)
		}
		log.G(ctx).WithError(err).Error("failed to persist allocations, dropping in-memory ranges")
		return allocs, pkgerrors.Wrap(err, "failed to persist allocations")
	}

	r.publishAllocated(ctx, allocs)
	return allocs, nil
}

// Release frees an address. Releasing a free address succeeds.
func (r *Registry) Release(ctx context.Context, subnetID, addr string) (err error) {
	defer r.observe("release")(&err)
	ctx = log.WithModule(ctx, "registry")

	return r.withRange(ctx, subnetID, func(rng *iprange.Range) error {
		return r.release(ctx, rng, subnetID, []string{addr})
	})
}

// ReleaseBulk releases addresses in order and stops at the first error. The
// addresses before it stay released.
func (r *Registry) ReleaseBulk(ctx context.Context, subnetID string, addrs []string) (err error) {
	defer r.observe("release_bulk")(&err)
	ctx = log.WithModule(ctx, "registry")

	return r.withRange(ctx, subnetID, func(rng *iprange.Range) error {
		return r.release(ctx, rng, subnetID, addrs)
	})
}

func (r *Registry) release(ctx context.Context, rng *iprange.Range, subnetID string, addrs []string) error {
	var (
		canonical = make([]string, 0, len(addrs))
		released  []string
		seen      = make(map[string]struct{}, len(addrs))
		lookupErr error
	)
	for _, addr := range addrs {
		cur, err := rng.GetAddress(addr)
		if err != nil {
			lookupErr = err
			break
		}
		canonical = append(canonical, cur.Address)
		if _, ok := seen[cur.Address]; ok {
			continue
		}
		seen[cur.Address] = struct{}{}
		if rng.IsAllocated(cur.Address) {
			released = append(released, cur.Address)
		}
	}

	if _, err := rng.ReleaseBulk(canonical); err != nil {
		r.discard(subnetID)
		return err
	}
	if len(released) > 0 {
		if err := r.store.DeleteAllocations(ctx, subnetID, released); err != nil {
			return r.persistFailed(ctx, subnetID, err)
		}
	}
	for _, addr := range released {
		r.queue.Publish(api.EventRelease{SubnetID: subnetID, Address: addr})
	}
	if len(released) > 0 {
		log.G(ctx).WithFields(logrus.Fields{
			"subnet.id": subnetID,
			"count":     len(released),
		}).Debug("released addresses")
	}
	return lookupErr
}

// ModifyState sets the lifecycle state of an allocated address.
func (r *Registry) ModifyState(ctx context.Context, subnetID, addr string, st api.State) (alloc *api.Allocation, err error) {
	defer r.observe("modify_state")(&err)
	ctx = log.WithModule(ctx, "registry")

	err = r.withRange(ctx, subnetID, func(rng *iprange.Range) error {
		a, err := rng.ModifyState(addr, st)
		if err != nil {
			return err
		}
		if err := r.store.PutAllocations(ctx, []*api.Allocation{a}); err != nil {
			return r.persistFailed(ctx, subnetID, err)
		}
		r.queue.Publish(api.EventUpdateState{Allocation: a.Copy()})
		alloc = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return alloc, nil
}

// GetAddress returns the allocation record of an address. An address of the
// range that is not allocated reads as free.
func (r *Registry) GetAddress(ctx context.Context, subnetID, addr string) (alloc *api.Allocation, err error) {
	defer r.observe("get_address")(&err)

	err = r.withRange(ctx, subnetID, func(rng *iprange.Range) error {
		alloc, err = rng.GetAddress(addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return alloc, nil
}

// ListAllocations returns the allocations of a subnet in ascending address
// order.
func (r *Registry) ListAllocations(ctx context.Context, subnetID string) (allocs []*api.Allocation, err error) {
	defer r.observe("list_allocations")(&err)

	err = r.withRange(ctx, subnetID, func(rng *iprange.Range) error {
		allocs = rng.AllocatedRecords()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return allocs, nil
}

// withRange runs fn with the range of a subnet while holding its lock.
func (r *Registry) withRange(ctx context.Context, subnetID string, fn func(*iprange.Range) error) error {
	if subnetID == "" {
		return errors.ErrRangeNotFound(subnetID)
	}
	unlock, err := r.locks.acquire(ctx, subnetID, r.config.LockTimeout)
	if err != nil {
		return err
	}
	defer unlock()

	rng, err := r.load(ctx, subnetID)
	if err != nil {
		return err
	}
	return fn(rng)
}

// load returns the range of a subnet, rebuilding it from the store when it
// is not in memory. The subnet lock must be held.
func (r *Registry) load(ctx context.Context, subnetID string) (*iprange.Range, error) {
	if rng := r.cached(subnetID); rng != nil {
		return rng, nil
	}

	rec, err := r.store.GetRange(ctx, subnetID)
	if err == state.ErrNotExist {
		return nil, errors.ErrRangeNotFound(subnetID)
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to load range of subnet %s", subnetID)
	}
	allocs, err := r.store.ListAllocations(ctx, subnetID)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to load allocations of subnet %s", subnetID)
	}

	rng, err := iprange.New(rec)
	if err != nil {
		return nil, errors.ErrBadState("stored range of subnet %v is invalid: %v", subnetID, err)
	}
	if err := rng.Restore(allocs); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.ranges[subnetID] = rng
	r.mu.Unlock()

	log.G(ctx).WithFields(logrus.Fields{
		"subnet.id":   subnetID,
		"allocations": len(allocs),
	}).Debug("loaded range")
	return rng, nil
}

func (r *Registry) cached(subnetID string) *iprange.Range {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ranges[subnetID]
}

func (r *Registry) discard(subnetID string) {
	r.mu.Lock()
	delete(r.ranges, subnetID)
	r.mu.Unlock()
}

// persistFailed drops the in-memory range of a subnet after its mutation
// could not be written to the store.
func (r *Registry) persistFailed(ctx context.Context, subnetID string, err error) error {
	r.discard(subnetID)
	log.G(ctx).WithError(err).WithField("subnet.id", subnetID).Error("failed to persist allocations, dropping in-memory range")
	return pkgerrors.Wrapf(err, "failed to persist allocations of subnet %s", subnetID)
}

func (r *Registry) publishAllocated(ctx context.Context, allocs []*api.Allocation) {
	for _, a := range allocs {
		r.queue.Publish(api.EventAllocate{Allocation: a.Copy()})
	}
	if len(allocs) > 0 {
		log.G(ctx).WithFields(logrus.Fields{
			"subnet.id": allocs[0].SubnetID,
			"count":     len(allocs),
		}).Debug("allocated addresses")
	}
}

func (r *Registry) observe(op string) func(*error) {
	start := r.config.Clock.Now()
	return func(err *error) {
		metrics.Operation(op, r.config.Clock.Since(start), *err)
	}
}

func rangeInfo(rng *iprange.Range) *RangeInfo {
	return &RangeInfo{
		Range: rng.Record(),
		Used:  rng.UsedCount(),
		Total: rng.TotalCount(),
	}
}
