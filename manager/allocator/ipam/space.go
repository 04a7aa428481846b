package ipam

import (
	"encoding/binary"
	"math/big"
	"net"

	netutils "k8s.io/utils/net"

	"github.com/vfabric/privateip/api"
	"github.com/vfabric/privateip/manager/allocator/errors"
)

// MaxRangeSize is the largest number of addresses a single range may hold.
// The bitmap and status array for a range of this size take 6MiB.
const MaxRangeSize = 1 << 24

// addressSpace converts between the display form of an address and its
// zero-based offset from the first address of a range.
type addressSpace interface {
	version() api.IPVersion
	size() int
	// index parses addr and returns its offset. It fails with
	// ErrInvalidAddress if addr is not an address of this family and with
	// ErrAddressOutOfRange if it is outside of the bounds.
	index(addr string) (int, error)
	// address returns the display form of the address at offset i. i must be
	// in [0, size()).
	address(i int) string
	first() string
	last() string
}

func newAddressSpace(version api.IPVersion, first, last string) (addressSpace, error) {
	switch version {
	case api.IPv4:
		return newV4Space(first, last)
	case api.IPv6:
		return newV6Space(first, last)
	}
	return nil, errors.ErrInvalidRange("unsupported ip version %d", int(version))
}

func parseV4(addr string) (uint32, bool) {
	ip := netutils.ParseIPSloppy(addr)
	if ip == nil {
		return 0, false
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, false
	}
	return binary.BigEndian.Uint32(ip4), true
}

func formatV4(v uint32) string {
	ip := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(ip, v)
	return ip.String()
}

type v4Space struct {
	lo, hi uint32
}

func newV4Space(first, last string) (*v4Space, error) {
	lo, ok := parseV4(first)
	if !ok {
		return nil, errors.ErrInvalidAddress(first)
	}
	hi, ok := parseV4(last)
	if !ok {
		return nil, errors.ErrInvalidAddress(last)
	}
	if lo > hi {
		return nil, errors.ErrInvalidRange("first address %v is after last address %v", first, last)
	}
	if n := uint64(hi) - uint64(lo) + 1; n > MaxRangeSize {
		return nil, errors.ErrInvalidRange("range [%v, %v] holds %d addresses, the limit is %d", first, last, n, MaxRangeSize)
	}
	return &v4Space{lo: lo, hi: hi}, nil
}

func (s *v4Space) version() api.IPVersion { return api.IPv4 }

func (s *v4Space) size() int { return int(s.hi-s.lo) + 1 }

func (s *v4Space) index(addr string) (int, error) {
	v, ok := parseV4(addr)
	if !ok {
		return 0, errors.ErrInvalidAddress(addr)
	}
	if v < s.lo || v > s.hi {
		return 0, errors.ErrAddressOutOfRange(addr, s.first(), s.last())
	}
	return int(v - s.lo), nil
}

func (s *v4Space) address(i int) string { return formatV4(s.lo + uint32(i)) }

func (s *v4Space) first() string { return formatV4(s.lo) }

func (s *v4Space) last() string { return formatV4(s.hi) }

func parseV6(addr string) (*big.Int, bool) {
	ip := netutils.ParseIPSloppy(addr)
	if ip == nil || ip.To4() != nil {
		return nil, false
	}
	return netutils.BigForIP(ip), true
}

type v6Space struct {
	lo, hi *big.Int
	n      int
}

func newV6Space(first, last string) (*v6Space, error) {
	lo, ok := parseV6(first)
	if !ok {
		return nil, errors.ErrInvalidAddress(first)
	}
	hi, ok := parseV6(last)
	if !ok {
		return nil, errors.ErrInvalidAddress(last)
	}
	if lo.Cmp(hi) > 0 {
		return nil, errors.ErrInvalidRange("first address %v is after last address %v", first, last)
	}
	n := new(big.Int).Sub(hi, lo)
	n.Add(n, big.NewInt(1))
	if n.Cmp(big.NewInt(MaxRangeSize)) > 0 {
		return nil, errors.ErrInvalidRange("range [%v, %v] holds %v addresses, the limit is %d", first, last, n, MaxRangeSize)
	}
	return &v6Space{lo: lo, hi: hi, n: int(n.Int64())}, nil
}

func (s *v6Space) version() api.IPVersion { return api.IPv6 }

func (s *v6Space) size() int { return s.n }

func (s *v6Space) index(addr string) (int, error) {
	v, ok := parseV6(addr)
	if !ok {
		return 0, errors.ErrInvalidAddress(addr)
	}
	if v.Cmp(s.lo) < 0 || v.Cmp(s.hi) > 0 {
		return 0, errors.ErrAddressOutOfRange(addr, s.first(), s.last())
	}
	return int(v.Sub(v, s.lo).Int64()), nil
}

func (s *v6Space) address(i int) string { return netutils.AddIPOffset(s.lo, i).String() }

func (s *v6Space) first() string { return netutils.AddIPOffset(s.lo, 0).String() }

func (s *v6Space) last() string { return netutils.AddIPOffset(s.hi, 0).String() }
