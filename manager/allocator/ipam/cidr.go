package ipam

import (
	"encoding/binary"
	"math/big"
	"net"

	netutils "k8s.io/utils/net"

	"github.com/vfabric/privateip/api"
	"github.com/vfabric/privateip/manager/allocator/errors"
)

// BoundsFromCIDR returns the first and last usable host address of the subnet
// described by cidr.
//
// For IPv4 prefixes shorter than /31 the network and broadcast addresses are
// excluded. For IPv6 the subnet-router anycast address (the all-zero host
// part) is excluded unless the prefix is a /128. IPv6 subnets larger than
// MaxRangeSize yield a pool made of their first MaxRangeSize host addresses.
func BoundsFromCIDR(cidr string) (first, last string, version api.IPVersion, err error) {
	_, ipnet, err := netutils.ParseCIDRSloppy(cidr)
	if err != nil {
		return "", "", 0, errors.ErrInvalidRange("cannot parse subnet %q: %v", cidr, err)
	}
	ones, bits := ipnet.Mask.Size()

	if ip4 := ipnet.IP.To4(); ip4 != nil && bits == 8*net.IPv4len {
		base := binary.BigEndian.Uint32(ip4)
		size := uint64(1) << uint(bits-ones)
		lo, hi := uint64(base), uint64(base)+size-1
		if ones < 31 {
			lo++
			hi--
		}
		if hi-lo+1 > MaxRangeSize {
			return "", "", 0, errors.ErrInvalidRange("subnet %v holds more than %d addresses", cidr, MaxRangeSize)
		}
		return formatV4(uint32(lo)), formatV4(uint32(hi)), api.IPv4, nil
	}

	base := netutils.BigForIP(ipnet.IP)
	lo := new(big.Int).Set(base)
	if ones < bits {
		lo.Add(lo, big.NewInt(1))
	}
	hi := new(big.Int).Lsh(big.NewInt(1), uint(bits-ones))
	hi.Add(hi, base)
	hi.Sub(hi, big.NewInt(1))
	limit := new(big.Int).Add(lo, big.NewInt(MaxRangeSize-1))
	if hi.Cmp(limit) > 0 {
		hi = limit
	}
	return netutils.AddIPOffset(lo, 0).String(), netutils.AddIPOffset(hi, 0).String(), api.IPv6, nil
}
