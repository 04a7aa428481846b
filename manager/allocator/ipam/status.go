package ipam

const (
	statusBits    = 2
	statusMask    = 1<<statusBits - 1
	slotsPerWord  = 64 / statusBits
	statusCleared = 0
)

// statusArray packs one 2-bit status code per address. The low bit is the
// "activated" flag and the high bit the "deactivated" flag; at most one of
// them is ever set.
type statusArray []uint64

func newStatusArray(n int) statusArray {
	return make(statusArray, (n+slotsPerWord-1)/slotsPerWord)
}

func (s statusArray) get(i int) uint8 {
	shift := uint(i%slotsPerWord) * statusBits
	return uint8(s[i/slotsPerWord] >> shift & statusMask)
}

func (s statusArray) set(i int, code uint8) {
	shift := uint(i%slotsPerWord) * statusBits
	w := &s[i/slotsPerWord]
	*w &^= statusMask << shift
	*w |= uint64(code&statusMask) << shift
}
