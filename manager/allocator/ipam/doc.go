// Package ipam implements the address allocator that backs every address
// range: a bitmap over a contiguous block of IPv4 or IPv6 addresses, with a
// 2-bit lifecycle status per address.
//
// The bitmap logic is written once. The two address families only differ in
// how a display-form address is turned into a zero-based index into the
// bitmap and back, which is the job of an addressSpace.
//
// The allocator is not safe for concurrent use. Callers serialize access to
// each instance, usually with one lock per subnet.
//
// Two bulk paths exist and they do not fail the same way:
//
//   - AllocateBulk(count) is all-or-nothing. Either count addresses are
//     allocated, or ErrAddressPoolExhausted is returned and the bitmap is left
//     untouched.
//   - AllocateList(addresses) is best-effort. Addresses are allocated in
//     order and the first failure stops the loop; the successfully allocated
//     prefix is returned without an error and is not rolled back. Callers
//     compare the length of the result with the request to detect a partial
//     success.
package ipam
