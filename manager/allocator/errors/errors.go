package errors

import (
	stderrors "errors"
	"fmt"
)

// is reports whether any error in the chain of e has the type of target.
func is[T error](e error) bool {
	var target T
	return stderrors.As(e, &target)
}

type errAddressOutOfRange struct {
	address, first, last string
}

// ErrAddressOutOfRange creates an error indicating that an address falls
// outside of the inclusive bounds [first, last] of a range.
func ErrAddressOutOfRange(address, first, last string) error {
	return errAddressOutOfRange{address: address, first: first, last: last}
}

// Error returns the error message
func (e errAddressOutOfRange) Error() string {
	return fmt.Sprintf("address %v is out of range [%v, %v]", e.address, e.first, e.last)
}

// IsErrAddressOutOfRange returns true if the error is a result of an address
// outside of a range
func IsErrAddressOutOfRange(e error) bool {
	return is[errAddressOutOfRange](e)
}

type errAddressConflict struct {
	address string
}

// ErrAddressConflict creates an error indicating that a specifically requested
// address is already allocated.
func ErrAddressConflict(address string) error {
	return errAddressConflict{address: address}
}

// Error returns the error message
func (e errAddressConflict) Error() string {
	return fmt.Sprintf("address %v is already allocated", e.address)
}

// IsErrAddressConflict returns true if the error is a result of requesting an
// address that is in use
func IsErrAddressConflict(e error) bool {
	return is[errAddressConflict](e)
}

type errAddressPoolExhausted struct {
	requested, available int
}

// ErrAddressPoolExhausted creates an error indicating that a range cannot
// satisfy a request for the given number of free addresses.
func ErrAddressPoolExhausted(requested, available int) error {
	return errAddressPoolExhausted{requested: requested, available: available}
}

// Error returns the error message
func (e errAddressPoolExhausted) Error() string {
	return fmt.Sprintf("address pool is exhausted: requested %d, %d available", e.requested, e.available)
}

// IsErrAddressPoolExhausted returns true if the error is a result of a range
// having no or not enough free addresses
func IsErrAddressPoolExhausted(e error) bool {
	return is[errAddressPoolExhausted](e)
}

type errAllocationNotFound struct {
	address string
}

// ErrAllocationNotFound creates an error indicating that an operation expected
// an address to be allocated, and it was not.
func ErrAllocationNotFound(address string) error {
	return errAllocationNotFound{address: address}
}

// Error returns the error message
func (e errAllocationNotFound) Error() string {
	return fmt.Sprintf("allocation for address %v not found", e.address)
}

// IsErrAllocationNotFound returns true if the error is a result of targeting
// an address that is not allocated
func IsErrAllocationNotFound(e error) bool {
	return is[errAllocationNotFound](e)
}

type errInvalidFixedIPs struct {
	cause string
}

// ErrInvalidFixedIPs creates an error indicating that a list of address
// requests is malformed, for example because an item has no subnet.
func ErrInvalidFixedIPs(cause string, args ...interface{}) error {
	if len(args) != 0 {
		return errInvalidFixedIPs{cause: fmt.Sprintf(cause, args...)}
	}
	return errInvalidFixedIPs{cause: cause}
}

// Error returns the error message
func (e errInvalidFixedIPs) Error() string {
	return fmt.Sprintf("fixed ips input is invalid: %v", e.cause)
}

// IsErrInvalidFixedIPs returns true if the error is a result of a malformed
// address request list
func IsErrInvalidFixedIPs(e error) bool {
	return is[errInvalidFixedIPs](e)
}

type errInvalidAddress struct {
	address string
}

// ErrInvalidAddress creates an error indicating that the string form of an
// address cannot be parsed, or belongs to the wrong address family.
func ErrInvalidAddress(address string) error {
	return errInvalidAddress{address: address}
}

// Error returns the error message
func (e errInvalidAddress) Error() string {
	return fmt.Sprintf("address %q is not a valid ip address for this range", e.address)
}

// IsErrInvalidAddress returns true if the error is a result of an unparsable
// address
func IsErrInvalidAddress(e error) bool {
	return is[errInvalidAddress](e)
}

type errInvalidRange struct {
	cause string
}

// ErrInvalidRange creates an error indicating that the bounds given for a
// range cannot be used.
func ErrInvalidRange(cause string, args ...interface{}) error {
	if len(args) != 0 {
		return errInvalidRange{cause: fmt.Sprintf(cause, args...)}
	}
	return errInvalidRange{cause: cause}
}

// Error returns the error message
func (e errInvalidRange) Error() string {
	return fmt.Sprintf("range is invalid: %v", e.cause)
}

// IsErrInvalidRange returns true if the error is a result of bad range bounds
func IsErrInvalidRange(e error) bool {
	return is[errInvalidRange](e)
}

type errRangeNotFound struct {
	subnetID string
}

// ErrRangeNotFound creates an error indicating that no range is known for a
// subnet.
func ErrRangeNotFound(subnetID string) error {
	return errRangeNotFound{subnetID: subnetID}
}

// Error returns the error message
func (e errRangeNotFound) Error() string {
	return fmt.Sprintf("no address range for subnet %v", e.subnetID)
}

// IsErrRangeNotFound returns true if the error is a result of a subnet with
// no range
func IsErrRangeNotFound(e error) bool {
	return is[errRangeNotFound](e)
}

type errRangeExists struct {
	subnetID string
}

// ErrRangeExists creates an error indicating that a subnet already owns a
// range.
func ErrRangeExists(subnetID string) error {
	return errRangeExists{subnetID: subnetID}
}

// Error returns the error message
func (e errRangeExists) Error() string {
	return fmt.Sprintf("subnet %v already has an address range", e.subnetID)
}

// IsErrRangeExists returns true if the error is a result of creating a second
// range for a subnet
func IsErrRangeExists(e error) bool {
	return is[errRangeExists](e)
}

type errResourceInUse struct {
	resourceType, value string
}

// ErrResourceInUse creates an error indicating that a resource cannot be
// removed because something still uses it.
func ErrResourceInUse(resourceType, value string) error {
	return errResourceInUse{resourceType: resourceType, value: value}
}

// Error returns the error message
func (e errResourceInUse) Error() string {
	return fmt.Sprintf("%v %v is in use", e.resourceType, e.value)
}

// IsErrResourceInUse returns true if the error is a result of a resource
// still in use
func IsErrResourceInUse(e error) bool {
	return is[errResourceInUse](e)
}

type errSubnetBusy struct {
	subnetID string
}

// ErrSubnetBusy creates an error indicating that the critical section of a
// subnet could not be entered before the caller's deadline.
func ErrSubnetBusy(subnetID string) error {
	return errSubnetBusy{subnetID: subnetID}
}

// Error returns the error message
func (e errSubnetBusy) Error() string {
	return fmt.Sprintf("subnet %v is busy, timed out waiting for its lock", e.subnetID)
}

// IsErrSubnetBusy returns true if the error is a result of a lock timeout
func IsErrSubnetBusy(e error) bool {
	return is[errSubnetBusy](e)
}

type errBadState struct {
	cause string
}

// ErrBadState creates an error indicating that persisted state could not be
// replayed into a range, for example two records for the same address.
func ErrBadState(cause string, args ...interface{}) error {
	if len(args) != 0 {
		return errBadState{cause: fmt.Sprintf(cause, args...)}
	}
	return errBadState{cause: cause}
}

// Error returns the error message
func (e errBadState) Error() string {
	return fmt.Sprintf("an invalid state was encountered: %v", e.cause)
}

// IsErrBadState returns true if the error is a result of inconsistent state
func IsErrBadState(e error) bool {
	return is[errBadState](e)
}

// ErrDoubleFault indicates that some error occurred while handling another
// error. For example, if a bulk allocation fails, and then rolling back the
// already allocated addresses also fails.
type ErrDoubleFault struct {
	original, new error
}

// NewErrDoubleFault returns an ErrDoubleFault wrapping both errors.
func NewErrDoubleFault(original, new error) error {
	return ErrDoubleFault{original: original, new: new}
}

// Error returns a formatted string explaining the original error and the new
// one
func (e ErrDoubleFault) Error() string {
	return fmt.Sprintf("double fault: an error occurred while handling error %v: %v", e.original, e.new)
}

// Original returns the original error that started the error handling logic
func (e ErrDoubleFault) Original() error {
	return e.original
}

// New returns the error that occurred in the error handling logic
func (e ErrDoubleFault) New() error {
	return e.new
}

// IsErrDoubleFault returns true if the type of the error is ErrDoubleFault
func IsErrDoubleFault(e error) bool {
	return is[ErrDoubleFault](e)
}
