package iprange_test

import (
	"github.com/vfabric/privateip/api"
	"github.com/vfabric/privateip/manager/allocator/errors"

	. "github.com/vfabric/privateip/manager/allocator/iprange"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("iprange.Range", func() {
	var (
		r      *Range
		record *api.Range
		newErr error
	)

	BeforeEach(func() {
		record = &api.Range{
			ID:        "range-1",
			VpcID:     "vpc-1",
			SubnetID:  "subnet-1",
			IPVersion: api.IPv4,
			FirstIP:   "10.0.0.0",
			LastIP:    "10.0.0.3",
		}
	})

	JustBeforeEach(func() {
		r, newErr = New(record)
	})

	Describe("creating a range", func() {
		It("should succeed", func() {
			Expect(newErr).ToNot(HaveOccurred())
			Expect(r.TotalCount()).To(Equal(4))
			Expect(r.UsedCount()).To(Equal(0))
			Expect(r.Record()).To(Equal(record))
		})

		It("should not share the record", func() {
			rec := r.Record()
			rec.SubnetID = "other"
			Expect(r.Record().SubnetID).To(Equal("subnet-1"))
		})

		Context("without a subnet id", func() {
			BeforeEach(func() {
				record.SubnetID = ""
			})
			It("should return ErrInvalidRange", func() {
				Expect(errors.IsErrInvalidRange(newErr)).To(BeTrue())
			})
		})
	})

	Describe("allocating", func() {
		It("should return the lowest free address again after it is released", func() {
			a, err := r.Allocate("")
			Expect(err).ToNot(HaveOccurred())
			Expect(a.Address).To(Equal("10.0.0.0"))
			Expect(r.Release(a.Address)).To(Succeed())

			a, err = r.Allocate("")
			Expect(err).ToNot(HaveOccurred())
			Expect(a.Address).To(Equal("10.0.0.0"))
		})

		It("should fill in the record", func() {
			a, err := r.Allocate("10.0.0.2")
			Expect(err).ToNot(HaveOccurred())
			Expect(a).To(Equal(&api.Allocation{
				IPVersion: api.IPv4,
				SubnetID:  "subnet-1",
				RangeID:   "range-1",
				Address:   "10.0.0.2",
				State:     api.StateActivated,
			}))
		})

		It("should fail a second allocation of the same address with ErrAddressConflict", func() {
			_, err := r.Allocate("10.0.0.1")
			Expect(err).ToNot(HaveOccurred())
			_, err = r.Allocate("10.0.0.1")
			Expect(errors.IsErrAddressConflict(err)).To(BeTrue())
			Expect(r.UsedCount()).To(Equal(1))
		})

		It("should reject an address outside of the range", func() {
			_, err := r.Allocate("10.0.0.4")
			Expect(errors.IsErrAddressOutOfRange(err)).To(BeTrue())
		})

		It("should return ErrAddressPoolExhausted when nothing is free", func() {
			_, err := r.AllocateBulk(4)
			Expect(err).ToNot(HaveOccurred())
			_, err = r.Allocate("")
			Expect(errors.IsErrAddressPoolExhausted(err)).To(BeTrue())
		})
	})

	Describe("allocating in bulk by count", func() {
		Context("on a range of two addresses", func() {
			BeforeEach(func() {
				record.LastIP = "10.0.0.1"
			})
			It("should fail for three and commit nothing", func() {
				allocs, err := r.AllocateBulk(3)
				Expect(errors.IsErrAddressPoolExhausted(err)).To(BeTrue())
				Expect(allocs).To(BeNil())
				Expect(r.UsedCount()).To(Equal(0))
			})
		})

		It("should wrap each address", func() {
			allocs, err := r.AllocateBulk(2)
			Expect(err).ToNot(HaveOccurred())
			Expect(allocs).To(HaveLen(2))
			for _, a := range allocs {
				Expect(a.State).To(Equal(api.StateActivated))
				Expect(a.SubnetID).To(Equal("subnet-1"))
			}
		})
	})

	Describe("allocating a list", func() {
		It("should stop at a conflicting address and return the prefix", func() {
			_, err := r.Allocate("10.0.0.2")
			Expect(err).ToNot(HaveOccurred())

			allocs := r.AllocateList([]string{"10.0.0.1", "10.0.0.2", "10.0.0.3"})
			Expect(allocs).To(HaveLen(1))
			Expect(allocs[0].Address).To(Equal("10.0.0.1"))
			a, err := r.GetAddress("10.0.0.3")
			Expect(err).ToNot(HaveOccurred())
			Expect(a.State).To(Equal(api.StateFree))
		})

		It("should stop at a duplicate in the request", func() {
			allocs := r.AllocateList([]string{"10.0.0.1", "10.0.0.3", "10.0.0.1", "10.0.0.2"})
			Expect(allocs).To(HaveLen(2))
			Expect(r.UsedCount()).To(Equal(2))
		})

		It("should stop at an address outside of the range", func() {
			allocs := r.AllocateList([]string{"10.0.0.9", "10.0.0.1"})
			Expect(allocs).To(BeEmpty())
			Expect(r.UsedCount()).To(Equal(0))
		})
	})

	Describe("modifying the state", func() {
		It("should update an allocated address", func() {
			_, err := r.Allocate("10.0.0.1")
			Expect(err).ToNot(HaveOccurred())

			a, err := r.ModifyState("10.0.0.1", api.StateDeactivated)
			Expect(err).ToNot(HaveOccurred())
			Expect(a.State).To(Equal(api.StateDeactivated))

			a, err = r.GetAddress("10.0.0.1")
			Expect(err).ToNot(HaveOccurred())
			Expect(a.State).To(Equal(api.StateDeactivated))
			Expect(r.AllocatedRecords()[0].State).To(Equal(api.StateDeactivated))
		})

		It("should return ErrAllocationNotFound for a free address", func() {
			_, err := r.ModifyState("10.0.0.1", api.StateDeactivated)
			Expect(errors.IsErrAllocationNotFound(err)).To(BeTrue())
		})

		It("should return ErrAddressOutOfRange outside of the range", func() {
			_, err := r.ModifyState("10.0.1.1", api.StateDeactivated)
			Expect(errors.IsErrAddressOutOfRange(err)).To(BeTrue())
		})

		It("should drop an undefined state", func() {
			_, err := r.Allocate("10.0.0.1")
			Expect(err).ToNot(HaveOccurred())
			_, err = r.ModifyState("10.0.0.1", api.StateDeactivated)
			Expect(err).ToNot(HaveOccurred())

			a, err := r.ModifyState("10.0.0.1", api.State(3))
			Expect(err).ToNot(HaveOccurred())
			Expect(a.Address).To(Equal("10.0.0.1"))
			Expect(a.State).To(Equal(api.StateDeactivated))

			a, err = r.GetAddress("10.0.0.1")
			Expect(err).ToNot(HaveOccurred())
			Expect(a.State).To(Equal(api.StateDeactivated))
		})
	})

	Describe("releasing", func() {
		It("should leave the address free", func() {
			_, err := r.Allocate("10.0.0.3")
			Expect(err).ToNot(HaveOccurred())
			_, err = r.ModifyState("10.0.0.3", api.StateDeactivated)
			Expect(err).ToNot(HaveOccurred())
			Expect(r.Release("10.0.0.3")).To(Succeed())

			a, err := r.GetAddress("10.0.0.3")
			Expect(err).ToNot(HaveOccurred())
			Expect(a.State).To(Equal(api.StateFree))
			Expect(r.UsedCount()).To(Equal(0))
		})

		It("should be idempotent", func() {
			Expect(r.Release("10.0.0.3")).To(Succeed())
			Expect(r.Release("10.0.0.3")).To(Succeed())
			Expect(r.UsedCount()).To(Equal(0))
		})

		It("should release lists", func() {
			_, err := r.AllocateBulk(3)
			Expect(err).ToNot(HaveOccurred())
			n, err := r.ReleaseBulk([]string{"10.0.0.0", "10.0.0.2"})
			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(Equal(2))
			Expect(r.IsAllocated("10.0.0.0")).To(BeFalse())
			Expect(r.AllocatedRecords()).To(HaveLen(1))
			Expect(r.AllocatedRecords()[0].Address).To(Equal("10.0.0.1"))
		})

		It("should return ErrAddressOutOfRange outside of the range", func() {
			n, err := r.ReleaseBulk([]string{"10.0.0.0", "10.1.0.0"})
			Expect(errors.IsErrAddressOutOfRange(err)).To(BeTrue())
			Expect(n).To(Equal(1))
		})
	})

	Describe("looking up an address", func() {
		It("should fail outside of the range", func() {
			_, err := r.GetAddress("10.0.0.200")
			Expect(errors.IsErrAddressOutOfRange(err)).To(BeTrue())
		})

		It("should list allocations in ascending order", func() {
			r.AllocateList([]string{"10.0.0.3", "10.0.0.0"})
			records := r.AllocatedRecords()
			Expect(records).To(HaveLen(2))
			Expect(records[0].Address).To(Equal("10.0.0.0"))
			Expect(records[1].Address).To(Equal("10.0.0.3"))
		})
	})

	Describe("restoring", func() {
		var persisted []*api.Allocation

		BeforeEach(func() {
			persisted = []*api.Allocation{
				{IPVersion: api.IPv4, SubnetID: "subnet-1", RangeID: "range-1", Address: "10.0.0.3", State: api.StateDeactivated},
				{IPVersion: api.IPv4, SubnetID: "subnet-1", RangeID: "range-1", Address: "10.0.0.1", State: api.StateActivated},
			}
		})

		It("should rebuild the allocations and their states", func() {
			Expect(r.Restore(persisted)).To(Succeed())
			records := r.AllocatedRecords()
			Expect(records).To(HaveLen(2))
			Expect(records[0].Address).To(Equal("10.0.0.1"))
			Expect(records[0].State).To(Equal(api.StateActivated))
			Expect(records[1].Address).To(Equal("10.0.0.3"))
			Expect(records[1].State).To(Equal(api.StateDeactivated))

			a, err := r.Allocate("")
			Expect(err).ToNot(HaveOccurred())
			Expect(a.Address).To(Equal("10.0.0.0"))
		})

		It("should replace what was there before", func() {
			_, err := r.Allocate("10.0.0.2")
			Expect(err).ToNot(HaveOccurred())
			Expect(r.Restore(persisted)).To(Succeed())
			Expect(r.UsedCount()).To(Equal(2))
		})

		It("should fail on a duplicate record and leave the range unchanged", func() {
			_, err := r.Allocate("10.0.0.2")
			Expect(err).ToNot(HaveOccurred())
			persisted = append(persisted, persisted[0].Copy())
			err = r.Restore(persisted)
			Expect(errors.IsErrBadState(err)).To(BeTrue())
			Expect(r.UsedCount()).To(Equal(1))
		})

		It("should fail on a record outside of the range", func() {
			persisted[0].Address = "10.0.0.99"
			Expect(errors.IsErrBadState(r.Restore(persisted))).To(BeTrue())
		})

		It("should fail on a record of another subnet", func() {
			persisted[0].SubnetID = "subnet-2"
			Expect(errors.IsErrBadState(r.Restore(persisted))).To(BeTrue())
		})
	})
})
