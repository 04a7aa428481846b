package ipam_test

import (
	"github.com/vfabric/privateip/api"
	"github.com/vfabric/privateip/manager/allocator/errors"

	. "github.com/vfabric/privateip/manager/allocator/ipam"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("ipam.Allocator", func() {
	var (
		a      Allocator
		newErr error

		version     api.IPVersion
		first, last string
	)

	BeforeEach(func() {
		version = api.IPv4
		first = "10.0.0.1"
		last = "10.0.0.10"
	})

	JustBeforeEach(func() {
		a, newErr = New(version, first, last)
	})

	Describe("creating an allocator", func() {
		It("should succeed", func() {
			Expect(newErr).ToNot(HaveOccurred())
			Expect(a.Total()).To(Equal(10))
			Expect(a.Used()).To(Equal(0))
			Expect(a.Version()).To(Equal(api.IPv4))
			Expect(a.First()).To(Equal("10.0.0.1"))
			Expect(a.Last()).To(Equal("10.0.0.10"))
		})

		Context("when the bounds are reversed", func() {
			BeforeEach(func() {
				first, last = "10.0.0.10", "10.0.0.1"
			})
			It("should return ErrInvalidRange", func() {
				Expect(errors.IsErrInvalidRange(newErr)).To(BeTrue())
			})
		})

		Context("when a bound is not an address of the family", func() {
			BeforeEach(func() {
				last = "fd00::1"
			})
			It("should return ErrInvalidAddress", func() {
				Expect(errors.IsErrInvalidAddress(newErr)).To(BeTrue())
			})
		})

		Context("when the range is larger than the limit", func() {
			BeforeEach(func() {
				first, last = "10.0.0.0", "11.0.0.0"
			})
			It("should return ErrInvalidRange", func() {
				Expect(errors.IsErrInvalidRange(newErr)).To(BeTrue())
			})
		})

		Context("when the version is unknown", func() {
			BeforeEach(func() {
				version = api.IPVersion(5)
			})
			It("should return ErrInvalidRange", func() {
				Expect(errors.IsErrInvalidRange(newErr)).To(BeTrue())
			})
		})

		Context("when the range holds a single address", func() {
			BeforeEach(func() {
				first, last = "10.0.0.7", "10.0.0.7"
			})
			It("should have a total of 1", func() {
				Expect(newErr).ToNot(HaveOccurred())
				Expect(a.Total()).To(Equal(1))
			})
		})
	})

	Describe("allocating any address", func() {
		It("should return the lowest free address", func() {
			ip, err := a.Allocate("")
			Expect(err).ToNot(HaveOccurred())
			Expect(ip).To(Equal("10.0.0.1"))

			ip, err = a.Allocate("")
			Expect(err).ToNot(HaveOccurred())
			Expect(ip).To(Equal("10.0.0.2"))
		})

		It("should reuse a released address before higher ones", func() {
			for i := 0; i < 3; i++ {
				_, err := a.Allocate("")
				Expect(err).ToNot(HaveOccurred())
			}
			Expect(a.Release("10.0.0.2")).To(Succeed())
			ip, err := a.Allocate("")
			Expect(err).ToNot(HaveOccurred())
			Expect(ip).To(Equal("10.0.0.2"))
		})

		It("should mark the address activated", func() {
			ip, err := a.Allocate("")
			Expect(err).ToNot(HaveOccurred())
			idx, err := a.IPIndex(ip)
			Expect(err).ToNot(HaveOccurred())
			Expect(a.Status(idx)).To(Equal(api.StateActivated))
			Expect(a.IsAllocated(ip)).To(BeTrue())
		})

		Context("when every address is allocated", func() {
			JustBeforeEach(func() {
				_, err := a.AllocateBulk(a.Total())
				Expect(err).ToNot(HaveOccurred())
			})
			It("should return ErrAddressPoolExhausted", func() {
				_, err := a.Allocate("")
				Expect(errors.IsErrAddressPoolExhausted(err)).To(BeTrue())
				Expect(a.Used()).To(Equal(a.Total()))
			})
		})
	})

	Describe("allocating a specific address", func() {
		It("should allocate exactly that address", func() {
			ip, err := a.Allocate("10.0.0.5")
			Expect(err).ToNot(HaveOccurred())
			Expect(ip).To(Equal("10.0.0.5"))
			Expect(a.IsAllocated("10.0.0.5")).To(BeTrue())
			Expect(a.Used()).To(Equal(1))
		})

		It("should not detect conflicts", func() {
			_, err := a.Allocate("10.0.0.5")
			Expect(err).ToNot(HaveOccurred())
			_, err = a.Allocate("10.0.0.5")
			Expect(err).ToNot(HaveOccurred())
			Expect(a.Used()).To(Equal(1))
		})

		It("should reject an address outside of the bounds", func() {
			_, err := a.Allocate("10.0.0.11")
			Expect(errors.IsErrAddressOutOfRange(err)).To(BeTrue())
			Expect(a.Used()).To(Equal(0))
		})

		It("should reject malformed input", func() {
			_, err := a.Allocate("not-an-ip")
			Expect(errors.IsErrInvalidAddress(err)).To(BeTrue())
		})

		It("should return the canonical form", func() {
			ip, err := a.Allocate("10.0.0.007")
			Expect(err).ToNot(HaveOccurred())
			Expect(ip).To(Equal("10.0.0.7"))
		})
	})

	Describe("allocating in bulk by count", func() {
		It("should return the lowest free addresses in ascending order", func() {
			_, err := a.Allocate("10.0.0.2")
			Expect(err).ToNot(HaveOccurred())

			ips, err := a.AllocateBulk(3)
			Expect(err).ToNot(HaveOccurred())
			Expect(ips).To(Equal([]string{"10.0.0.1", "10.0.0.3", "10.0.0.4"}))
			Expect(a.Used()).To(Equal(4))
		})

		It("should return an empty list for a non-positive count", func() {
			ips, err := a.AllocateBulk(0)
			Expect(err).ToNot(HaveOccurred())
			Expect(ips).To(BeEmpty())
			Expect(a.Used()).To(Equal(0))
		})

		Context("when the range holds two addresses", func() {
			BeforeEach(func() {
				first, last = "10.0.0.1", "10.0.0.2"
			})
			It("should allocate nothing when three are requested", func() {
				ips, err := a.AllocateBulk(3)
				Expect(errors.IsErrAddressPoolExhausted(err)).To(BeTrue())
				Expect(ips).To(BeNil())
				Expect(a.Used()).To(Equal(0))
				Expect(a.AllocatedIPs()).To(BeEmpty())
			})
			It("should allocate both when two are requested", func() {
				ips, err := a.AllocateBulk(2)
				Expect(err).ToNot(HaveOccurred())
				Expect(ips).To(Equal([]string{"10.0.0.1", "10.0.0.2"}))
			})
		})
	})

	Describe("allocating a list of addresses", func() {
		It("should allocate every address", func() {
			ips := a.AllocateList([]string{"10.0.0.3", "10.0.0.1"})
			Expect(ips).To(Equal([]string{"10.0.0.3", "10.0.0.1"}))
			Expect(a.Used()).To(Equal(2))
		})

		It("should stop at the first failure and keep the prefix", func() {
			ips := a.AllocateList([]string{"10.0.0.1", "10.0.0.2", "10.0.0.99", "10.0.0.4"})
			Expect(ips).To(Equal([]string{"10.0.0.1", "10.0.0.2"}))
			Expect(a.IsAllocated("10.0.0.1")).To(BeTrue())
			Expect(a.IsAllocated("10.0.0.2")).To(BeTrue())
			Expect(a.IsAllocated("10.0.0.4")).To(BeFalse())
			Expect(a.Used()).To(Equal(2))
		})
	})

	Describe("releasing addresses", func() {
		It("should make an allocate/release round trip leave no trace", func() {
			ip, err := a.Allocate("10.0.0.4")
			Expect(err).ToNot(HaveOccurred())
			Expect(a.Release(ip)).To(Succeed())
			Expect(a.IsAllocated(ip)).To(BeFalse())
			Expect(a.Used()).To(Equal(0))
			idx, err := a.IPIndex(ip)
			Expect(err).ToNot(HaveOccurred())
			Expect(a.Status(idx)).To(Equal(api.StateFree))
		})

		It("should succeed for a free address", func() {
			Expect(a.Release("10.0.0.4")).To(Succeed())
			Expect(a.Release("10.0.0.4")).To(Succeed())
			Expect(a.Used()).To(Equal(0))
		})

		It("should reject an address outside of the bounds", func() {
			err := a.Release("10.0.1.1")
			Expect(errors.IsErrAddressOutOfRange(err)).To(BeTrue())
		})

		It("should release in order and stop at the first error", func() {
			_, err := a.AllocateBulk(3)
			Expect(err).ToNot(HaveOccurred())
			err = a.ReleaseBulk([]string{"10.0.0.1", "192.168.0.1", "10.0.0.2"})
			Expect(errors.IsErrAddressOutOfRange(err)).To(BeTrue())
			Expect(a.IsAllocated("10.0.0.1")).To(BeFalse())
			Expect(a.IsAllocated("10.0.0.2")).To(BeTrue())
		})
	})

	Describe("status codes", func() {
		It("should store the lifecycle states", func() {
			a.SetStatus(api.StateDeactivated, 3)
			Expect(a.Status(3)).To(Equal(api.StateDeactivated))
			a.SetStatus(api.StateActivated, 3)
			Expect(a.Status(3)).To(Equal(api.StateActivated))
			a.SetStatus(api.StateFree, 3)
			Expect(a.Status(3)).To(Equal(api.StateFree))
		})

		It("should ignore unknown codes", func() {
			a.SetStatus(api.StateDeactivated, 3)
			a.SetStatus(api.State(3), 3)
			Expect(a.Status(3)).To(Equal(api.StateDeactivated))
		})

		It("should not touch neighbouring slots", func() {
			for i := 0; i < a.Total(); i++ {
				a.SetStatus(api.StateDeactivated, i)
			}
			a.SetStatus(api.StateActivated, 4)
			Expect(a.Status(3)).To(Equal(api.StateDeactivated))
			Expect(a.Status(4)).To(Equal(api.StateActivated))
			Expect(a.Status(5)).To(Equal(api.StateDeactivated))
		})
	})

	Describe("index conversions", func() {
		It("should map addresses to offsets and back", func() {
			idx, err := a.IPIndex("10.0.0.10")
			Expect(err).ToNot(HaveOccurred())
			Expect(idx).To(Equal(9))
			ip, err := a.IP(9)
			Expect(err).ToNot(HaveOccurred())
			Expect(ip).To(Equal("10.0.0.10"))
		})

		It("should check the bounds", func() {
			_, err := a.IP(10)
			Expect(errors.IsErrAddressOutOfRange(err)).To(BeTrue())
			_, err = a.IP(-1)
			Expect(errors.IsErrAddressOutOfRange(err)).To(BeTrue())
			_, err = a.IPIndex("10.0.0.0")
			Expect(errors.IsErrAddressOutOfRange(err)).To(BeTrue())
		})

		It("should validate against the bounds only", func() {
			Expect(a.Validate("10.0.0.1")).To(BeTrue())
			Expect(a.Validate("10.0.0.11")).To(BeFalse())
			Expect(a.Validate("garbage")).To(BeFalse())
			Expect(a.IsAllocated("garbage")).To(BeFalse())
		})

		It("should list allocated addresses in ascending order", func() {
			a.AllocateList([]string{"10.0.0.9", "10.0.0.2", "10.0.0.5"})
			Expect(a.AllocatedIPs()).To(Equal([]string{"10.0.0.2", "10.0.0.5", "10.0.0.9"}))
		})
	})

	Describe("an IPv6 range", func() {
		BeforeEach(func() {
			version = api.IPv6
			first = "fd00::1"
			last = "fd00::100"
		})

		It("should behave like an IPv4 range", func() {
			Expect(newErr).ToNot(HaveOccurred())
			Expect(a.Total()).To(Equal(256))

			ip, err := a.Allocate("")
			Expect(err).ToNot(HaveOccurred())
			Expect(ip).To(Equal("fd00::1"))

			ips, err := a.AllocateBulk(2)
			Expect(err).ToNot(HaveOccurred())
			Expect(ips).To(Equal([]string{"fd00::2", "fd00::3"}))

			ip, err = a.Allocate("fd00:0:0::ff")
			Expect(err).ToNot(HaveOccurred())
			Expect(ip).To(Equal("fd00::ff"))

			idx, err := a.IPIndex("fd00::100")
			Expect(err).ToNot(HaveOccurred())
			Expect(idx).To(Equal(255))

			Expect(a.Release("fd00::2")).To(Succeed())
			Expect(a.AllocatedIPs()).To(Equal([]string{"fd00::1", "fd00::3", "fd00::ff"}))
		})

		It("should reject IPv4 input", func() {
			_, err := a.Allocate("10.0.0.1")
			Expect(errors.IsErrInvalidAddress(err)).To(BeTrue())
		})

		It("should reject addresses outside of the bounds", func() {
			_, err := a.Allocate("fd00::101")
			Expect(errors.IsErrAddressOutOfRange(err)).To(BeTrue())
		})
	})
})

var _ = Describe("BoundsFromCIDR", func() {
	It("should exclude the network and broadcast addresses", func() {
		first, last, version, err := BoundsFromCIDR("10.1.0.0/24")
		Expect(err).ToNot(HaveOccurred())
		Expect(version).To(Equal(api.IPv4))
		Expect(first).To(Equal("10.1.0.1"))
		Expect(last).To(Equal("10.1.0.254"))
	})

	It("should keep both addresses of a /31", func() {
		first, last, _, err := BoundsFromCIDR("10.1.0.4/31")
		Expect(err).ToNot(HaveOccurred())
		Expect(first).To(Equal("10.1.0.4"))
		Expect(last).To(Equal("10.1.0.5"))
	})

	It("should truncate large IPv6 subnets", func() {
		first, last, version, err := BoundsFromCIDR("fd00:1::/64")
		Expect(err).ToNot(HaveOccurred())
		Expect(version).To(Equal(api.IPv6))
		Expect(first).To(Equal("fd00:1::1"))
		Expect(last).To(Equal("fd00:1::100:0"))

		a, err := New(version, first, last)
		Expect(err).ToNot(HaveOccurred())
		Expect(a.Total()).To(Equal(MaxRangeSize))
	})

	It("should reject an IPv4 subnet larger than the limit", func() {
		_, _, _, err := BoundsFromCIDR("10.0.0.0/7")
		Expect(errors.IsErrInvalidRange(err)).To(BeTrue())
	})

	It("should reject garbage", func() {
		_, _, _, err := BoundsFromCIDR("10.0.0.0")
		Expect(errors.IsErrInvalidRange(err)).To(BeTrue())
	})
})
