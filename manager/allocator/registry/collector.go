package registry

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	addressesDesc = prometheus.NewDesc(
		"ipam_range_addresses",
		"The number of addresses in the range of a subnet.",
		[]string{"subnet_id", "ip_version"}, nil,
	)
	usedAddressesDesc = prometheus.NewDesc(
		"ipam_range_addresses_used",
		"The number of allocated addresses in the range of a subnet.",
		[]string{"subnet_id", "ip_version"}, nil,
	)
)

type collector struct {
	r *Registry
}

// Collector returns a prometheus.Collector reporting the size and usage of
// every range held in memory. A scrape never waits for a subnet lock: ranges
// busy at that moment are left out of it.
func (r *Registry) Collector() prometheus.Collector {
	return collector{r: r}
}

func (c collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- addressesDesc
	ch <- usedAddressesDesc
}

func (c collector) Collect(ch chan<- prometheus.Metric) {
	c.r.mu.RLock()
	ids := make([]string, 0, len(c.r.ranges))
	for id := range c.r.ranges {
		ids = append(ids, id)
	}
	c.r.mu.RUnlock()

	for _, id := range ids {
		info := c.snapshot(id)
		if info == nil {
			continue
		}
		version := info.Range.IPVersion.String()
		ch <- prometheus.MustNewConstMetric(addressesDesc, prometheus.GaugeValue, float64(info.Total), id, version)
		ch <- prometheus.MustNewConstMetric(usedAddressesDesc, prometheus.GaugeValue, float64(info.Used), id, version)
	}
}

// snapshot reads the usage of a range without loading it from the store.
func (c collector) snapshot(subnetID string) *RangeInfo {
	unlock, ok := c.r.locks.tryAcquire(subnetID)
	if !ok {
		return nil
	}
	defer unlock()

	rng := c.r.cached(subnetID)
	if rng == nil {
		return nil
	}
	return rangeInfo(rng)
}
