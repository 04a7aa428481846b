// Package metrics instruments the address registry.
package metrics

import (
	"time"

	gometrics "github.com/docker/go-metrics"
)

const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

var (
	ns = gometrics.NewNamespace("ipam", "registry", nil)

	operationCounter   = ns.NewLabeledCounter("operations", "The number of registry operations by outcome", "operation", "outcome")
	operationTimer     = ns.NewLabeledTimer("operation", "The time spent in registry operations", "operation")
	lockWaitTimer      = ns.NewTimer("subnet_lock_wait", "The time spent waiting for a subnet lock")
	lockTimeoutCounter = ns.NewCounter("subnet_lock_timeouts", "The number of operations that gave up waiting for a subnet lock")
	restoredGauge      = ns.NewGauge("restored_ranges", "The number of ranges loaded by the last restore", gometrics.Total)
)

func init() {
	gometrics.Register(ns)
}

// Operation records one registry operation that took d and failed with err,
// if not nil.
func Operation(op string, d time.Duration, err error) {
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}
	operationCounter.WithValues(op, outcome).Inc(1)
	operationTimer.WithValues(op).Update(d)
}

// LockWait records the time spent acquiring a subnet lock.
func LockWait(d time.Duration, acquired bool) {
	lockWaitTimer.Update(d)
	if !acquired {
		lockTimeoutCounter.Inc(1)
	}
}

// Restored records the number of ranges loaded at startup.
func Restored(n int) {
	restoredGauge.Set(float64(n))
}
