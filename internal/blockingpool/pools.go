package blockingpool

import "runtime"

// IOPoolSize is the default concurrency bound for fork-provider and
// database round trips, which spend most of their time waiting rather
// than computing.
const IOPoolSize = 128

// CPUPoolSize returns the default concurrency bound for Cairo VM execution,
// sized to the available processors since that work is compute-bound.
func CPUPoolSize() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}

// NewIOPool builds the pool used for blocking network/database calls.
func NewIOPool() *Pool { return New(IOPoolSize) }

// NewCPUPool builds the pool used for blocking Cairo execution.
func NewCPUPool() *Pool { return New(CPUPoolSize()) }
