//go:build !linux
// +build !linux

// File: internal/concurrency/affinity_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stub implementation for platforms without sched_setaffinity.

package concurrency

// PinCurrentThread is a no-op on unsupported platforms.
func PinCurrentThread(cpuID int) error {
	return nil
}

// UnpinCurrentThread is a no-op on unsupported platforms.
func UnpinCurrentThread() error {
	return nil
}
