//go:build linux
// +build linux

// File: internal/concurrency/affinity_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux CPU pinning for auxiliary context goroutines via sched_setaffinity.

package concurrency

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// PinCurrentThread locks the calling goroutine to its OS thread and binds
// that thread to the given CPU.
func PinCurrentThread(cpuID int) error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	return unix.SchedSetaffinity(0, &set)
}

// UnpinCurrentThread clears the binding and unlocks the goroutine.
func UnpinCurrentThread() error {
	var set unix.CPUSet
	set.Zero()
	for cpu := 0; cpu < runtime.NumCPU(); cpu++ {
		set.Set(cpu)
	}
	err := unix.SchedSetaffinity(0, &set)
	runtime.UnlockOSThread()
	return err
}
