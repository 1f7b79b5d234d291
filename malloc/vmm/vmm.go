// Copyright 2024 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package vmm is a thin facade over the host's virtual memory syscalls:
// reserve an address range, commit pages into it, reset or decommit them,
// and release the range. It exists so the bin manager never imports
// golang.org/x/sys/unix directly.
package vmm

import "unsafe"

// Facade abstracts the OS virtual-memory call surface a bin manager needs.
// Every size argument must be a multiple of the OS page size; every range
// argument must fall within a range previously returned by Reserve or
// ReserveCommit on the same Facade.
type Facade interface {
	// Reserve carves out n bytes of address space with no RAM backing and
	// no access permitted. Returns the base address, or nil on failure.
	Reserve(n uintptr) (unsafe.Pointer, error)

	// Commit backs the range [p, p+n) with RAM and grants read-write
	// access. Returns p, or nil on failure.
	Commit(p unsafe.Pointer, n uintptr) (unsafe.Pointer, error)

	// ReserveCommit reserves and commits n bytes in one step.
	ReserveCommit(n uintptr) (unsafe.Pointer, error)

	// Reset tells the OS the contents of [p, p+n) are discardable: the
	// pages may be reclaimed without being written to swap. Access to the
	// range is not revoked; the Linux and Darwin implementations leave it
	// mapped read-write, and its contents are undefined until ResetUndo
	// is called on the same range. Cheaper than Decommit/Commit;
	// correctness does not depend on which pairing is used, only that
	// Reset/ResetUndo and Decommit/Commit each pair up.
	Reset(p unsafe.Pointer, n uintptr) error

	// ResetUndo makes a range previously passed to Reset valid for use
	// again; its contents read as zero afterwards.
	ResetUndo(p unsafe.Pointer, n uintptr) (unsafe.Pointer, error)

	// Decommit drops the RAM backing of [p, p+n) while preserving the
	// reservation.
	Decommit(p unsafe.Pointer, n uintptr) error

	// Release drops the reservation at base entirely. base must be a
	// value previously returned by Reserve or ReserveCommit.
	Release(base unsafe.Pointer, n uintptr) error
}

// PageSize is the granularity every Facade implementation rounds its
// ranges to. 4 KiB covers the common case on both supported platforms;
// callers needing the true runtime page size should query the OS, but
// every size this allocator ever passes through the facade (64 KiB bins,
// 64 GiB reservation) is already a multiple of it.
const PageSize = 4096
