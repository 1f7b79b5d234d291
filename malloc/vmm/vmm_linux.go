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

//go:build linux

package vmm

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// linuxFacade maps the Facade operations onto mmap/mprotect/madvise. A
// reservation is an anonymous PROT_NONE mapping; commit just flips
// permissions to read-write since the pages were already mapped by mmap
// and the kernel only backs them with physical frames on first touch.
type linuxFacade struct{}

// New returns the Facade for the running OS.
func New() Facade {
	return linuxFacade{}
}

func (linuxFacade) Reserve(n uintptr) (unsafe.Pointer, error) {
	b, err := unix.Mmap(-1, 0, int(n), unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, err
	}
	return unsafe.Pointer(unsafe.SliceData(b)), nil
}

func (linuxFacade) Commit(p unsafe.Pointer, n uintptr) (unsafe.Pointer, error) {
	if err := unix.Mprotect(unsafe.Slice((*byte)(p), n), unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return nil, err
	}
	return p, nil
}

func (f linuxFacade) ReserveCommit(n uintptr) (unsafe.Pointer, error) {
	b, err := unix.Mmap(-1, 0, int(n), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, err
	}
	return unsafe.Pointer(unsafe.SliceData(b)), nil
}

func (linuxFacade) Reset(p unsafe.Pointer, n uintptr) error {
	// MADV_DONTNEED drops the physical pages without disturbing the
	// mapping's permissions; the kernel re-zero-fills on next touch, no
	// explicit ResetUndo call is required to restore access on Linux.
	return unix.Madvise(unsafe.Slice((*byte)(p), n), unix.MADV_DONTNEED)
}

func (linuxFacade) ResetUndo(p unsafe.Pointer, n uintptr) (unsafe.Pointer, error) {
	// Nothing to undo: a MADV_DONTNEED range is already accessible and
	// will fault in fresh zeroed pages on next write.
	return p, nil
}

func (linuxFacade) Decommit(p unsafe.Pointer, n uintptr) error {
	if err := unix.Madvise(unsafe.Slice((*byte)(p), n), unix.MADV_DONTNEED); err != nil {
		return err
	}
	return unix.Mprotect(unsafe.Slice((*byte)(p), n), unix.PROT_NONE)
}

func (linuxFacade) Release(base unsafe.Pointer, n uintptr) error {
	return unix.Munmap(unsafe.Slice((*byte)(base), n))
}
