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

//go:build darwin

package vmm

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// darwin's madvise does not offer MADV_DONTNEED semantics equivalent to
// Linux; MADV_FREE_REUSABLE/MADV_FREE_REUSE is the documented pairing for
// "this range is reusable, go ahead and reclaim it" / "I'm using it
// again", matching the teacher's mmap_darwin.go constants exactly.
const (
	madvFreeReusable = 0x7
	madvFreeReuse    = 0x8
)

type darwinFacade struct{}

// New returns the Facade for the running OS.
func New() Facade {
	return darwinFacade{}
}

func (darwinFacade) Reserve(n uintptr) (unsafe.Pointer, error) {
	b, err := unix.Mmap(-1, 0, int(n), unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}
	return unsafe.Pointer(unsafe.SliceData(b)), nil
}

func (darwinFacade) Commit(p unsafe.Pointer, n uintptr) (unsafe.Pointer, error) {
	if err := unix.Mprotect(unsafe.Slice((*byte)(p), n), unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return nil, err
	}
	return p, nil
}

func (f darwinFacade) ReserveCommit(n uintptr) (unsafe.Pointer, error) {
	b, err := unix.Mmap(-1, 0, int(n), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}
	return unsafe.Pointer(unsafe.SliceData(b)), nil
}

func (darwinFacade) Reset(p unsafe.Pointer, n uintptr) error {
	return unix.Madvise(unsafe.Slice((*byte)(p), n), madvFreeReusable)
}

func (darwinFacade) ResetUndo(p unsafe.Pointer, n uintptr) (unsafe.Pointer, error) {
	if err := unix.Madvise(unsafe.Slice((*byte)(p), n), madvFreeReuse); err != nil {
		return nil, err
	}
	clear(unsafe.Slice((*byte)(p), n))
	return p, nil
}

func (darwinFacade) Decommit(p unsafe.Pointer, n uintptr) error {
	if err := unix.Madvise(unsafe.Slice((*byte)(p), n), madvFreeReusable); err != nil {
		return err
	}
	return unix.Mprotect(unsafe.Slice((*byte)(p), n), unix.PROT_NONE)
}

func (darwinFacade) Release(base unsafe.Pointer, n uintptr) error {
	return unix.Munmap(unsafe.Slice((*byte)(base), n))
}
