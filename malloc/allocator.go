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

// Package malloc is a general-purpose small-object allocator: a bin
// manager carves a 64 GiB reservation into 64 KiB bins on demand, and
// six size classes (16..512 bytes) serve allocations out of those bins
// through per-class doubly-linked free lists. Medium and large object
// requests are delegated to a pluggable largeobj.Allocator.
package malloc

import (
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/LescieuxSimon/mylloc/malloc/binmgr"
	"github.com/LescieuxSimon/mylloc/malloc/largeobj"
)

// Interface is the surface an Allocator exposes, factored out so the
// metrics and profiling decorators in this package can wrap either a
// real Allocator or a test double.
type Interface interface {
	Allocate(size uintptr) (unsafe.Pointer, error)
	Free(unsafe.Pointer)
	SizeClassOf(ptr unsafe.Pointer) (uintptr, bool)
}

// Allocator is the small-block allocator described by this package's
// documentation. The zero value is not usable; construct one with
// NewAllocator or use the process-wide Default.
type Allocator struct {
	mgr    *binmgr.Manager
	large  largeobj.Allocator
	logger *zap.Logger

	classes [numClasses]freeList
}

var _ Interface = (*Allocator)(nil)

// NewAllocator reserves a fresh 64 GiB address range and returns an
// allocator over it. Each Allocator owns an independent reservation;
// most programs want the process-wide Default instead.
func NewAllocator(opts ...Option) (*Allocator, error) {
	c := newConfig(opts)

	mgr, err := binmgr.New(c.facade)
	if err != nil {
		return nil, err
	}

	a := &Allocator{
		mgr:    mgr,
		large:  c.large,
		logger: c.logger,
	}

	c.logger.Info("malloc: allocator initialized",
		zap.Uint64("reservation_bytes", binmgr.ReservationSize),
		zap.Uint64("bin_bytes", binmgr.BinSize),
		zap.Int("num_classes", numClasses),
		zap.Uint64s("class_block_bytes", classBlockSizes()),
	)

	return a, nil
}

func classBlockSizes() []uint64 {
	sizes := make([]uint64, numClasses)
	for c := range sizes {
		sizes[c] = uint64(blockSize(c))
	}
	return sizes
}

// Close releases the allocator's reservation. Callers must not use the
// allocator, nor hold any block obtained from it, after Close returns.
func (a *Allocator) Close() error {
	return a.mgr.Close()
}

// Allocate serves a request of size bytes. Requests of 512 bytes or
// less are served by the size-class free lists; larger requests are
// delegated to the configured large object allocator. size must be
// nonzero.
func (a *Allocator) Allocate(size uintptr) (unsafe.Pointer, error) {
	if size == 0 {
		return nil, ErrZeroSize
	}

	class := classFor(size)
	if class == largeClass {
		ptr, _, err := a.large.Allocate(size)
		return ptr, err
	}

	ptr, err := a.classes[class].allocate(class, a.mgr)
	if err != nil {
		a.logger.Warn("malloc: allocate failed", zap.Int("class", class), zap.Error(err))
		return nil, err
	}
	return ptr, nil
}

// Free returns a block to its size class. ptr must be nil, a value
// previously returned by Allocate from the small-object path, or a
// value that does not lie in this allocator's reservation — each of
// those is handled (the last two as no-ops). Freeing an address the
// large object path returned is the large allocator's own concern; this
// method never dispatches to it. Double-free is undefined.
func (a *Allocator) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	bin := a.mgr.GetBinFor(ptr)
	if bin == nil {
		// Not ours: either a foreign pointer or one served by the large
		// object path, whose shim is responsible for its own teardown.
		return
	}

	class := int(bin.Class)
	if err := a.classes[class].deallocate(ptr, bin, class, a.mgr); err != nil {
		a.logger.Warn("malloc: bin recycling failed", zap.Int("class", class), zap.Error(err))
	}
}

// SizeClassOf reports the block size backing ptr, for allocations made
// through the small-object path. ok is false for nil, foreign, or large
// object pointers.
func (a *Allocator) SizeClassOf(ptr unsafe.Pointer) (uintptr, bool) {
	if ptr == nil {
		return 0, false
	}
	bin := a.mgr.GetBinFor(ptr)
	if bin == nil {
		return 0, false
	}
	return blockSize(int(bin.Class)), true
}

var (
	defaultOnce sync.Once
	defaultPtr  *Allocator
	defaultErr  error
)

// Default returns the process-wide allocator, constructing it lazily on
// first use so the allocator is available before general program
// initialization completes. It panics if the underlying reservation
// cannot be made; callers that need to handle that failure should use
// NewAllocator directly instead.
func Default() *Allocator {
	defaultOnce.Do(func() {
		defaultPtr, defaultErr = NewAllocator()
	})
	if defaultErr != nil {
		panic(defaultErr)
	}
	return defaultPtr
}

// Allocate serves size bytes from the process-wide Default allocator.
func Allocate(size uintptr) (unsafe.Pointer, error) {
	return Default().Allocate(size)
}

// Free returns ptr to the process-wide Default allocator.
func Free(ptr unsafe.Pointer) {
	Default().Free(ptr)
}
