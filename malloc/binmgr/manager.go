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

package binmgr

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/LescieuxSimon/mylloc/malloc/vmm"
)

// Manager owns the reservation and the bin index table. It is safe for
// concurrent use from any number of goroutines.
type Manager struct {
	facade vmm.Facade

	base unsafe.Pointer
	size uintptr

	mu       sync.Mutex // guards inUse, freeHead, and page publication
	inUse    int64
	freeHead int32

	pages []atomic.Pointer[[]Bin]
}

// New reserves the manager's address range through facade. The
// reservation is not released until Close is called.
func New(facade vmm.Facade) (*Manager, error) {
	base, err := facade.Reserve(ReservationSize)
	if err != nil {
		return nil, err
	}
	return &Manager{
		facade:   facade,
		base:     base,
		size:     ReservationSize,
		freeHead: noNext,
		pages:    make([]atomic.Pointer[[]Bin], numPages),
	}, nil
}

// Close releases the manager's reservation. Callers must ensure no bin
// is in use when Close is called.
func (m *Manager) Close() error {
	if err := m.facade.Release(m.base, m.size); err != nil {
		return fmt.Errorf("binmgr: release reservation: %w: %w", ErrOSAPIFailure, err)
	}
	return nil
}

// NewBin returns a fresh bin with Used == 0 and Class == noClass, backed
// by BinSize bytes of committed, zeroed memory. It returns an error if
// the reservation is exhausted or the OS denies the commit.
func (m *Manager) NewBin() (*Bin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.freeHead != noNext {
		return m.popFreeBin()
	}
	return m.allocFreshBin()
}

func (m *Manager) popFreeBin() (*Bin, error) {
	idx := m.freeHead
	bin := m.binAt(idx)

	if _, err := m.facade.ResetUndo(bin.memory, BinSize); err != nil {
		// freeHead is left unchanged: the bin stays at the head of the
		// free list and the next NewBin call retries it.
		return nil, fmt.Errorf("binmgr: reset-undo bin: %w: %w", ErrOSAPIFailure, err)
	}

	m.freeHead = bin.nextFree
	bin.nextFree = noNext
	return bin, nil
}

func (m *Manager) allocFreshBin() (*Bin, error) {
	i := m.inUse
	if i >= totalBins {
		return nil, ErrOutOfAddressSpace
	}
	page, pos := i/binsPerPage, i%binsPerPage

	if m.pages[page].Load() == nil {
		ptr, err := m.facade.ReserveCommit(binsPerPage * unsafe.Sizeof(Bin{}))
		if err != nil {
			return nil, fmt.Errorf("binmgr: reserve index page: %w: %w", ErrOutOfPhysicalMemory, err)
		}
		slice := unsafe.Slice((*Bin)(ptr), binsPerPage)
		for b := range slice {
			slice[b].Class = noClass
			slice[b].nextFree = noNext
		}
		m.pages[page].Store(&slice)
	}

	bin := &(*m.pages[page].Load())[pos]
	memory := unsafe.Add(m.base, uintptr(i)*BinSize)

	if _, err := m.facade.Commit(memory, BinSize); err != nil {
		return nil, fmt.Errorf("binmgr: commit bin: %w: %w", ErrOutOfPhysicalMemory, err)
	}

	bin.memory = memory
	bin.Used = 0
	bin.Class = noClass
	m.inUse++
	return bin, nil
}

// ReturnBin places an emptied bin back on the free list. The caller
// attests Used == 0. The bin's physical memory is reset so its pages may
// be reclaimed without being written to swap.
func (m *Manager) ReturnBin(bin *Bin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.facade.Reset(bin.memory, BinSize); err != nil {
		return fmt.Errorf("binmgr: reset bin: %w: %w", ErrOSAPIFailure, err)
	}

	bin.Class = noClass
	bin.nextFree = m.freeHead
	m.freeHead = int32(m.indexOf(bin))
	return nil
}

// GetBinFor returns the bin whose tile contains ptr, or nil if ptr does
// not fall inside the reservation or lies in an index page that has
// never been allocated. It is read-only and may be called without
// holding any lock, racing safely against concurrent index-page
// publication via the atomic.Pointer store in allocFreshBin.
func (m *Manager) GetBinFor(ptr unsafe.Pointer) *Bin {
	offset := uintptr(ptr) - uintptr(m.base)
	if uintptr(ptr) < uintptr(m.base) || offset >= m.size {
		return nil
	}
	idx := offset / BinSize
	page, pos := idx/binsPerPage, idx%binsPerPage

	slicePtr := m.pages[page].Load()
	if slicePtr == nil {
		return nil
	}
	return &(*slicePtr)[pos]
}

func (m *Manager) binAt(idx int32) *Bin {
	page, pos := int64(idx)/binsPerPage, int64(idx)%binsPerPage
	return &(*m.pages[page].Load())[pos]
}

func (m *Manager) indexOf(bin *Bin) int64 {
	return int64((uintptr(bin.memory) - uintptr(m.base)) / BinSize)
}
