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

package malloc

import (
	"sync"
	"unsafe"

	"github.com/LescieuxSimon/mylloc/malloc/binmgr"
)

// block is the shape of a freed small object: its first two machine
// words are overwritten with list linkage. The remainder of the block is
// undefined until reallocated. A block only exists in this shape while
// it sits on a free list; once handed to a caller the memory is theirs.
type block struct {
	next *block
	prev *block
}

// freeList is the per-size-class free list head plus fresh-carve state.
// head is a sentinel: only its next field is meaningful, matching the
// source's "head aliases a block" trick without requiring callers to
// ever interpret the sentinel as a real node (head.prev is never read).
type freeList struct {
	mu sync.Mutex

	head block

	lastBin        *binmgr.Bin
	blockFormatted int
}

// allocate serves one block of the given class, preferring a previously
// freed block, then the bin currently being carved, then a new bin from
// mgr.
func (fl *freeList) allocate(class int, mgr *binmgr.Manager) (unsafe.Pointer, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.head.next != nil {
		blk := fl.head.next
		fl.head.next = blk.next
		if blk.next != nil {
			blk.next.prev = &fl.head
		}
		bin := mgr.GetBinFor(unsafe.Pointer(blk))
		bin.Used++
		return unsafe.Pointer(blk), nil
	}

	bpb := blocksPerBin(class)
	if fl.lastBin != nil && fl.blockFormatted < bpb {
		bin := fl.lastBin
		ptr := unsafe.Add(bin.Memory(), fl.blockFormatted*int(blockSize(class)))
		fl.blockFormatted++
		bin.Used++
		return ptr, nil
	}

	bin, err := mgr.NewBin()
	if err != nil {
		return nil, err
	}
	bin.Class = int32(class)
	bin.Used = 1
	fl.lastBin = bin
	fl.blockFormatted = 1
	return bin.Memory(), nil
}

// deallocate pushes ptr onto the front of the free list, decrements
// bin's use count, and drains+returns bin to mgr if it becomes empty.
func (fl *freeList) deallocate(ptr unsafe.Pointer, bin *binmgr.Bin, class int, mgr *binmgr.Manager) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	blk := (*block)(ptr)
	blk.next = fl.head.next
	blk.prev = &fl.head
	if fl.head.next != nil {
		fl.head.next.prev = blk
	}
	fl.head.next = blk

	bin.Used--
	if bin.Used != 0 {
		return nil
	}

	if fl.lastBin == bin {
		fl.lastBin = nil
		fl.blockFormatted = 0
	}
	fl.cleanBin(bin, class)
	return mgr.ReturnBin(bin)
}

// cleanBin walks every block-sized slot of bin and unlinks any that
// remain on the free list, so that after the bin is returned to the
// manager no pointer on this free list refers into its tile.
func (fl *freeList) cleanBin(bin *binmgr.Bin, class int) {
	bs := int(blockSize(class))
	count := blocksPerBin(class)
	base := bin.Memory()

	for i := 0; i < count; i++ {
		blk := (*block)(unsafe.Add(base, i*bs))
		if blk.next != nil {
			blk.next.prev = blk.prev
		}
		if blk.prev != nil {
			blk.prev.next = blk.next
		}
	}
}
