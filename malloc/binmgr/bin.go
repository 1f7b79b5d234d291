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

// Package binmgr is the bin manager: it owns one large virtual address
// reservation and carves it into fixed-size 64 KiB bins, lazily
// committing and decommitting the OS pages backing each bin as they are
// loaned out to and returned by a size-class allocator.
package binmgr

import "unsafe"

const (
	// BinSize is the tile size carved out of the reservation. It is also
	// the unit of commit/reset passed to the vmm.Facade.
	BinSize = 1 << 16 // 64 KiB

	// ReservationSize is the total address range the Manager reserves at
	// construction, matching the original 0x1000000000 constant.
	ReservationSize = 1 << 36 // 64 GiB

	// binsPerPage is how many Bin records share one lazily-allocated
	// index page. It is a bucketing granularity for the index table, not
	// derived from unsafe.Sizeof(Bin{}).
	binsPerPage = 2048

	totalBins = ReservationSize / BinSize
	numPages  = (totalBins + binsPerPage - 1) / binsPerPage

	// noClass marks a Bin not yet dedicated to a size class.
	noClass = -1
	// noNext marks the end of the BM free list.
	noNext = -1
)

// Bin is one 64 KiB tile of the reservation. It is either owned by
// exactly one size class (used counts live blocks carved from it) or it
// sits on the Manager's free list with used == 0 and its physical pages
// reset; never both.
type Bin struct {
	memory   unsafe.Pointer // base address of the tile
	Class    int32          // size-class index, noClass while on the free list
	Used     int32          // outstanding allocations drawn from this bin
	nextFree int32          // BM free-list link, noNext if not linked
}

// Memory returns the bin's tile base address.
func (b *Bin) Memory() unsafe.Pointer {
	return b.memory
}
