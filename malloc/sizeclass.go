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
	"math/bits"

	"github.com/LescieuxSimon/mylloc/malloc/binmgr"
)

const (
	minClassSize = 16  // 2^4
	maxClassSize = 512 // 2^9
	numClasses   = 6

	largeClass = -1
)

// classFor returns the smallest size class whose blocks are >= size, or
// largeClass if size exceeds what the small-block path serves. size must
// be nonzero; callers reject size == 0 before calling this.
func classFor(size uintptr) int {
	if size > maxClassSize {
		return largeClass
	}
	if size <= minClassSize {
		return 0
	}
	// bit_width(size-1) - 4: the smallest power-of-two class size >= size.
	return bits.Len(uint(size-1)) - 4
}

// blockSize is the block size served by class, 16 << class.
func blockSize(class int) uintptr {
	return minClassSize << uint(class)
}

// blocksPerBin is how many blocks of class fit in one bin.
func blocksPerBin(class int) int {
	return binmgr.BinSize / int(blockSize(class))
}
