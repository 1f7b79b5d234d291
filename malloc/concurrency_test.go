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

package malloc_test

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/require"
)

// TestConcurrentAllocateFreeStress runs 8 workers through 10,000 rounds
// of allocate-write-free each, fanned out over a bounded ants.Pool
// instead of raw goroutines, and asserts no address is ever handed to
// two workers at once.
func TestConcurrentAllocateFreeStress(t *testing.T) {
	a, _ := newAllocator(t)

	const workers = 8
	const rounds = 10000

	pool, err := ants.NewPool(workers)
	require.NoError(t, err)
	defer pool.Release()

	var live sync.Map // unsafe.Pointer -> struct{}
	var wg sync.WaitGroup
	var failures atomic.Int64

	sizes := []uintptr{16, 32, 64, 128, 256, 512}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		worker := w
		err := pool.Submit(func() {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(worker)))
			for i := 0; i < rounds; i++ {
				size := sizes[rng.Intn(len(sizes))]
				ptr, err := a.Allocate(size)
				if err != nil {
					failures.Add(1)
					continue
				}
				if _, loaded := live.LoadOrStore(ptr, struct{}{}); loaded {
					t.Errorf("worker %d: address %p handed out while still live", worker, ptr)
				}

				buf := unsafe.Slice((*byte)(ptr), 1)
				buf[0] = byte(worker)

				live.Delete(ptr)
				a.Free(ptr)
			}
		})
		require.NoError(t, err)
	}

	wg.Wait()
	require.Equal(t, int64(0), failures.Load())
}
