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
	"unsafe"

	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LescieuxSimon/mylloc/malloc"
	"github.com/LescieuxSimon/mylloc/malloc/largeobj"
	"github.com/LescieuxSimon/mylloc/malloc/vmm"
	"github.com/LescieuxSimon/mylloc/malloc/vmm/vmmtest"
)

func newAllocator(t *testing.T) (*malloc.Allocator, *vmmtest.FakeFacade) {
	t.Helper()
	fake := vmmtest.New(vmm.New())
	a, err := malloc.NewAllocator(malloc.WithFacade(fake))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, fake
}

func TestAllocateZeroSizeFails(t *testing.T) {
	a, _ := newAllocator(t)
	_, err := a.Allocate(0)
	assert.ErrorIs(t, err, malloc.ErrZeroSize)
}

func TestAllocateEachSizeClassBoundary(t *testing.T) {
	a, _ := newAllocator(t)

	sizes := []uintptr{1, 15, 16, 17, 31, 32, 33, 63, 64, 65, 127, 128, 129, 255, 256, 257, 511, 512}
	for _, size := range sizes {
		ptr, err := a.Allocate(size)
		require.NoErrorf(t, err, "size %d", size)
		require.NotNilf(t, ptr, "size %d", size)

		blockSize, ok := a.SizeClassOf(ptr)
		require.Truef(t, ok, "size %d", size)
		assert.GreaterOrEqualf(t, blockSize, size, "size %d served by block smaller than request", size)

		a.Free(ptr)
	}
}

func TestAllocateAboveCeilingDelegatesToLargeObjectPath(t *testing.T) {
	a, _ := newAllocator(t)

	_, err := a.Allocate(513)
	assert.ErrorIs(t, err, largeobj.ErrNotImplemented)
}

func TestFreeThenAllocateReusesBlock(t *testing.T) {
	a, _ := newAllocator(t)

	first, err := a.Allocate(64)
	require.NoError(t, err)
	a.Free(first)

	second, err := a.Allocate(64)
	require.NoError(t, err)
	assert.Equal(t, first, second, "freed block should be reused before a fresh one is carved")
}

func TestFreeNilIsNoOp(t *testing.T) {
	a, _ := newAllocator(t)
	assert.NotPanics(t, func() { a.Free(nil) })
}

func TestFreeForeignPointerIsNoOp(t *testing.T) {
	a, _ := newAllocator(t)

	var local byte
	assert.NotPanics(t, func() { a.Free(unsafe.Pointer(&local)) })
}

func TestWritesToOneClassDoNotCorruptAnother(t *testing.T) {
	a, _ := newAllocator(t)

	small, err := a.Allocate(16)
	require.NoError(t, err)
	large, err := a.Allocate(256)
	require.NoError(t, err)

	smallBuf := unsafe.Slice((*byte)(small), 16)
	largeBuf := unsafe.Slice((*byte)(large), 256)
	for i := range smallBuf {
		smallBuf[i] = 0xAA
	}
	for i := range largeBuf {
		largeBuf[i] = 0x55
	}
	for i, b := range smallBuf {
		require.Equalf(t, byte(0xAA), b, "byte %d of small block clobbered", i)
	}
	for i, b := range largeBuf {
		require.Equalf(t, byte(0x55), b, "byte %d of large block clobbered", i)
	}

	a.Free(small)
	a.Free(large)
}

func TestManyAllocationsAcrossBinsStayDistinct(t *testing.T) {
	a, _ := newAllocator(t)

	const n = 5000
	ptrs := make([]unsafe.Pointer, 0, n)
	seen := make(map[unsafe.Pointer]bool, n)
	for i := 0; i < n; i++ {
		ptr, err := a.Allocate(32)
		require.NoError(t, err)
		require.False(t, seen[ptr], "address handed out twice while live")
		seen[ptr] = true
		ptrs = append(ptrs, ptr)
	}
	for _, ptr := range ptrs {
		a.Free(ptr)
	}
}

func TestAllocateFailsWhenCommitIsExhausted(t *testing.T) {
	a, fake := newAllocator(t)
	fake.FailAfter("commit", 0)

	_, err := a.Allocate(16)
	assert.ErrorIs(t, err, vmmtest.ErrInjected)
	assert.ErrorIs(t, err, malloc.ErrOutOfPhysicalMemory)
}

func TestAllocateRecoversAfterTransientOSFailure(t *testing.T) {
	a, fake := newAllocator(t)

	fake.FailAfter("commit", 0)
	_, err := a.Allocate(16)
	require.Error(t, err)

	fake.FailAfter("commit", -1)
	ptr, err := a.Allocate(16)
	require.NoError(t, err)
	require.NotNil(t, ptr)
	a.Free(ptr)
}

func TestSizeClassOfUnknownPointerReportsFalse(t *testing.T) {
	a, _ := newAllocator(t)
	_, ok := a.SizeClassOf(nil)
	assert.False(t, ok)
}

func TestDefaultIsASingleton(t *testing.T) {
	assert.Same(t, malloc.Default(), malloc.Default())
}
