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

package vmm_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LescieuxSimon/mylloc/malloc/vmm"
)

func TestReserveCommitRoundTrip(t *testing.T) {
	f := vmm.New()

	const n = 4 * vmm.PageSize
	base, err := f.Reserve(n)
	require.NoError(t, err)
	defer func() { _ = f.Release(base, n) }()

	_, err = f.Commit(base, n)
	require.NoError(t, err)

	buf := unsafe.Slice((*byte)(base), n)
	buf[0] = 0xAB
	buf[n-1] = 0xCD
	assert.Equal(t, byte(0xAB), buf[0])
	assert.Equal(t, byte(0xCD), buf[n-1])
}

func TestReserveCommitIsPreZeroed(t *testing.T) {
	f := vmm.New()

	const n = vmm.PageSize
	base, err := f.ReserveCommit(n)
	require.NoError(t, err)
	defer func() { _ = f.Release(base, n) }()

	buf := unsafe.Slice((*byte)(base), n)
	for i, b := range buf {
		require.Equalf(t, byte(0), b, "byte %d not zero", i)
	}
}

func TestResetThenResetUndoKeepsRangeUsable(t *testing.T) {
	f := vmm.New()

	const n = vmm.PageSize
	base, err := f.ReserveCommit(n)
	require.NoError(t, err)
	defer func() { _ = f.Release(base, n) }()

	buf := unsafe.Slice((*byte)(base), n)
	buf[0] = 0x42

	require.NoError(t, f.Reset(base, n))
	_, err = f.ResetUndo(base, n)
	require.NoError(t, err)

	buf[0] = 0x99
	assert.Equal(t, byte(0x99), buf[0])
}

func TestDecommitThenCommitKeepsRangeUsable(t *testing.T) {
	f := vmm.New()

	const n = vmm.PageSize
	base, err := f.Reserve(n)
	require.NoError(t, err)
	defer func() { _ = f.Release(base, n) }()

	_, err = f.Commit(base, n)
	require.NoError(t, err)
	require.NoError(t, f.Decommit(base, n))

	_, err = f.Commit(base, n)
	require.NoError(t, err)

	buf := unsafe.Slice((*byte)(base), n)
	buf[0] = 7
	assert.Equal(t, byte(7), buf[0])
}

func TestReleaseDisjointReservationsDoNotOverlap(t *testing.T) {
	f := vmm.New()

	const n = vmm.PageSize
	a, err := f.ReserveCommit(n)
	require.NoError(t, err)
	defer func() { _ = f.Release(a, n) }()

	b, err := f.ReserveCommit(n)
	require.NoError(t, err)
	defer func() { _ = f.Release(b, n) }()

	assert.NotEqual(t, a, b)
}
