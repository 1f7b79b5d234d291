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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/LescieuxSimon/mylloc/malloc"
)

func TestAllocatorMetricsRegistersCollectors(t *testing.T) {
	a, _ := newAllocator(t)
	reg := prometheus.NewRegistry()

	m, err := malloc.NewAllocatorMetrics[*malloc.Allocator](a, reg)
	require.NoError(t, err)

	ptr, err := m.Allocate(32)
	require.NoError(t, err)
	require.NotNil(t, ptr)

	count, err := testutil.GatherAndCount(reg, "malloc_allocate_objects_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// Exports are coalesced onto a once-per-second timer, so the counter
	// value itself lags the call that triggered it.
	require.Eventually(t, func() bool {
		families, err := reg.Gather()
		require.NoError(t, err)
		for _, f := range families {
			if f.GetName() != "malloc_allocate_objects_total" {
				continue
			}
			return f.Metric[0].GetCounter().GetValue() == 1
		}
		return false
	}, 2*time.Second, 50*time.Millisecond)

	m.Free(ptr)
}

func TestAllocatorMetricsRejectsDoubleRegistration(t *testing.T) {
	a, _ := newAllocator(t)
	reg := prometheus.NewRegistry()

	_, err := malloc.NewAllocatorMetrics[*malloc.Allocator](a, reg)
	require.NoError(t, err)

	_, err = malloc.NewAllocatorMetrics[*malloc.Allocator](a, reg)
	require.Error(t, err)
}
