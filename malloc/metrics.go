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
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/prometheus/client_golang/prometheus"
)

// AllocatorMetrics wraps an Interface and reports allocate/free counts
// and in-use bytes through Prometheus. It never touches a global
// registry: callers pass in whichever prometheus.Registerer they want
// the metrics attached to.
type AllocatorMetrics[U Interface] struct {
	upstream U

	allocateBytesCounter   prometheus.Counter
	allocateObjectsCounter prometheus.Counter
	inuseBytesGauge        prometheus.Gauge
	inuseObjectsGauge      prometheus.Gauge

	allocateBytes   *shardedCounter
	allocateObjects *shardedCounter
	inuseBytes      *shardedCounter
	inuseObjects    *shardedCounter

	updating atomic.Bool
}

var _ Interface = (*AllocatorMetrics[*Allocator])(nil)

// NewAllocatorMetrics wraps upstream and registers its counters and
// gauges with reg.
func NewAllocatorMetrics[U Interface](upstream U, reg prometheus.Registerer) (*AllocatorMetrics[U], error) {
	m := &AllocatorMetrics[U]{
		upstream: upstream,

		allocateBytesCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "malloc_allocate_bytes_total",
			Help: "Total bytes ever requested through Allocate.",
		}),
		allocateObjectsCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "malloc_allocate_objects_total",
			Help: "Total calls to Allocate that returned successfully.",
		}),
		inuseBytesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "malloc_inuse_bytes",
			Help: "Bytes currently outstanding (class block size granularity).",
		}),
		inuseObjectsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "malloc_inuse_objects",
			Help: "Objects currently outstanding.",
		}),

		allocateBytes:   newShardedCounter(runtime.GOMAXPROCS(0)),
		allocateObjects: newShardedCounter(runtime.GOMAXPROCS(0)),
		inuseBytes:      newShardedCounter(runtime.GOMAXPROCS(0)),
		inuseObjects:    newShardedCounter(runtime.GOMAXPROCS(0)),
	}

	for _, c := range []prometheus.Collector{
		m.allocateBytesCounter,
		m.allocateObjectsCounter,
		m.inuseBytesGauge,
		m.inuseObjectsGauge,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *AllocatorMetrics[U]) Allocate(size uintptr) (unsafe.Pointer, error) {
	ptr, err := m.upstream.Allocate(size)
	if err != nil {
		return nil, err
	}
	m.allocateBytes.add(int64(size))
	m.allocateObjects.add(1)
	inuse := size
	if bs, ok := m.upstream.SizeClassOf(ptr); ok {
		inuse = bs
	}
	m.inuseBytes.add(int64(inuse))
	m.inuseObjects.add(1)
	m.triggerUpdate()
	return ptr, nil
}

func (m *AllocatorMetrics[U]) Free(ptr unsafe.Pointer) {
	size, ok := m.upstream.SizeClassOf(ptr)
	m.upstream.Free(ptr)
	if !ok {
		return
	}
	m.inuseBytes.add(-int64(size))
	m.inuseObjects.add(-1)
	m.triggerUpdate()
}

func (m *AllocatorMetrics[U]) SizeClassOf(ptr unsafe.Pointer) (uintptr, bool) {
	return m.upstream.SizeClassOf(ptr)
}

// triggerUpdate coalesces bursts of allocate/free calls into one
// Prometheus export per second, instead of touching the Counter/Gauge
// on every call.
func (m *AllocatorMetrics[U]) triggerUpdate() {
	if !m.updating.CompareAndSwap(false, true) {
		return
	}
	time.AfterFunc(time.Second, func() {
		m.allocateBytesCounter.Add(float64(m.allocateBytes.sum()))
		m.allocateObjectsCounter.Add(float64(m.allocateObjects.sum()))
		m.inuseBytesGauge.Add(float64(m.inuseBytes.sum()))
		m.inuseObjectsGauge.Add(float64(m.inuseObjects.sum()))
		m.updating.Store(false)
	})
}
