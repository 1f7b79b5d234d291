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
	"hash/maphash"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/google/pprof/profile"
)

// stackID identifies a unique call stack sampled at allocation time.
type stackID uint64

// stackSeed is shared by every stackIDFor call so that identical call
// stacks always hash to the same stackID.
var stackSeed = maphash.MakeSeed()

func stackIDFor(skip int) (stackID, []uintptr) {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(2+skip, pcs)
	pcs = pcs[:n]

	var h maphash.Hash
	h.SetSeed(stackSeed)
	for _, pc := range pcs {
		h.Write(unsafe.Slice((*byte)(unsafe.Pointer(&pc)), unsafe.Sizeof(pc)))
	}
	return stackID(h.Sum64()), pcs
}

type stackStats struct {
	pcs            []uintptr
	allocObjects   atomic.Int64
	allocBytes     atomic.Int64
	inuseObjects   atomic.Int64
	inuseBytes     atomic.Int64
}

// ProfilingAllocator wraps an Interface and samples roughly 1-in-fraction
// allocations, attributing each sampled allocation to the call stack
// that made it. Profile renders the accumulated samples as a
// *profile.Profile consumable by `go tool pprof`.
type ProfilingAllocator[U Interface] struct {
	upstream U
	fraction uint32
	counter  atomic.Uint32

	mu     sync.Mutex
	stacks map[stackID]*stackStats

	sampled sync.Map // unsafe.Pointer -> stackID, for sampled live allocations
}

var _ Interface = (*ProfilingAllocator[*Allocator])(nil)

// NewProfilingAllocator wraps upstream, sampling one in every fraction
// allocations. A fraction of 1 samples every allocation.
func NewProfilingAllocator[U Interface](upstream U, fraction uint32) *ProfilingAllocator[U] {
	if fraction == 0 {
		fraction = 1
	}
	return &ProfilingAllocator[U]{
		upstream: upstream,
		fraction: fraction,
		stacks:   make(map[stackID]*stackStats),
	}
}

func (p *ProfilingAllocator[U]) shouldSample() bool {
	return p.counter.Add(1)%p.fraction == 0
}

func (p *ProfilingAllocator[U]) Allocate(size uintptr) (unsafe.Pointer, error) {
	ptr, err := p.upstream.Allocate(size)
	if err != nil {
		return nil, err
	}
	if !p.shouldSample() {
		return ptr, nil
	}

	id, pcs := stackIDFor(1)
	stats := p.statsFor(id, pcs)
	stats.allocObjects.Add(1)
	stats.allocBytes.Add(int64(size))
	stats.inuseObjects.Add(1)
	stats.inuseBytes.Add(int64(size))
	p.sampled.Store(ptr, id)

	return ptr, nil
}

func (p *ProfilingAllocator[U]) Free(ptr unsafe.Pointer) {
	size, ok := p.upstream.SizeClassOf(ptr)
	p.upstream.Free(ptr)
	if !ok {
		return
	}
	v, loaded := p.sampled.LoadAndDelete(ptr)
	if !loaded {
		return
	}
	p.mu.Lock()
	stats := p.stacks[v.(stackID)]
	p.mu.Unlock()
	if stats == nil {
		return
	}
	stats.inuseObjects.Add(-1)
	stats.inuseBytes.Add(-int64(size))
}

func (p *ProfilingAllocator[U]) SizeClassOf(ptr unsafe.Pointer) (uintptr, bool) {
	return p.upstream.SizeClassOf(ptr)
}

func (p *ProfilingAllocator[U]) statsFor(id stackID, pcs []uintptr) *stackStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stacks[id]
	if !ok {
		s = &stackStats{pcs: pcs}
		p.stacks[id] = s
	}
	return s
}

// Profile renders the accumulated samples as a pprof heap profile with
// allocated/inuse object and byte sample types, one Sample per distinct
// call stack observed.
func (p *ProfilingAllocator[U]) Profile() *profile.Profile {
	p.mu.Lock()
	defer p.mu.Unlock()

	prof := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "alloc_objects", Unit: "count"},
			{Type: "alloc_bytes", Unit: "bytes"},
			{Type: "inuse_objects", Unit: "count"},
			{Type: "inuse_bytes", Unit: "bytes"},
		},
		PeriodType: &profile.ValueType{Type: "space", Unit: "bytes"},
		Period:     int64(p.fraction),
	}

	functions := map[string]*profile.Function{}
	locations := map[uintptr]*profile.Location{}

	for _, stats := range p.stacks {
		var locs []*profile.Location
		frames := runtime.CallersFrames(stats.pcs)
		for {
			frame, more := frames.Next()
			fn, ok := functions[frame.Function]
			if !ok {
				fn = &profile.Function{
					ID:       uint64(len(functions) + 1),
					Name:     frame.Function,
					Filename: frame.File,
				}
				functions[frame.Function] = fn
				prof.Function = append(prof.Function, fn)
			}
			pc := uintptr(frame.PC)
			loc, ok := locations[pc]
			if !ok {
				loc = &profile.Location{
					ID:      uint64(len(locations) + 1),
					Address: uint64(pc),
					Line: []profile.Line{{
						Function: fn,
						Line:     int64(frame.Line),
					}},
				}
				locations[pc] = loc
				prof.Location = append(prof.Location, loc)
			}
			locs = append(locs, loc)
			if !more {
				break
			}
		}

		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: locs,
			Value: []int64{
				stats.allocObjects.Load(),
				stats.allocBytes.Load(),
				stats.inuseObjects.Load(),
				stats.inuseBytes.Load(),
			},
		})
	}

	return prof
}
