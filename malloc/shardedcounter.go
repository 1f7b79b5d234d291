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
	"sync/atomic"
	_ "unsafe" // for go:linkname
)

// shardedCounter spreads a hot int64 counter across one atomic.Int64 per
// shard to keep concurrent Add calls from a small number of processors
// from contending on a single cache line. Picked over a single
// atomic.Int64 because the metrics decorator's Allocate/Free path runs
// on every small-object request.
type shardedCounter struct {
	shards []atomic.Int64
}

func newShardedCounter(n int) *shardedCounter {
	if n < 1 {
		n = 1
	}
	return &shardedCounter{shards: make([]atomic.Int64, n)}
}

func (s *shardedCounter) add(delta int64) {
	s.shards[shardIndex()%len(s.shards)].Add(delta)
}

// sum totals and resets every shard, for periodic export to Prometheus.
func (s *shardedCounter) sum() int64 {
	var total int64
	for i := range s.shards {
		total += s.shards[i].Swap(0)
	}
	return total
}

// shardIndex pins the calling goroutine to its processor just long
// enough to read its id, the same trick the sharded pool allocator this
// package is modeled on uses to spread its per-class channels.
func shardIndex() int {
	pid := runtimeProcPin()
	runtimeProcUnpin()
	return pid
}

//go:linkname runtimeProcPin runtime.procPin
func runtimeProcPin() int

//go:linkname runtimeProcUnpin runtime.procUnpin
func runtimeProcUnpin()
