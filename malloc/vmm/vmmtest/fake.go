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

// Package vmmtest provides a fake vmm.Facade for exercising the bin
// manager's OS-failure paths: it passes calls through to a real facade
// and fails selected operations on demand.
package vmmtest

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/LescieuxSimon/mylloc/malloc/vmm"
)

// ErrInjected is returned by a FakeFacade operation once its failure
// budget for that operation is exhausted.
var ErrInjected = errors.New("vmmtest: injected failure")

// FakeFacade wraps a real vmm.Facade and lets tests make any named
// operation fail after a configurable number of successful calls,
// modeled on the real allocator scenario "allocate until OS commit
// fails" (spec scenario 6).
type FakeFacade struct {
	mu       sync.Mutex
	upstream vmm.Facade
	failAt   map[string]int // op -> calls remaining before failure, -1 = never
}

var _ vmm.Facade = (*FakeFacade)(nil)

// New wraps upstream with no injected failures by default.
func New(upstream vmm.Facade) *FakeFacade {
	return &FakeFacade{
		upstream: upstream,
		failAt: map[string]int{
			"reserve":       -1,
			"commit":        -1,
			"reserveCommit": -1,
			"reset":         -1,
			"resetUndo":     -1,
			"decommit":      -1,
			"release":       -1,
		},
	}
}

// FailAfter makes op return ErrInjected starting with its (n+1)th call.
func (f *FakeFacade) FailAfter(op string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAt[op] = n
}

func (f *FakeFacade) shouldFail(op string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	remaining, ok := f.failAt[op]
	if !ok || remaining < 0 {
		return false
	}
	if remaining == 0 {
		return true
	}
	f.failAt[op] = remaining - 1
	return false
}

func (f *FakeFacade) Reserve(n uintptr) (unsafe.Pointer, error) {
	if f.shouldFail("reserve") {
		return nil, ErrInjected
	}
	return f.upstream.Reserve(n)
}

func (f *FakeFacade) Commit(p unsafe.Pointer, n uintptr) (unsafe.Pointer, error) {
	if f.shouldFail("commit") {
		return nil, ErrInjected
	}
	return f.upstream.Commit(p, n)
}

func (f *FakeFacade) ReserveCommit(n uintptr) (unsafe.Pointer, error) {
	if f.shouldFail("reserveCommit") {
		return nil, ErrInjected
	}
	return f.upstream.ReserveCommit(n)
}

func (f *FakeFacade) Reset(p unsafe.Pointer, n uintptr) error {
	if f.shouldFail("reset") {
		return ErrInjected
	}
	return f.upstream.Reset(p, n)
}

func (f *FakeFacade) ResetUndo(p unsafe.Pointer, n uintptr) (unsafe.Pointer, error) {
	if f.shouldFail("resetUndo") {
		return nil, ErrInjected
	}
	return f.upstream.ResetUndo(p, n)
}

func (f *FakeFacade) Decommit(p unsafe.Pointer, n uintptr) error {
	if f.shouldFail("decommit") {
		return ErrInjected
	}
	return f.upstream.Decommit(p, n)
}

func (f *FakeFacade) Release(base unsafe.Pointer, n uintptr) error {
	if f.shouldFail("release") {
		return ErrInjected
	}
	return f.upstream.Release(base, n)
}
