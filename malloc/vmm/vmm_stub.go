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

//go:build !linux && !darwin

package vmm

import "errors"

// New panics: this allocator's virtual memory facade only targets Linux
// and Darwin, the same two platforms the teacher package ships mmap_*.go
// for. Windows uses VirtualAlloc/VirtualFree, a different syscall shape
// outside this spec's scope.
func New() Facade {
	panic(errors.New("vmm: unsupported platform"))
}
