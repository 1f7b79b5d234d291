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

package binmgr

import "errors"

var (
	// ErrOutOfAddressSpace is returned by NewBin when the reservation has
	// no room left for another bin.
	ErrOutOfAddressSpace = errors.New("binmgr: reservation exhausted")

	// ErrOutOfPhysicalMemory wraps a facade Commit or ReserveCommit
	// denial: the OS has no more RAM to back a bin's pages or an index
	// page.
	ErrOutOfPhysicalMemory = errors.New("binmgr: out of physical memory")

	// ErrOSAPIFailure wraps a facade Reset/ResetUndo/Release denial. A
	// failed Reserve in New is returned unwrapped.
	ErrOSAPIFailure = errors.New("binmgr: OS virtual memory call failed")
)
