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
	"errors"

	"github.com/LescieuxSimon/mylloc/malloc/binmgr"
)

var (
	// ErrZeroSize is returned for a size-0 request. The source this spec
	// is derived from leaves size-0 behavior unspecified; this
	// implementation rejects it outright rather than guessing intent.
	ErrZeroSize = errors.New("malloc: size must be nonzero")

	// ErrOutOfPhysicalMemory surfaces an OS commit denial from the
	// virtual memory facade. It is the same sentinel binmgr wraps its
	// Commit failures in; aliased here so callers of this package never
	// need to import binmgr to check it with errors.Is.
	ErrOutOfPhysicalMemory = binmgr.ErrOutOfPhysicalMemory

	// ErrOSAPIFailure surfaces a reset/reset-undo/decommit/release
	// denial from the virtual memory facade, aliasing binmgr's sentinel
	// of the same name.
	ErrOSAPIFailure = binmgr.ErrOSAPIFailure
)

