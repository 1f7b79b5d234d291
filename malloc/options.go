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
	"go.uber.org/zap"

	"github.com/LescieuxSimon/mylloc/malloc/largeobj"
	"github.com/LescieuxSimon/mylloc/malloc/vmm"
)

// Option configures a new Allocator.
type Option func(*config)

type config struct {
	facade vmm.Facade
	logger *zap.Logger
	large  largeobj.Allocator
}

// WithFacade overrides the virtual memory facade, mainly for tests that
// need to inject OS failures.
func WithFacade(f vmm.Facade) Option {
	return func(c *config) { c.facade = f }
}

// WithLogger overrides the zap logger used for lifecycle and
// OS-failure diagnostics. Defaults to zap.NewNop() so the allocator
// never requires a caller to wire logging just to run.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithLargeObjectAllocator overrides the upstream medium/large object
// path requests over 512 bytes are routed to. Defaults to
// largeobj.Unimplemented.
func WithLargeObjectAllocator(a largeobj.Allocator) Option {
	return func(c *config) { c.large = a }
}

func newConfig(opts []Option) *config {
	c := &config{
		logger: zap.NewNop(),
		large:  largeobj.Unimplemented{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.facade == nil {
		c.facade = vmm.New()
	}
	return c
}
