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

// Command mallocstat is a thin diagnostic binary over the malloc
// package: it drives a short allocate/free workload against a fresh
// Allocator, wires the metrics and profiling decorators around it, and
// either prints a snapshot or serves it over /metrics and /debug/pprof.
// It carries no allocator logic of its own.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/LescieuxSimon/mylloc/malloc"
)

// tunables are the knobs an operator may override from a TOML file.
// Fields the file does not set keep the values from defaultTunables.
type tunables struct {
	SampleFraction uint32 `toml:"sample_fraction"`
	ListenAddr     string `toml:"listen_addr"`
	WorkloadRounds int    `toml:"workload_rounds"`
}

func defaultTunables() tunables {
	return tunables{
		SampleFraction: 100,
		ListenAddr:     "",
		WorkloadRounds: 100000,
	}
}

func loadTunables(path string) (tunables, error) {
	t := defaultTunables()
	if path == "" {
		return t, nil
	}
	_, err := toml.DecodeFile(path, &t)
	return t, err
}

func main() {
	configPath := flag.String("config", "", "optional TOML file with sample_fraction, listen_addr, workload_rounds")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := loadTunables(*configPath)
	if err != nil {
		logger.Fatal("mallocstat: failed to load config", zap.Error(err))
	}

	a, err := malloc.NewAllocator(malloc.WithLogger(logger))
	if err != nil {
		logger.Fatal("mallocstat: failed to construct allocator", zap.Error(err))
	}
	defer a.Close()

	reg := prometheus.NewRegistry()
	metrics, err := malloc.NewAllocatorMetrics[*malloc.Allocator](a, reg)
	if err != nil {
		logger.Fatal("mallocstat: failed to register metrics", zap.Error(err))
	}
	profiler := malloc.NewProfilingAllocator[*malloc.AllocatorMetrics[*malloc.Allocator]](metrics, cfg.SampleFraction)

	runWorkload(profiler, cfg.WorkloadRounds)

	if cfg.ListenAddr != "" {
		serve(logger, reg, profiler, cfg.ListenAddr)
		return
	}

	printSnapshot(logger, reg)
}

func runWorkload(a *malloc.ProfilingAllocator[*malloc.AllocatorMetrics[*malloc.Allocator]], rounds int) {
	sizes := []uintptr{16, 32, 64, 128, 256, 512}
	for i := 0; i < rounds; i++ {
		size := sizes[i%len(sizes)]
		ptr, err := a.Allocate(size)
		if err != nil {
			continue
		}
		a.Free(ptr)
	}
}

func printSnapshot(logger *zap.Logger, reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		logger.Fatal("mallocstat: failed to gather metrics", zap.Error(err))
	}
	for _, f := range families {
		fmt.Printf("%s: %s\n", f.GetName(), f.GetHelp())
		for _, m := range f.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				fmt.Printf("  value=%v\n", m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				fmt.Printf("  value=%v\n", m.GetGauge().GetValue())
			}
		}
	}
}

func serve(logger *zap.Logger, reg *prometheus.Registry, profiler *malloc.ProfilingAllocator[*malloc.AllocatorMetrics[*malloc.Allocator]], addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/pprof", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		if err := profiler.Profile().Write(w); err != nil {
			logger.Warn("mallocstat: failed to write profile", zap.Error(err))
		}
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("mallocstat: serving", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("mallocstat: server failed", zap.Error(err))
	}
}
