// Copyright 2024 MIMIRO AS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package internal

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"runtime/metrics"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// Metrics holds the statsd client shared by the server and the catalogue
// components. A real client is only used when DD_AGENT_HOST is set.
type Metrics struct {
	Statsd   statsd.ClientInterface
	reporter *memoryReporter
}

func NewMetrics(cfg *Config) (*Metrics, error) {
	agentEndpoint := os.Getenv("DD_AGENT_HOST")
	m := &Metrics{}
	if agentEndpoint != "" {
		opt := statsd.WithNamespace(cfg.ServiceName)
		LOG.Info().Msg("Statsd is configured on:" + agentEndpoint)
		c, err := statsd.New(agentEndpoint, opt)
		if err != nil {
			return nil, err
		}
		m.Statsd = c
		m.reporter = newMemoryReporter(c, 15*time.Second)
	} else {
		LOG.Debug().Msg("Using NoOp statsd client")
		m.Statsd = &statsd.NoOpClient{}
	}
	return m, nil
}

// Close stops the runtime reporter and flushes the client.
func (m *Metrics) Close() error {
	if m.reporter != nil {
		m.reporter.stop()
	}
	return m.Statsd.Close()
}

type memoryReporter struct {
	statsd statsd.ClientInterface
	done   chan struct{}
}

func newMemoryReporter(statsd statsd.ClientInterface, interval time.Duration) *memoryReporter {
	mr := &memoryReporter{
		statsd: statsd,
		done:   make(chan struct{}),
	}
	mr.start(interval)

	return mr
}

func (mr *memoryReporter) start(interval time.Duration) {
	descs := metrics.All()
	// Create a sample for each metric.
	samples := make([]metrics.Sample, len(descs))
	for i := range samples {
		samples[i].Name = descs[i].Name
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				mr.run(samples)
			case <-mr.done:
				return
			}
		}
	}()
}

func (mr *memoryReporter) stop() {
	close(mr.done)
}

func (mr *memoryReporter) run(samples []metrics.Sample) {
	metrics.Read(samples)

	for _, sample := range samples {
		name, value := strings.ReplaceAll(strings.ReplaceAll(sample.Name, "/", ".")[1:], ":", "."), sample.Value

		switch value.Kind() {
		case metrics.KindUint64:
			_ = mr.statsd.Gauge(name, float64(value.Uint64()), nil, 1)
		case metrics.KindFloat64:
			_ = mr.statsd.Gauge(name, value.Float64(), nil, 1)
		case metrics.KindFloat64Histogram:
			val := getHistogram(value.Float64Histogram())
			_ = mr.statsd.Gauge(name+".avg", val.avg, nil, 1)
			_ = mr.statsd.Count(name+".count", val.count, nil, 1)
			_ = mr.statsd.Gauge(name+".median", val.median, nil, 1)
			_ = mr.statsd.Gauge(name+".max", val.max, nil, 1)
		default:
			LOG.Debug().Str("metric", name).Msg(fmt.Sprintf("unexpected metric kind %v", value.Kind()))
		}
	}

	// legacy gauges kept for existing dashboards
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	_ = mr.statsd.Gauge("mem.alloc", float64(bToMb(m.Alloc)), nil, 1)
	_ = mr.statsd.Gauge("mem.totalAlloc", float64(bToMb(m.TotalAlloc)), nil, 1)
	_ = mr.statsd.Gauge("mem.sys", float64(bToMb(m.Sys)), nil, 1)
	_ = mr.statsd.Gauge("heap.obj", float64(m.Mallocs-m.Frees), nil, 1)
	_ = mr.statsd.Gauge("heap.sys", float64(bToMb(m.HeapSys)), nil, 1)
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}

type histogram struct {
	avg    float64
	count  int64
	median float64
	max    float64
}

func getHistogram(h *metrics.Float64Histogram) histogram {
	count := uint64(0)
	for i := range h.Counts {
		count += h.Counts[i]
	}
	maxValue := h.Buckets[len(h.Buckets)-1]
	if maxValue == math.Inf(1) {
		maxValue = h.Buckets[len(h.Buckets)-2]
	}

	median := medianBucket(h)
	avg := count / uint64(len(h.Counts))

	return histogram{
		avg:    float64(avg),
		max:    maxValue,
		count:  int64(count),
		median: median,
	}
}

func medianBucket(h *metrics.Float64Histogram) float64 {
	total := uint64(0)
	for _, count := range h.Counts {
		total += count
	}
	thresh := total / 2
	total = 0
	for i, count := range h.Counts {
		total += count
		if total >= thresh {
			return h.Buckets[i]
		}
	}
	return 0.0
}
