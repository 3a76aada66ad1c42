// Copyright 2026 Patrick J. Scruggs
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

package slogbaggage

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks interceptor delivery counters. It is safe for concurrent use
// and every method is a no-op on a nil receiver.
type Metrics struct {
	mu          sync.Mutex
	appended    uint64
	mergeFaults uint64
	delivered   map[string]uint64
	failed      map[string]uint64
	panics      map[string]uint64
	dropped     map[string]uint64
}

// NewMetrics constructs a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{
		delivered: make(map[string]uint64),
		failed:    make(map[string]uint64),
		panics:    make(map[string]uint64),
		dropped:   make(map[string]uint64),
	}
}

// IncAppended records an event accepted by the interceptor.
func (m *Metrics) IncAppended() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended++
}

// IncMergeFault records an event rejected by a merge fault.
func (m *Metrics) IncMergeFault() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeFaults++
}

// IncDelivered records a snapshot accepted by sink.
func (m *Metrics) IncDelivered(sink string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered[sink]++
}

// IncFailed records a sink fault. recovered marks faults raised as panics.
func (m *Metrics) IncFailed(sink string, recovered bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[sink]++
	if recovered {
		m.panics[sink]++
	}
}

// IncDropped records a snapshot discarded by an asynchronous sink before
// delivery.
func (m *Metrics) IncDropped(sink string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[sink]++
}

// SnapshotAppended returns the number of accepted events.
func (m *Metrics) SnapshotAppended() uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appended
}

// SnapshotMergeFaults returns the number of merge faults.
func (m *Metrics) SnapshotMergeFaults() uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mergeFaults
}

// SnapshotDelivered returns a copy of per-sink delivery counters.
func (m *Metrics) SnapshotDelivered() map[string]uint64 {
	return m.copyCounter(func(m *Metrics) map[string]uint64 { return m.delivered })
}

// SnapshotFailed returns a copy of per-sink fault counters.
func (m *Metrics) SnapshotFailed() map[string]uint64 {
	return m.copyCounter(func(m *Metrics) map[string]uint64 { return m.failed })
}

// SnapshotPanics returns a copy of per-sink recovered panic counters.
func (m *Metrics) SnapshotPanics() map[string]uint64 {
	return m.copyCounter(func(m *Metrics) map[string]uint64 { return m.panics })
}

// SnapshotDropped returns a copy of per-sink drop counters.
func (m *Metrics) SnapshotDropped() map[string]uint64 {
	return m.copyCounter(func(m *Metrics) map[string]uint64 { return m.dropped })
}

func (m *Metrics) copyCounter(pick func(*Metrics) map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64)
	if m == nil {
		return out
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range pick(m) {
		out[k] = v
	}
	return out
}

var (
	appendedDesc = prometheus.NewDesc(
		"slogbaggage_events_appended_total",
		"Log events accepted by the interceptor.",
		nil, nil,
	)
	mergeFaultsDesc = prometheus.NewDesc(
		"slogbaggage_merge_faults_total",
		"Log events rejected because a structured value could not be rendered.",
		nil, nil,
	)
	deliveredDesc = prometheus.NewDesc(
		"slogbaggage_sink_delivered_total",
		"Snapshots accepted by a sink.",
		[]string{"sink"}, nil,
	)
	failedDesc = prometheus.NewDesc(
		"slogbaggage_sink_faults_total",
		"Snapshots a sink failed to accept.",
		[]string{"sink"}, nil,
	)
	panicsDesc = prometheus.NewDesc(
		"slogbaggage_sink_panics_total",
		"Sink faults raised as panics.",
		[]string{"sink"}, nil,
	)
	droppedDesc = prometheus.NewDesc(
		"slogbaggage_sink_dropped_total",
		"Snapshots discarded by an asynchronous sink queue.",
		[]string{"sink"}, nil,
	)
)

// Collector exposes m as a prometheus.Collector.
func (m *Metrics) Collector() prometheus.Collector {
	return metricsCollector{m: m}
}

type metricsCollector struct{ m *Metrics }

// Describe implements prometheus.Collector.
func (c metricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- appendedDesc
	ch <- mergeFaultsDesc
	ch <- deliveredDesc
	ch <- failedDesc
	ch <- panicsDesc
	ch <- droppedDesc
}

// Collect implements prometheus.Collector.
func (c metricsCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(appendedDesc, prometheus.CounterValue, float64(c.m.SnapshotAppended()))
	ch <- prometheus.MustNewConstMetric(mergeFaultsDesc, prometheus.CounterValue, float64(c.m.SnapshotMergeFaults()))
	for sink, n := range c.m.SnapshotDelivered() {
		ch <- prometheus.MustNewConstMetric(deliveredDesc, prometheus.CounterValue, float64(n), sink)
	}
	for sink, n := range c.m.SnapshotFailed() {
		ch <- prometheus.MustNewConstMetric(failedDesc, prometheus.CounterValue, float64(n), sink)
	}
	for sink, n := range c.m.SnapshotPanics() {
		ch <- prometheus.MustNewConstMetric(panicsDesc, prometheus.CounterValue, float64(n), sink)
	}
	for sink, n := range c.m.SnapshotDropped() {
		ch <- prometheus.MustNewConstMetric(droppedDesc, prometheus.CounterValue, float64(n), sink)
	}
}
