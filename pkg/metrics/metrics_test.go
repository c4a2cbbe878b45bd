// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metrics_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	m "github.com/ethersphere/blocksync/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusCollectorsFromFields(t *testing.T) {
	t.Parallel()

	s := newService()
	collectors := m.PrometheusCollectorsFromFields(s)

	if l := len(collectors); l != 2 {
		t.Fatalf("got %v collectors %+v, want 2", l, collectors)
	}

	m1 := collectors[0].(prometheus.Metric).Desc().String()
	if !strings.Contains(m1, "session_blocks_same") {
		t.Errorf("unexpected metric %s", m1)
	}

	m2 := collectors[1].(prometheus.Metric).Desc().String()
	if !strings.Contains(m2, "session_duration_seconds") {
		t.Errorf("unexpected metric %s", m2)
	}
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	s := newService()
	s.BlocksSame.Add(3)

	path := filepath.Join(t.TempDir(), "blocksync.prom")
	if err := m.WriteTextfile(path, s); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "blocksync_session_blocks_same 3") {
		t.Fatalf("counter missing from textfile:\n%s", b)
	}
}

func TestNewRegistryDuplicate(t *testing.T) {
	t.Parallel()

	s := newService()
	if _, err := m.NewRegistry(s, s); err == nil {
		t.Fatal("registered the same collectors twice")
	}
}

type service struct {
	// valid metrics
	BlocksSame prometheus.Counter
	Duration   prometheus.Histogram
	// invalid metrics
	unexportedCount    prometheus.Counter
	UninitializedCount prometheus.Counter
}

func (s *service) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(s)
}

func newService() *service {
	subsystem := "session"
	return &service{
		BlocksSame: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "blocks_same",
			Help:      "Number of blocks found equal.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "duration_seconds",
			Help:      "Histogram of session durations.",
			Buckets:   []float64{1, 10, 60, 600, 3600},
		}),
		unexportedCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "unexported_count",
			Help:      "This metrics should not be discoverable by metrics.PrometheusCollectorsFromFields.",
		}),
	}
}
