// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package diffsync

import (
	m "github.com/ethersphere/blocksync/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	BlocksSame           prometheus.Counter
	BlocksDiffer         prometheus.Counter
	PayloadSentBytes     prometheus.Counter
	PayloadReceivedBytes prometheus.Counter
	Sessions             *prometheus.CounterVec
}

func newMetrics() metrics {
	subsystem := "diffsync"

	return metrics{
		BlocksSame: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "blocks_same",
			Help:      "Total blocks found identical.",
		}),
		BlocksDiffer: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "blocks_differ",
			Help:      "Total blocks found different.",
		}),
		PayloadSentBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "payload_sent_bytes",
			Help:      "Total block payload bytes sent, after compression.",
		}),
		PayloadReceivedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "payload_received_bytes",
			Help:      "Total block payload bytes received, before decompression.",
		}),
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "sessions",
			Help:      "Finished sessions by role and result.",
		}, []string{"role", "result"}),
	}
}

func (e *Engine) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(e.metrics)
}
