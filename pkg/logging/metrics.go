// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logging

import (
	m "github.com/ethersphere/blocksync/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type metrics struct {
	// all metrics fields must be exported
	// to be able to return them by Metrics()
	// using reflection
	ErrorCount prometheus.Counter
	WarnCount  prometheus.Counter
	InfoCount  prometheus.Counter
	DebugCount prometheus.Counter
	TraceCount prometheus.Counter
}

func newMetrics() metrics {
	subsystem := "log"
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}
	return metrics{
		ErrorCount: counter("error_count", "Number ERROR log messages."),
		WarnCount:  counter("warn_count", "Number WARN log messages."),
		InfoCount:  counter("info_count", "Number INFO log messages."),
		DebugCount: counter("debug_count", "Number DEBUG log messages."),
		TraceCount: counter("trace_count", "Number TRACE log messages."),
	}
}

func (l *logger) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(l.metrics)
}

func (l metrics) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.ErrorLevel,
		logrus.WarnLevel,
		logrus.InfoLevel,
		logrus.DebugLevel,
		logrus.TraceLevel,
	}
}

func (l metrics) Fire(e *logrus.Entry) error {
	switch e.Level {
	case logrus.ErrorLevel:
		l.ErrorCount.Inc()
	case logrus.WarnLevel:
		l.WarnCount.Inc()
	case logrus.InfoLevel:
		l.InfoCount.Inc()
	case logrus.DebugLevel:
		l.DebugCount.Inc()
	case logrus.TraceLevel:
		l.TraceCount.Inc()
	}
	return nil
}
