// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics collects the prometheus collectors exposed by the
// components of a session and writes them out for a node exporter.
package metrics

import (
	"fmt"
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace is prefixed before every metric. If it is changed, it must be done
// before any metrics collector is registered.
const Namespace = "blocksync"

// Collector is implemented by components that keep metrics.
type Collector interface {
	Metrics() []prometheus.Collector
}

// PrometheusCollectorsFromFields returns the exported fields of the struct s
// that hold an initialized prometheus.Collector.
func PrometheusCollectorsFromFields(s any) (cs []prometheus.Collector) {
	v := reflect.Indirect(reflect.ValueOf(s))
	if v.Kind() != reflect.Struct {
		return nil
	}
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if !f.CanInterface() {
			continue
		}
		if f.Kind() == reflect.Ptr || f.Kind() == reflect.Interface {
			if f.IsNil() {
				continue
			}
		}
		if u, ok := f.Interface().(prometheus.Collector); ok {
			cs = append(cs, u)
		}
	}
	return cs
}

// NewRegistry returns a registry holding the collectors of all cs.
func NewRegistry(cs ...Collector) (*prometheus.Registry, error) {
	r := prometheus.NewRegistry()
	for _, c := range cs {
		for _, m := range c.Metrics() {
			if err := r.Register(m); err != nil {
				return nil, fmt.Errorf("register metric: %w", err)
			}
		}
	}
	return r, nil
}

// WriteTextfile writes the metrics of cs to path in the text exposition
// format. The file is replaced atomically.
func WriteTextfile(path string, cs ...Collector) error {
	r, err := NewRegistry(cs...)
	if err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, r)
}
