// Copyright 2026 The Torvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package torvisor

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "torvisor"

type metrics struct {
	starts        prometheus.Counter
	restarts      prometheus.Counter
	spawnFailures prometheus.Counter
	pathErrors    prometheus.Counter
	lines         prometheus.Counter
	hostnames     prometheus.Counter
	state         prometheus.Gauge
	progress      prometheus.Gauge
}

func newMetrics(name string) *metrics {
	labels := prometheus.Labels{"supervisor": name}
	counter := func(n, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        n,
			Help:        help,
			ConstLabels: labels,
		})
	}
	gauge := func(n, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        n,
			Help:        help,
			ConstLabels: labels,
		})
	}
	return &metrics{
		starts:        counter("starts_total", "Times the daemon was spawned."),
		restarts:      counter("restarts_total", "Automatic restarts after the daemon exited."),
		spawnFailures: counter("spawn_failures_total", "Times the daemon could not be spawned."),
		pathErrors:    counter("path_errors_total", "Missing paths found before spawning."),
		lines:         counter("output_lines_total", "Lines of daemon output read."),
		hostnames:     counter("hidden_services_published_total", "Hidden service hostnames discovered."),
		state:         gauge("state", "Current supervisor state (0 Error .. 5 Restarting)."),
		progress:      gauge("bootstrap_percent", "Last bootstrap percentage reported."),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.starts,
		m.restarts,
		m.spawnFailures,
		m.pathErrors,
		m.lines,
		m.hostnames,
		m.state,
		m.progress,
	}
}

// Describe sends nothing, which makes the Manager an unchecked collector;
// the set of supervisors changes over time.
func (m *Manager) Describe(chan<- *prometheus.Desc) {
}

// Collect gathers the metrics of every supervisor.
func (m *Manager) Collect(ch chan<- prometheus.Metric) {
	for _, s := range m.Supervisors() {
		for _, c := range s.Collectors() {
			c.Collect(ch)
		}
	}
}
