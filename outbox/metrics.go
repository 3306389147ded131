// Copyright 2025 Blink Labs Software
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

package outbox

import "github.com/prometheus/client_golang/prometheus"

type relayMetrics struct {
	relayedTotal prometheus.Counter
	errorsTotal  prometheus.Counter
	backlog      prometheus.Gauge
	lastSequence prometheus.Gauge
}

func (m *relayMetrics) init(promRegistry prometheus.Registerer) {
	m.relayedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "barangay_outbox_relayed_total",
		Help: "events relayed from the outbox",
	})
	m.errorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "barangay_outbox_relay_errors_total",
		Help: "failed relay passes",
	})
	m.backlog = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "barangay_outbox_backlog",
		Help: "events waiting in the outbox",
	})
	m.lastSequence = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "barangay_outbox_last_sequence",
		Help: "sequence number of the last relayed event",
	})
	promRegistry.MustRegister(
		m.relayedTotal,
		m.errorsTotal,
		m.backlog,
		m.lastSequence,
	)
}

func (m *relayMetrics) relayed(count int, lastSequence uint64) {
	if m.relayedTotal == nil {
		return
	}
	m.relayedTotal.Add(float64(count))
	m.lastSequence.Set(float64(lastSequence))
}

func (m *relayMetrics) failed() {
	if m.errorsTotal == nil {
		return
	}
	m.errorsTotal.Inc()
}

func (m *relayMetrics) setBacklog(backlog uint64) {
	if m.backlog == nil {
		return
	}
	m.backlog.Set(float64(backlog))
}
