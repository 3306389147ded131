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

package treasury

import "github.com/prometheus/client_golang/prometheus"

type treasuryMetrics struct {
	depositsTotal   prometheus.Counter
	depositedAmount prometheus.Counter
}

func (m *treasuryMetrics) init(
	promRegistry prometheus.Registerer,
	balance func() float64,
) {
	m.depositsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "barangay_treasury_deposits_total",
		Help: "number of treasury deposits",
	})
	m.depositedAmount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "barangay_treasury_deposited_amount_total",
		Help: "total amount deposited into the treasury",
	})
	promRegistry.MustRegister(
		m.depositsTotal,
		m.depositedAmount,
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "barangay_treasury_balance",
				Help: "current treasury balance",
			},
			balance,
		),
	)
}

func (m *treasuryMetrics) deposited(amount uint64) {
	if m.depositsTotal == nil {
		return
	}
	m.depositsTotal.Inc()
	m.depositedAmount.Add(float64(amount))
}
