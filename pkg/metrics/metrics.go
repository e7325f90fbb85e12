// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	// #nosec
	_ "net/http/pprof"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// gatewayNamespace is the Prometheus namespace for all gateway metrics.
	gatewayNamespace = "spacegw"

	reasonLabelName = "reason"
	worldLabelName  = "world"
	opLabelName     = "op"
)

var (
	// durationBuckets for request latency histograms, in milliseconds.
	durationBuckets = prometheus.ExponentialBuckets(1, 2, 14)

	ConnectedSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: gatewayNamespace,
			Name:      "connected_sessions",
			Help:      "number of live client sessions",
		})

	HandshakeRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: gatewayNamespace,
			Name:      "handshake_rejections_total",
			Help:      "handshakes rejected, labelled by rejection reason",
		}, []string{reasonLabelName})

	HandshakeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: gatewayNamespace,
			Name:      "handshake_duration_ms",
			Help:      "time to complete an upgrade handshake in milliseconds",
			Buckets:   durationBuckets,
		})

	ActiveSpaces = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: gatewayNamespace,
			Name:      "active_spaces",
			Help:      "number of live spaces per world",
		}, []string{worldLabelName})

	BatchesFlushed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: gatewayNamespace,
			Name:      "batches_flushed_total",
			Help:      "outbound batches flushed to clients",
		})

	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: gatewayNamespace,
			Name:      "batch_size",
			Help:      "number of sub-messages per flushed batch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		})

	BackpressurePaused = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: gatewayNamespace,
			Name:      "backpressure_paused_total",
			Help:      "flushes deferred because the connection buffer was saturated",
		})

	ForwardErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: gatewayNamespace,
			Name:      "forward_errors_total",
			Help:      "failures forwarding fire-and-forget messages to the back",
		}, []string{opLabelName})

	QueriesAnswered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: gatewayNamespace,
			Name:      "queries_answered_total",
			Help:      "correlated queries answered, labelled by outcome reason",
		}, []string{reasonLabelName})

	metricRegisterer prometheus.Registerer
)

// GetRegisterer returns the global prometheus Registerer.
// Falls back to prometheus.DefaultRegisterer until Register is called.
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register registers all gateway metrics.
// It should normally be called once during process start.
func Register(r prometheus.Registerer) {
	r.MustRegister(ConnectedSessions)
	r.MustRegister(HandshakeRejections)
	r.MustRegister(HandshakeDuration)
	r.MustRegister(ActiveSpaces)
	r.MustRegister(BatchesFlushed)
	r.MustRegister(BatchSize)
	r.MustRegister(BackpressurePaused)
	r.MustRegister(ForwardErrors)
	r.MustRegister(QueriesAnswered)
	metricRegisterer = r
}
