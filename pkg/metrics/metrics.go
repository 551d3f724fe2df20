// Copyright 2025 walteh LLC
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

// Package metrics provides Prometheus collectors for sync activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	bytesDownloaded  prometheus.Counter
	filesFetched     prometheus.Counter
	filesRemoved     prometheus.Counter
	fileErrors       *prometheus.CounterVec
	duplicateRejects prometheus.Counter
	pendingRequests  prometheus.Gauge
	projectsByStatus *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// 🏭 New registers every collector on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "merginsync_requests_total",
				Help: "Remote requests by operation and result",
			},
			[]string{"op", "result"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "merginsync_request_duration_seconds",
				Help:    "Remote request duration in seconds, decoding included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		bytesDownloaded: f.NewCounter(prometheus.CounterOpts{
			Name: "merginsync_bytes_downloaded_total",
			Help: "Payload bytes written to disk",
		}),
		filesFetched: f.NewCounter(prometheus.CounterOpts{
			Name: "merginsync_files_fetched_total",
			Help: "Files written from multipart responses",
		}),
		filesRemoved: f.NewCounter(prometheus.CounterOpts{
			Name: "merginsync_files_removed_total",
			Help: "Obsolete local files deleted",
		}),
		fileErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "merginsync_file_errors_total",
				Help: "Local file failures by operation",
			},
			[]string{"op"},
		),
		duplicateRejects: f.NewCounter(prometheus.CounterOpts{
			Name: "merginsync_duplicate_requests_total",
			Help: "Downloads rejected because one was already in flight",
		}),
		pendingRequests: f.NewGauge(prometheus.GaugeOpts{
			Name: "merginsync_pending_requests",
			Help: "Requests currently in flight",
		}),
		projectsByStatus: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "merginsync_projects",
				Help: "Catalog projects by local status",
			},
			[]string{"status"},
		),
		gatherer: reg,
	}
}

// Handler serves the registry this Metrics was built on.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished remote operation.
func (m *Metrics) ObserveRequest(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.requestsTotal.WithLabelValues(op, result).Inc()
	m.requestDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) FileFetched(size int64) {
	if m == nil {
		return
	}
	m.filesFetched.Inc()
	m.bytesDownloaded.Add(float64(size))
}

func (m *Metrics) FileRemoved() {
	if m == nil {
		return
	}
	m.filesRemoved.Inc()
}

func (m *Metrics) FileError(op string) {
	if m == nil {
		return
	}
	m.fileErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) DuplicateRejected() {
	if m == nil {
		return
	}
	m.duplicateRejects.Inc()
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pendingRequests.Set(float64(n))
}

// SetStatusCounts replaces the per-status project gauges.
func (m *Metrics) SetStatusCounts(counts map[string]int) {
	if m == nil {
		return
	}
	m.projectsByStatus.Reset()
	for status, n := range counts {
		m.projectsByStatus.WithLabelValues(status).Set(float64(n))
	}
}
