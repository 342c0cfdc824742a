// Copyright 2019 eBay Inc.
// Primary authors: Simon Fell, Diego Ongaro,
//                  Raymond Kroeker, and Sathish Kandasamy.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tracing assists with reporting OpenTracing traces.
package tracing

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	jaeger "github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	"github.com/uber/jaeger-client-go/transport"
)

// A Tracer reports OpenTracing traces to a server.
type Tracer struct {
	// If not nil, called by Close.
	close func()
}

// New constructs a tracer and sets it as the global opentracing tracer.
// Call this early on from main functions to initialize Jaeger/OpenTracing.
// 'endpoint' is a Jaeger collector URL that accepts jaeger.thrift over HTTP,
// such as "http://localhost:14268/api/traces". If endpoint is empty, no tracer
// is installed and the opentracing no-op tracer stays in effect. If err ==
// nil, the returned tracer should be Closed to flush its buffer before program
// exit.
func New(serviceName string, endpoint string) (*Tracer, error) {
	if endpoint == "" {
		log.Debug("Skipping Jaeger setup: no collector endpoint configured")
		return &Tracer{}, nil
	}
	cfg := jaegercfg.Configuration{
		ServiceName: serviceName,
		Sampler: &jaegercfg.SamplerConfig{
			Type:  jaeger.SamplerTypeConst,
			Param: 1,
		},
	}
	reporter := jaeger.NewRemoteReporter(transport.NewHTTPTransport(endpoint))
	logger := (*logrusAdapter)(log.WithFields(log.Fields{"component": "jaeger"}))
	tracer, closer, err := cfg.NewTracer(
		jaegercfg.Logger(logger),
		jaegercfg.Reporter(reporter),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "could not initialize Jaeger tracer for %v", endpoint)
	}
	opentracing.SetGlobalTracer(tracer)
	return &Tracer{
		close: func() {
			err := closer.Close()
			if err != nil {
				log.WithError(err).Warn("Error shutting down Jaeger tracer")
			}
		},
	}, nil
}

// Close stops the Tracer and cleans up resources. It is not thread-safe.
func (t *Tracer) Close() {
	if t.close != nil {
		t.close()
	}
	t.close = nil
}

type logrusAdapter log.Entry

func (l *logrusAdapter) Error(msg string) {
	(*log.Entry)(l).Error(strings.TrimSpace(msg))
}

func (l *logrusAdapter) Infof(msg string, args ...interface{}) {
	(*log.Entry)(l).Infof(strings.TrimSpace(msg), args...)
}

// Metric is satisfied by prometheus.Summary and prometheus.Histogram.
type Metric interface {
	prometheus.Metric
	Observe(float64)
}

// Span is an opentracing span whose duration is also observed into a
// Prometheus metric.
type Span struct {
	opentracing.Span
	start  time.Time
	metric Metric
}

// StartSpan starts a child span of the span in ctx (if any). When the
// returned span is finished, its duration in seconds is observed into metric,
// if metric is not nil. The metric's name is attached to the span as the tag
// "metric".
func StartSpan(ctx context.Context, name string, metric Metric) (*Span, context.Context) {
	span, ctx := opentracing.StartSpanFromContext(ctx, name)
	if metric != nil {
		span.SetTag("metric", metricName(metric))
	}
	return &Span{Span: span, start: time.Now(), metric: metric}, ctx
}

// Finish ends the span and observes its duration.
func (s *Span) Finish() {
	if s.metric != nil {
		s.metric.Observe(time.Since(s.start).Seconds())
	}
	s.Span.Finish()
}

// metricName returns the fully-qualified name of the metric.
func metricName(metric Metric) string {
	// Desc doesn't have a way to extract the name. Its Stringer outputs like this:
	//   Desc{fqName: %q, help: %q, constLabels: {%s}, variableLabels: %v}
	s := metric.Desc().String()
	s = strings.TrimPrefix(s, `Desc{fqName: "`)
	i := strings.IndexByte(s, '"')
	if i < 0 {
		return ""
	}
	return s[:i]
}
