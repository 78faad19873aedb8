//
//  Copyright 2023 PayPal Inc.
//
//  Licensed to the Apache Software Foundation (ASF) under one or more
//  contributor license agreements.  See the NOTICE file distributed with
//  this work for additional information regarding copyright ownership.
//  The ASF licenses this file to You under the Apache License, Version 2.0
//  (the "License"); you may not use this file except in compliance with
//  the License.  You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.
//

package otel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"

	otelCfg "mqwire/pkg/logging/otel/config"
	"mqwire/pkg/proto"
	"mqwire/pkg/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/instrument"
	"go.opentelemetry.io/otel/metric/instrument/asyncint64"
	"go.opentelemetry.io/otel/metric/instrument/syncint64"
	"go.opentelemetry.io/otel/metric/unit"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/aggregation"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

const (
	MQWIRE_METRIC_PREFIX = "mqwire."
	MeterName            = "mqwire-meter"
)

type CMetric int

const (
	PacketRead CMetric = CMetric(iota)
	PacketWrite
	PacketError
)

const (
	Type = string("type")
	Kind = string("kind")
	Pool = string("pool")
)

var (
	packetReadCounterOnce  sync.Once
	packetWriteCounterOnce sync.Once
	packetErrorCounterOnce sync.Once
	packetSizeOnce         sync.Once
)

var packetSizeHistogram syncint64.Histogram

type countMetric struct {
	metricName    string
	metricDesc    string
	counter       syncint64.Counter
	createCounter *sync.Once
}

var countMetricMap map[CMetric]*countMetric = map[CMetric]*countMetric{
	PacketRead:  {"packet.read", "Packets decoded from a connection", nil, &packetReadCounterOnce},
	PacketWrite: {"packet.write", "Packets written to a connection", nil, &packetWriteCounterOnce},
	PacketError: {"packet.error", "Packet read or write failures by kind", nil, &packetErrorCounterOnce},
}

var (
	mu            sync.Mutex
	meterProvider *metric.MeterProvider
)

// InitMetricProvider installs the OTLP/HTTP backed meter provider. It is a
// no-op when the config is disabled or a provider is already installed.
func InitMetricProvider(config *otelCfg.Config) error {
	if config == nil || !config.Enabled {
		return nil
	}
	if err := config.Validate(); err != nil {
		return err
	}
	otelCfg.OtelConfig = config

	ctx := context.Background()
	exp, err := NewHTTPExporter(ctx, config)
	if err != nil {
		glog.Errorf("failed to create otlp exporter: %s", err)
		return err
	}
	reader := metric.NewPeriodicReader(exp, metric.WithInterval(time.Duration(config.Resolution)*time.Second))
	return installProvider(config, reader)
}

// NewMeterProvider builds a provider around the given reader with the packet size view.
func NewMeterProvider(cfg *otelCfg.Config, reader metric.Reader) *metric.MeterProvider {
	sizeView := metric.NewView(
		metric.Instrument{
			Name:  PopulateMetricNamePrefix("packet.size"),
			Scope: instrumentation.Scope{Name: MeterName},
		},
		metric.Stream{
			Aggregation: aggregation.ExplicitBucketHistogram{
				Boundaries: cfg.PacketSizeBuckets,
			},
		})
	return metric.NewMeterProvider(
		metric.WithResource(getResourceInfo(cfg)),
		metric.WithReader(reader),
		metric.WithView(sizeView),
	)
}

func installProvider(cfg *otelCfg.Config, reader metric.Reader) error {
	mu.Lock()
	defer mu.Unlock()
	if meterProvider != nil {
		glog.Warningf("otel meter provider already initialized")
		return nil
	}
	cfg.SetDefaultIfNotDefined()
	meterProvider = NewMeterProvider(cfg, reader)
	return nil
}

func NewHTTPExporter(ctx context.Context, cfg *otelCfg.Config) (metric.Exporter, error) {
	var deltaTemporalitySelector = func(metric.InstrumentKind) metricdata.Temporality { return metricdata.DeltaTemporality }
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(cfg.Endpoint()),
		otlpmetrichttp.WithURLPath(cfg.UrlPath),
		otlpmetrichttp.WithTimeout(7 * time.Second),
		otlpmetrichttp.WithCompression(otlpmetrichttp.NoCompression),
		otlpmetrichttp.WithTemporalitySelector(deltaTemporalitySelector),
		otlpmetrichttp.WithRetry(otlpmetrichttp.RetryConfig{
			Enabled:         true,
			InitialInterval: 1 * time.Second,
			MaxInterval:     10 * time.Second,
			MaxElapsedTime:  240 * time.Second,
		}),
	}
	if !cfg.UseTls {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	return otlpmetrichttp.New(ctx, opts...)
}

func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return meterProvider != nil
}

// ForceFlush pushes pending measurements to the collector.
func ForceFlush(ctx context.Context) error {
	mp := provider()
	if mp == nil {
		return nil
	}
	return mp.ForceFlush(ctx)
}

// Shutdown flushes and uninstalls the provider.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	mp := meterProvider
	meterProvider = nil
	mu.Unlock()
	if mp == nil {
		return nil
	}
	resetInstruments()
	return mp.Shutdown(ctx)
}

// resetInstruments lets a later provider create fresh instruments. It must not
// race with recording.
func resetInstruments() {
	for _, c := range countMetricMap {
		*c.createCounter = sync.Once{}
		c.counter = nil
	}
	packetSizeOnce = sync.Once{}
	packetSizeHistogram = nil
}

func provider() *metric.MeterProvider {
	mu.Lock()
	defer mu.Unlock()
	return meterProvider
}

func meter() api.Meter {
	mp := provider()
	if mp == nil {
		return nil
	}
	return mp.Meter(MeterName)
}

func GetCounter(counterName CMetric) (syncint64.Counter, error) {
	counterMetric, ok := countMetricMap[counterName]
	if !ok {
		return nil, errors.New("no such counter")
	}
	m := meter()
	if m == nil {
		return nil, errors.New("otel not initialized")
	}
	counterMetric.createCounter.Do(func() {
		counterMetric.counter, _ = m.SyncInt64().Counter(
			PopulateMetricNamePrefix(counterMetric.metricName),
			instrument.WithDescription(counterMetric.metricDesc),
		)
	})
	if counterMetric.counter == nil {
		return nil, errors.New("counter object not ready")
	}
	return counterMetric.counter, nil
}

func GetHistogramForPacketSize() (syncint64.Histogram, error) {
	m := meter()
	if m == nil {
		return nil, errors.New("otel not initialized")
	}
	var err error
	packetSizeOnce.Do(func() {
		packetSizeHistogram, err = m.SyncInt64().Histogram(
			PopulateMetricNamePrefix("packet.size"),
			instrument.WithDescription("Size of packets read and written"),
			instrument.WithUnit(unit.Bytes),
		)
	})
	if err == nil && packetSizeHistogram == nil {
		err = errors.New("histogram object not ready")
	}
	return packetSizeHistogram, err
}

// RecordPacketRead counts one decoded packet of the given type and size.
func RecordPacketRead(ptype string, size int) {
	recordPacket(PacketRead, "read", ptype, size)
}

func RecordPacketWrite(ptype string, size int) {
	recordPacket(PacketWrite, "write", ptype, size)
}

func recordPacket(c CMetric, dir string, ptype string, size int) {
	if !IsEnabled() {
		return
	}
	ctx := context.Background()
	if counter, err := GetCounter(c); err == nil {
		counter.Add(ctx, 1, attribute.String(Type, ptype))
	}
	if hist, err := GetHistogramForPacketSize(); err == nil {
		hist.Record(ctx, int64(size), attribute.String("direction", dir))
	}
}

// RecordPacketError counts a failure. kind is a short classification such as
// "oversized" or "corrupted".
func RecordPacketError(kind string) {
	if !IsEnabled() {
		return
	}
	if counter, err := GetCounter(PacketError); err == nil {
		counter.Add(context.Background(), 1, attribute.String(Kind, kind))
	} else {
		glog.Error(err)
	}
}

type gauge struct {
	name string
	desc string
	u    unit.Unit
}

var bufferPoolGauges = []gauge{
	{"bufferpool.pooled", "Bytes held on the buffer pool free lists", unit.Bytes},
	{"bufferpool.free", "Buffers on the free lists", unit.Dimensionless},
	{"bufferpool.hits", "Acquisitions served from the free lists", unit.Dimensionless},
	{"bufferpool.misses", "Acquisitions that allocated", unit.Dimensionless},
	{"bufferpool.drops", "Releases discarded by the capacity limits", unit.Dimensionless},
}

var packetPoolGauges = []gauge{
	{"packetpool.pooled", "Packets held by the packet pool", unit.Dimensionless},
	{"packetpool.hits", "Gets served from the packet pool", unit.Dimensionless},
	{"packetpool.misses", "Gets that created a packet", unit.Dimensionless},
	{"packetpool.drops", "Puts discarded because the pool was full", unit.Dimensionless},
}

func registerGauges(name string, defs []gauge, observe func() []int64) error {
	m := meter()
	if m == nil {
		return nil
	}
	gauges := make([]asyncint64.Gauge, len(defs))
	insts := make([]instrument.Asynchronous, len(defs))
	for i, d := range defs {
		g, err := m.AsyncInt64().Gauge(
			PopulateMetricNamePrefix(d.name),
			instrument.WithDescription(d.desc),
			instrument.WithUnit(d.u),
		)
		if err != nil {
			return fmt.Errorf("otel: gauge %s: %w", d.name, err)
		}
		gauges[i] = g
		insts[i] = g
	}
	attr := attribute.String(Pool, name)
	return m.RegisterCallback(insts, func(ctx context.Context) {
		values := observe()
		for i, g := range gauges {
			g.Observe(ctx, values[i], attr)
		}
	})
}

// RegisterBufferPool exports the pool's accounting as gauges tagged with name.
func RegisterBufferPool(name string, pool *util.BufferPool) error {
	return registerGauges(name, bufferPoolGauges, func() []int64 {
		st := pool.Stats()
		return []int64{int64(st.Pooled), int64(st.NumFree), int64(st.Hits), int64(st.Misses), int64(st.Drops)}
	})
}

func RegisterPacketPool(name string, pool *proto.PacketPool) error {
	return registerGauges(name, packetPoolGauges, func() []int64 {
		st := pool.Stats()
		return []int64{int64(st.Pooled), int64(st.Hits), int64(st.Misses), int64(st.Drops)}
	})
}

func PopulateMetricNamePrefix(metricName string) string {
	return MQWIRE_METRIC_PREFIX + metricName
}

func getResourceInfo(cfg *otelCfg.Config) *resource.Resource {
	hostname, _ := os.Hostname()
	return resource.NewWithAttributes(semconv.SchemaURL,
		semconv.HostNameKey.String(hostname),
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		attribute.String("application", cfg.ServiceName),
	)
}
