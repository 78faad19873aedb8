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
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	collectormetricpb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	metricpb "go.opentelemetry.io/proto/otlp/metrics/v1"
)

const defaultMetricsPath string = "/v1/metrics"

// mockCollector accepts OTLP/HTTP protobuf exports and keeps the metrics.
type mockCollector struct {
	port   uint32
	server *http.Server

	mu      sync.Mutex
	metrics []*metricpb.Metric
}

func runMockCollector(t *testing.T) *mockCollector {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	m := &mockCollector{port: uint32(ln.Addr().(*net.TCPAddr).Port)}
	mux := http.NewServeMux()
	mux.Handle(defaultMetricsPath, http.HandlerFunc(m.serveMetrics))
	m.server = &http.Server{Handler: mux}
	go func() {
		_ = m.server.Serve(ln)
	}()
	return m
}

func (c *mockCollector) Stop() error {
	return c.server.Shutdown(context.Background())
}

func (c *mockCollector) MetricNames() map[string]*metricpb.Metric {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make(map[string]*metricpb.Metric, len(c.metrics))
	for _, m := range c.metrics {
		names[m.GetName()] = m
	}
	return names
}

func (c *mockCollector) serveMetrics(w http.ResponseWriter, r *http.Request) {
	rawRequest, err := readRequest(r)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	request, err := unmarshalMetricsRequest(rawRequest, r.Header.Get("content-type"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	rawResponse, err := proto.Marshal(&collectormetricpb.ExportMetricsServiceResponse{})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rawResponse)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rm := range request.GetResourceMetrics() {
		for _, sm := range rm.GetScopeMetrics() {
			c.metrics = append(c.metrics, sm.GetMetrics()...)
		}
	}
}

func unmarshalMetricsRequest(rawRequest []byte, contentType string) (*collectormetricpb.ExportMetricsServiceRequest, error) {
	request := &collectormetricpb.ExportMetricsServiceRequest{}
	if contentType != "application/x-protobuf" {
		return request, fmt.Errorf("invalid content-type: %s, only application/x-protobuf is supported", contentType)
	}
	err := proto.Unmarshal(rawRequest, request)
	return request, err
}

func readRequest(r *http.Request) ([]byte, error) {
	if r.Header.Get("Content-Encoding") == "gzip" {
		var raw bytes.Buffer
		gunzipper, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, err
		}
		defer gunzipper.Close()
		if _, err = io.Copy(&raw, gunzipper); err != nil {
			return nil, err
		}
		return raw.Bytes(), nil
	}
	return io.ReadAll(r.Body)
}
