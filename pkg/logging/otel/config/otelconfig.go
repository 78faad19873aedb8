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

package config

import (
	"fmt"

	"github.com/golang/glog"
)

var OtelConfig *Config

type Config struct {
	Host        string
	Port        uint32
	UrlPath     string
	Environment string
	ServiceName string
	Enabled     bool
	// Resolution is the export interval in seconds.
	Resolution uint32
	UseTls     bool
	// PacketSizeBuckets are the histogram boundaries, in bytes, for packet sizes.
	PacketSizeBuckets []float64
}

func (c *Config) Validate() error {
	c.SetDefaultIfNotDefined()
	if c.Enabled && c.Port > 65535 {
		return fmt.Errorf("otel: invalid collector port %d", c.Port)
	}
	for i := 1; i < len(c.PacketSizeBuckets); i++ {
		if c.PacketSizeBuckets[i] <= c.PacketSizeBuckets[i-1] {
			return fmt.Errorf("otel: packet size buckets not increasing at index %d", i)
		}
	}
	return nil
}

func (c *Config) SetDefaultIfNotDefined() (set bool) {
	if c.Host == "" {
		c.Host = "127.0.0.1"
		set = true
	}
	if c.Port == 0 {
		c.Port = 4318
		set = true
	}
	if c.Resolution == 0 {
		c.Resolution = 60
		set = true
	}
	if c.Environment == "" {
		c.Environment = "dev"
		set = true
	}
	if c.ServiceName == "" {
		c.ServiceName = "mqwire"
		set = true
	}
	if c.UrlPath == "" {
		c.UrlPath = "/v1/metrics"
		set = true
	}
	if c.PacketSizeBuckets == nil {
		c.PacketSizeBuckets = []float64{128, 256, 512, 1024, 4096, 16384, 65536, 262144, 1048576}
		set = true
	}
	return
}

func (c *Config) Endpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) Dump() {
	glog.Infof("Otel Enabled: %t", c.Enabled)
	glog.Infof("Host : %s", c.Host)
	glog.Infof("Port: %d", c.Port)
	glog.Infof("UrlPath: %s", c.UrlPath)
	glog.Infof("Environment: %s", c.Environment)
	glog.Infof("ServiceName: %s", c.ServiceName)
	glog.Infof("Resolution: %d", c.Resolution)
	glog.Infof("UseTls: %t", c.UseTls)
	glog.Info("PacketSize Bucket: ", c.PacketSizeBuckets)
}
