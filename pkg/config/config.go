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
	"bytes"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/golang/glog"

	"mqwire/pkg/capture"
	"mqwire/pkg/io"
	otelCfg "mqwire/pkg/logging/otel/config"
	"mqwire/pkg/proto"
	"mqwire/pkg/util"
)

var (
	Conf = Config{
		LogLevel:   "info",
		AppName:    "mqwire",
		Packet:     proto.DefaultConfig,
		BufferPool: util.DefaultBufferPoolConfig,
		PacketPool: PacketPoolConfig{MaxPooled: proto.DefaultPacketPoolSize},
		Conn:       io.DefaultConnConfig,
		Capture:    capture.DefaultConfig,
	}

	logLevels = []string{"error", "warning", "info", "debug", "verbose"}
)

type PacketPoolConfig struct {
	MaxPooled int
}

type Config struct {
	LogLevel   string
	AppName    string
	Packet     proto.Config
	BufferPool util.BufferPoolConfig
	PacketPool PacketPoolConfig
	Conn       io.ConnConfig
	Capture    capture.Config
	Otel       otelCfg.Config
}

func (c *Config) Dump() {
	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(c); err != nil {
		glog.Errorf("failed to encode config: %s", err)
		return
	}
	glog.Info(buf.String())
}

func (c *Config) Validate() (err error) {
	c.LogLevel = strings.ToLower(c.LogLevel)
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	valid := false
	for _, l := range logLevels {
		if l == c.LogLevel {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	c.Packet.SetDefaultIfNotDefined()
	c.BufferPool.SetDefaultIfNotDefined()
	if c.PacketPool.MaxPooled <= 0 {
		c.PacketPool.MaxPooled = proto.DefaultPacketPoolSize
	}
	c.Conn.SetDefaultIfNotDefined()
	if err = c.Capture.Validate(); err != nil {
		return
	}
	if c.Otel.ServiceName == "" {
		c.Otel.ServiceName = c.AppName
	}
	if err = c.Otel.Validate(); err != nil {
		glog.Errorf("config error: %s", err)
	}
	return
}

// NewContext builds the packet context and its buffer pool from the config.
func (c *Config) NewContext() *proto.Context {
	return proto.NewContext(c.Packet, util.NewBufferPool(c.BufferPool))
}

func (c *Config) NewPacketPool(ctx *proto.Context) *proto.PacketPool {
	return proto.NewPacketPool(ctx, c.PacketPool.MaxPooled)
}

func LoadConfig(file string) (err error) {
	if _, err = toml.DecodeFile(file, &Conf); err != nil {
		return
	}
	return Conf.Validate()
}
