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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mqwire/pkg/proto"
)

const sampleConfig = `
LogLevel = "Debug"
AppName = "broker-edge"

[Packet]
  MaxPacketSize = 1048576
  OriginAddress = "10.1.2.3"
  OriginPort = 7676

[BufferPool]
  Capacity = 2097152
  UseDirect = true

[Conn]
  IdleTimeout = "30s"
  NonBlocking = true

[Capture]
  Codec = "ZSTD"

[Otel]
  Enabled = false
  Port = 4317
`

func TestLoadConfig(t *testing.T) {
	saved := Conf
	defer func() { Conf = saved }()

	file := filepath.Join(t.TempDir(), "mqwire.toml")
	require.NoError(t, os.WriteFile(file, []byte(sampleConfig), 0644))
	require.NoError(t, LoadConfig(file))

	assert.Equal(t, "debug", Conf.LogLevel)
	assert.Equal(t, int64(1048576), Conf.Packet.MaxPacketSize)
	assert.Equal(t, 2097152, Conf.BufferPool.Capacity)
	assert.Equal(t, 128, Conf.BufferPool.BlockSize)
	assert.True(t, Conf.BufferPool.UseDirect)
	assert.Equal(t, 30*time.Second, Conf.Conn.IdleTimeout.Duration)
	assert.Equal(t, 500*time.Millisecond, Conf.Conn.ReadTimeout.Duration)
	assert.True(t, Conf.Conn.NonBlocking)
	assert.Equal(t, "zstd", Conf.Capture.Codec)
	assert.Equal(t, uint32(4317), Conf.Otel.Port)
	assert.Equal(t, "broker-edge", Conf.Otel.ServiceName)

	ctx := Conf.NewContext()
	assert.Equal(t, int64(1048576), ctx.MaxPacketSize())
	addr, port := ctx.Origin()
	assert.Equal(t, "10.1.2.3", addr.String())
	assert.Equal(t, int32(7676), port)
	assert.Equal(t, proto.DefaultPacketPoolSize, Conf.PacketPool.MaxPooled)
}

func TestValidateRejects(t *testing.T) {
	c := Conf
	c.LogLevel = "chatty"
	assert.Error(t, c.Validate())

	c = Conf
	c.Capture.Codec = "brotli"
	assert.Error(t, c.Validate())
}

func TestLoadConfigMissingFile(t *testing.T) {
	saved := Conf
	defer func() { Conf = saved }()
	assert.Error(t, LoadConfig(filepath.Join(t.TempDir(), "absent.toml")))
}

func TestSmallMaxPacketSizeRaised(t *testing.T) {
	c := Conf
	c.Packet.MaxPacketSize = 1024
	require.NoError(t, c.Validate())
	assert.Equal(t, int64(proto.MinMaxPacketSize), c.Packet.MaxPacketSize)
}
