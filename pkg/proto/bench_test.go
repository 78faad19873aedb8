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

package proto

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"mqwire/pkg/util"
)

var (
	gBenchPacket []byte
	gBenchCtx    = NewContext(Config{}, util.NewBufferPool(util.BufferPoolConfig{}))
)

func BenchmarkPacketWrite(b *testing.B) {
	p := NewPacket(gBenchCtx)
	p.SetType(PacketTypeBytesMessage)
	p.SetDestination("bench.queue")
	p.SetProperty("id", int64(1))
	body := make([]byte, 2048)
	rand.Read(body)
	p.SetBody(body)
	for i := 0; i < b.N; i++ {
		if _, err := p.Write(io.Discard); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPacketRead(b *testing.B) {
	p := NewPacket(gBenchCtx)
	r := bytes.NewReader(gBenchPacket)
	for i := 0; i < b.N; i++ {
		r.Reset(gBenchPacket)
		if _, err := p.Read(r); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPacketReadBuffer(b *testing.B) {
	p := NewPacket(gBenchCtx)
	for i := 0; i < b.N; i++ {
		if _, done, err := p.ReadBuffer(gBenchPacket); err != nil || !done {
			b.Fatal(err)
		}
	}
}

func BenchmarkPacketReadWithoutPacketReuse(b *testing.B) {
	for i := 0; i < b.N; i++ {
		p := NewPacket(gBenchCtx)
		if _, err := p.Read(bytes.NewReader(gBenchPacket)); err != nil {
			b.Fatal(err)
		}
		p.Destroy()
	}
}

func BenchmarkPacketProperties(b *testing.B) {
	props := map[string]interface{}{"a": int32(1), "b": "two", "c": 3.0, "d": true}
	for i := 0; i < b.N; i++ {
		blob, err := EncodeProperties(props)
		if err != nil {
			b.Fatal(err)
		}
		if _, err = DecodeProperties(blob); err != nil {
			b.Fatal(err)
		}
	}
}

func init() {
	p := NewPacket(gBenchCtx)
	p.SetType(PacketTypeTextMessage)
	p.SetDestination("bench.queue")
	p.SetCorrelationID("bench")
	p.SetProperty("id", int64(1))
	body := make([]byte, 2048)
	rand.Read(body)
	p.SetBody(body)
	gBenchPacket, _ = p.Bytes()
}
