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
	"fmt"
	"sync"
)

const DefaultPacketPoolSize = 256

type PacketPoolStats struct {
	Gets   uint64
	Hits   uint64
	Misses uint64
	Puts   uint64
	Drops  uint64
	Pooled int
}

// PacketPool recycles Packets together with their scratch buffers. Packets
// returned with Put are Reset, or Destroyed when the pool is full.
type PacketPool struct {
	mu    sync.Mutex
	ctx   *Context
	max   int
	free  []*Packet
	stats PacketPoolStats
}

func NewPacketPool(ctx *Context, max int) *PacketPool {
	if ctx == nil {
		ctx = DefaultContext()
	}
	if max <= 0 {
		max = DefaultPacketPoolSize
	}
	return &PacketPool{
		ctx:  ctx,
		max:  max,
		free: make([]*Packet, 0, max),
	}
}

func (p *PacketPool) Context() *Context {
	return p.ctx
}

func (p *PacketPool) Get() *Packet {
	p.mu.Lock()
	p.stats.Gets++
	if n := len(p.free); n != 0 {
		pkt := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.stats.Hits++
		p.mu.Unlock()
		return pkt
	}
	p.stats.Misses++
	p.mu.Unlock()
	return NewPacket(p.ctx)
}

// Put returns pkt to the pool. A destroyed packet, or one arriving while the
// pool is full, is counted as a drop.
func (p *PacketPool) Put(pkt *Packet) {
	if pkt == nil {
		return
	}
	if pkt.Destroyed() {
		p.mu.Lock()
		p.stats.Puts++
		p.stats.Drops++
		p.mu.Unlock()
		return
	}
	pkt.Reset()

	p.mu.Lock()
	p.stats.Puts++
	if len(p.free) >= p.max {
		p.stats.Drops++
		p.mu.Unlock()
		pkt.Destroy()
		return
	}
	p.free = append(p.free, pkt)
	p.mu.Unlock()
}

// Clear destroys every pooled packet.
func (p *PacketPool) Clear() {
	p.mu.Lock()
	free := p.free
	p.free = make([]*Packet, 0, p.max)
	p.mu.Unlock()
	for _, pkt := range free {
		pkt.Destroy()
	}
}

func (p *PacketPool) Stats() PacketPoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.stats
	st.Pooled = len(p.free)
	return st
}

func (p *PacketPool) String() string {
	st := p.Stats()
	return fmt.Sprintf("max=%d pooled=%d gets=%d hits=%d misses=%d puts=%d drops=%d",
		p.max, st.Pooled, st.Gets, st.Hits, st.Misses, st.Puts, st.Drops)
}
