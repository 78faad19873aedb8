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

package util

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/HdrHistogram/hdrhistogram-go"
)

type BufferCategory uint8

const (
	CategoryHeap BufferCategory = iota
	// CategoryDirect buffers live outside the Go heap (anonymous mmap where available).
	CategoryDirect
)

var (
	ErrBufferReleased = errors.New("buffer used after release")

	DefaultBufferPoolConfig = BufferPoolConfig{
		Capacity:   1024 * 1024,
		BlockSize:  128,
		BigBufSize: 64 * 1024,
		BigRatio:   0.5,
	}
)

func (c BufferCategory) String() string {
	if c == CategoryDirect {
		return "direct"
	}
	return "heap"
}

type BufferPoolConfig struct {
	// Capacity bounds both the pooled bytes and the total bytes ever allocated as direct buffers.
	Capacity   int
	BlockSize  int
	BigBufSize int
	BigRatio   float64
	UseDirect  bool
}

func (c *BufferPoolConfig) SetDefaultIfNotDefined() {
	if c.Capacity <= 0 {
		c.Capacity = DefaultBufferPoolConfig.Capacity
	}
	if c.BlockSize <= 0 {
		c.BlockSize = DefaultBufferPoolConfig.BlockSize
	}
	if c.BigBufSize <= 0 {
		c.BigBufSize = DefaultBufferPoolConfig.BigBufSize
	}
	if c.BigRatio <= 0 || c.BigRatio > 1 {
		c.BigRatio = DefaultBufferPoolConfig.BigRatio
	}
}

type slab struct {
	mem      []byte
	category BufferCategory
}

// Buffer is an ownership handle for a pooled byte region. Once released, the
// handle is dead and Bytes panics; the region may already belong to someone else.
type Buffer struct {
	s    *slab
	size int
	pool *BufferPool
}

func (b *Buffer) Bytes() []byte {
	if b.s == nil {
		panic(ErrBufferReleased)
	}
	return b.s.mem[:b.size]
}

func (b *Buffer) Len() int {
	return b.size
}

func (b *Buffer) Cap() int {
	if b.s == nil {
		return 0
	}
	return len(b.s.mem)
}

func (b *Buffer) Category() BufferCategory {
	if b.s == nil {
		return CategoryHeap
	}
	return b.s.category
}

// Resize changes the visible length without reallocating. It returns false if
// n does not fit in the underlying region.
func (b *Buffer) Resize(n int) bool {
	if b.s == nil || n < 0 || n > len(b.s.mem) {
		return false
	}
	b.size = n
	return true
}

func (b *Buffer) Released() bool {
	return b.s == nil
}

func (b *Buffer) Release() {
	b.pool.Release(b)
}

type BufferPoolStats struct {
	Hits        uint64
	Misses      uint64
	BigAllocs   uint64
	Adds        uint64
	Drops       uint64
	Pooled      int
	BigPooled   int
	NumFree     int
	DirectBytes int64
	HeapBytes   int64
}

// Utilization is the fraction of acquisitions served from the free lists.
func (s BufferPoolStats) Utilization() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// BufferPool hands out byte regions quantized to BlockSize and keeps released
// ones on per-size free lists, bounded by Capacity. Buffers at or above
// BigBufSize may only occupy Capacity*BigRatio bytes of the pool so they cannot
// crowd out the small ones.
type BufferPool struct {
	mu       sync.Mutex
	conf     BufferPoolConfig
	category BufferCategory
	bigLimit int
	free     map[int][]*slab

	stats BufferPoolStats
	sizes *hdrhistogram.Histogram
}

func NewBufferPool(conf BufferPoolConfig) *BufferPool {
	conf.SetDefaultIfNotDefined()
	p := &BufferPool{
		conf:     conf,
		bigLimit: int(float64(conf.Capacity) * conf.BigRatio),
		free:     make(map[int][]*slab),
		sizes:    hdrhistogram.New(1, math.MaxInt32, 2),
	}
	if conf.UseDirect {
		p.category = CategoryDirect
	}
	return p
}

func (p *BufferPool) Config() BufferPoolConfig {
	return p.conf
}

func (p *BufferPool) Category() BufferCategory {
	return p.category
}

func (p *BufferPool) roundUp(size int) int {
	bs := p.conf.BlockSize
	if size <= 0 {
		return bs
	}
	return ((size + bs - 1) / bs) * bs
}

// Acquire returns a buffer of length size.
func (p *BufferPool) Acquire(size int) *Buffer {
	if size < 0 {
		size = 0
	}
	allocSize := p.roundUp(size)

	p.mu.Lock()
	p.recordSize(size)
	if lst := p.free[allocSize]; len(lst) != 0 {
		s := lst[len(lst)-1]
		lst[len(lst)-1] = nil
		p.free[allocSize] = lst[:len(lst)-1]
		p.stats.Pooled -= allocSize
		if allocSize >= p.conf.BigBufSize {
			p.stats.BigPooled -= allocSize
		}
		p.stats.NumFree--
		p.stats.Hits++
		p.mu.Unlock()
		return &Buffer{s: s, size: size, pool: p}
	}

	p.stats.Misses++
	if allocSize >= p.conf.BigBufSize {
		p.stats.BigAllocs++
	}
	category := p.category
	if category == CategoryDirect && p.stats.DirectBytes >= int64(p.conf.Capacity) {
		category = CategoryHeap
		allocSize = size
	}
	if category == CategoryDirect {
		p.stats.DirectBytes += int64(allocSize)
	} else {
		p.stats.HeapBytes += int64(allocSize)
	}
	p.mu.Unlock()

	s := &slab{category: category}
	if category == CategoryDirect {
		s.mem = allocDirect(s, allocSize)
	} else {
		s.mem = make([]byte, allocSize)
	}
	return &Buffer{s: s, size: size, pool: p}
}

// Release hands the buffer back to the pool and invalidates the handle.
// Releasing the same handle twice panics.
func (p *BufferPool) Release(b *Buffer) {
	if b == nil {
		return
	}
	s := b.s
	if s == nil {
		panic(ErrBufferReleased)
	}
	b.s = nil
	b.size = 0

	sz := len(s.mem)
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.category != p.category || sz == 0 || sz%p.conf.BlockSize != 0 {
		p.stats.Drops++
		return
	}
	if sz >= p.conf.BigBufSize {
		if p.stats.BigPooled+sz > p.bigLimit {
			p.stats.Drops++
			return
		}
	}
	if p.stats.Pooled+sz > p.conf.Capacity {
		p.stats.Drops++
		return
	}
	p.free[sz] = append(p.free[sz], s)
	p.stats.Pooled += sz
	if sz >= p.conf.BigBufSize {
		p.stats.BigPooled += sz
	}
	p.stats.NumFree++
	p.stats.Adds++
}

// Clear empties the free lists. Buffers already handed out are not affected.
func (p *BufferPool) Clear() {
	p.mu.Lock()
	p.free = make(map[int][]*slab)
	p.stats.Pooled = 0
	p.stats.BigPooled = 0
	p.stats.NumFree = 0
	p.mu.Unlock()
}

func (p *BufferPool) Stats() BufferPoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// ResetStats zeroes the diagnostic counters. Pool accounting is left alone.
func (p *BufferPool) ResetStats() {
	p.mu.Lock()
	p.stats.Hits = 0
	p.stats.Misses = 0
	p.stats.BigAllocs = 0
	p.stats.Adds = 0
	p.stats.Drops = 0
	p.sizes.Reset()
	p.mu.Unlock()
}

func (p *BufferPool) recordSize(size int) {
	v := int64(size)
	if v < 1 {
		v = 1
	}
	if v > p.sizes.HighestTrackableValue() {
		v = p.sizes.HighestTrackableValue()
	}
	p.sizes.RecordValue(v)
}

// RequestSizeQuantile returns the requested size at quantile q (0..1).
func (p *BufferPool) RequestSizeQuantile(q float64) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sizes.ValueAtQuantile(q * 100)
}

func (p *BufferPool) String() string {
	st := p.Stats()
	return fmt.Sprintf("category=%s capacity=%d blockSize=%d bigBufSize=%d bigRatio=%.2f "+
		"pooled=%d bigPooled=%d numFree=%d hits=%d misses=%d bigAllocs=%d adds=%d drops=%d "+
		"direct=%d heap=%d utilization=%.2f",
		p.category, p.conf.Capacity, p.conf.BlockSize, p.conf.BigBufSize, p.conf.BigRatio,
		st.Pooled, st.BigPooled, st.NumFree, st.Hits, st.Misses, st.BigAllocs, st.Adds, st.Drops,
		st.DirectBytes, st.HeapBytes, st.Utilization())
}

// Contents lists the free lists as "size:count" pairs in ascending size order.
func (p *BufferPool) Contents() string {
	p.mu.Lock()
	sizes := make([]int, 0, len(p.free))
	counts := make(map[int]int, len(p.free))
	for sz, lst := range p.free {
		if len(lst) != 0 {
			sizes = append(sizes, sz)
			counts[sz] = len(lst)
		}
	}
	p.mu.Unlock()

	sort.Ints(sizes)
	var buf bytes.Buffer
	for i, sz := range sizes {
		if i != 0 {
			buf.WriteByte(' ')
		}
		fmt.Fprintf(&buf, "%d:%d", sz, counts[sz])
	}
	return buf.String()
}
