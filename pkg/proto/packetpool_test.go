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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketPool(t *testing.T) {
	ctx := newTestContext()
	pool := NewPacketPool(ctx, 2)

	a, b, c := pool.Get(), pool.Get(), pool.Get()
	a.SetType(PacketTypePing)
	pool.Put(a)
	pool.Put(b)
	pool.Put(c)
	assert.True(t, c.Destroyed())

	st := pool.Stats()
	assert.Equal(t, uint64(3), st.Gets)
	assert.Equal(t, uint64(3), st.Misses)
	assert.Equal(t, uint64(3), st.Puts)
	assert.Equal(t, uint64(1), st.Drops)
	assert.Equal(t, 2, st.Pooled)

	d := pool.Get()
	assert.False(t, d.Destroyed())
	assert.Equal(t, PacketTypeNull, d.Type())
	assert.Equal(t, uint64(1), pool.Stats().Hits)

	d.Destroy()
	pool.Put(d)
	assert.Equal(t, uint64(2), pool.Stats().Drops)
	assert.Equal(t, 1, pool.Stats().Pooled)

	pool.Clear()
	assert.Equal(t, 0, pool.Stats().Pooled)
	assert.Contains(t, pool.String(), "drops=2")
}

func TestPacketPoolRecyclesReadBuffers(t *testing.T) {
	ctx := newTestContext()
	pool := NewPacketPool(ctx, 4)
	b := mustBytes(t, newTextMessage(ctx, "recycled"))

	p := pool.Get()
	_, err := p.Read(bytes.NewReader(b))
	require.NoError(t, err)
	pool.Put(p)
	misses := ctx.BufferPool().Stats().Misses

	p = pool.Get()
	_, err = p.Read(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, "recycled", string(p.Body()))
	assert.Equal(t, misses, ctx.BufferPool().Stats().Misses)
}

func TestPacketPoolConcurrent(t *testing.T) {
	ctx := newTestContext()
	pool := NewPacketPool(ctx, 8)
	b := mustBytes(t, newTextMessage(ctx, "concurrent"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p := pool.Get()
				if _, err := p.Read(bytes.NewReader(b)); err != nil {
					t.Error(err)
				}
				pool.Put(p)
			}
		}()
	}
	wg.Wait()

	st := pool.Stats()
	assert.Equal(t, uint64(800), st.Gets)
	assert.Equal(t, st.Gets, st.Hits+st.Misses)
	assert.Equal(t, uint64(800), st.Puts)
	assert.LessOrEqual(t, st.Pooled, 8)
}
