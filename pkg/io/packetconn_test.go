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

package io

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mqwire/pkg/proto"
	"mqwire/pkg/util"
)

func newPool(maxPacketSize int64) *proto.PacketPool {
	ctx := proto.NewContext(proto.Config{MaxPacketSize: maxPacketSize}, util.NewBufferPool(util.BufferPoolConfig{}))
	return proto.NewPacketPool(ctx, 8)
}

func textMessage(ctx *proto.Context, dest string, body []byte) *proto.Packet {
	p := proto.NewPacket(ctx)
	p.SetType(proto.PacketTypeTextMessage)
	p.SetDestination(dest)
	p.SetProperty("n", int32(len(body)))
	p.SetBody(body)
	return p
}

type collector struct {
	mu     sync.Mutex
	dests  []string
	bodies []string
}

func (c *collector) Dispatch(pkt *proto.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dests = append(c.dests, pkt.Destination())
	c.bodies = append(c.bodies, string(pkt.Body()))
	return nil
}

func sendAll(t *testing.T, conn net.Conn, conf ConnConfig, pkts ...*proto.Packet) <-chan error {
	errc := make(chan error, 1)
	go func() {
		pc := NewPacketConn(conn, conf, newPool(4*proto.MinMaxPacketSize))
		for _, p := range pkts {
			if err := pc.WritePacket(p); err != nil {
				errc <- err
				conn.Close()
				return
			}
		}
		errc <- conn.Close()
	}()
	return errc
}

func roundTrip(t *testing.T, conf ConnConfig) {
	client, server := net.Pipe()
	wctx := proto.NewContext(proto.Config{}, nil)
	errc := sendAll(t, client, conf,
		textMessage(wctx, "q1", []byte("one")),
		textMessage(wctx, "q2", []byte("two")),
		textMessage(wctx, "q3", nil),
	)

	pc := NewPacketConn(server, conf, newPool(0))
	defer pc.Close()
	for i, want := range []string{"one", "two", ""} {
		pkt, err := pc.ReadPacket()
		require.NoError(t, err)
		assert.Equal(t, proto.PacketTypeTextMessage, pkt.Type())
		assert.Equal(t, fmt.Sprintf("q%d", i+1), pkt.Destination())
		assert.Equal(t, want, string(pkt.Body()))
		v, ok := pkt.Property("n")
		require.True(t, ok)
		assert.Equal(t, int32(len(want)), v)
		pc.Release(pkt)
	}
	require.NoError(t, <-errc)

	st := pc.Pool().Stats()
	assert.Equal(t, uint64(3), st.Gets)
	assert.Equal(t, uint64(2), st.Hits)
}

func TestPacketConnBlocking(t *testing.T) {
	roundTrip(t, ConnConfig{})
}

func TestPacketConnNonBlocking(t *testing.T) {
	roundTrip(t, ConnConfig{
		NonBlocking:  true,
		PollInterval: util.Duration{Duration: 2 * time.Millisecond},
	})
}

func TestServeSkipsOversized(t *testing.T) {
	for _, nonBlocking := range []bool{false, true} {
		t.Run(fmt.Sprintf("nonBlocking=%t", nonBlocking), func(t *testing.T) {
			conf := ConnConfig{NonBlocking: nonBlocking, PollInterval: util.Duration{Duration: 2 * time.Millisecond}}
			client, server := net.Pipe()
			wctx := proto.NewContext(proto.Config{}, nil)
			errc := sendAll(t, client, conf,
				textMessage(wctx, "big", make([]byte, proto.MinMaxPacketSize)),
				textMessage(wctx, "small", []byte("hello")),
			)

			pc := NewPacketConn(server, conf, newPool(proto.MinMaxPacketSize))
			defer pc.Close()
			var got collector
			require.NoError(t, pc.Serve(context.Background(), &got))
			require.NoError(t, <-errc)
			assert.Equal(t, []string{"small"}, got.dests)
			assert.Equal(t, []string{"hello"}, got.bodies)
		})
	}
}

func TestServeCorruptedStream(t *testing.T) {
	client, server := net.Pipe()
	go func() {
		client.Write(make([]byte, proto.HeaderSize))
		client.Close()
	}()
	pc := NewPacketConn(server, ConnConfig{}, nil)
	defer pc.Close()

	err := pc.Serve(context.Background(), proto.DispatcherFunc(func(*proto.Packet) error {
		t.Fatal("unexpected dispatch")
		return nil
	}))
	var bad *proto.CorruptedStreamError
	require.True(t, errors.As(err, &bad), "got %v", err)
	assert.True(t, proto.IsFatal(err))
	assert.Equal(t, "corrupted", ErrorKind(err))
}

func TestServeTruncated(t *testing.T) {
	wctx := proto.NewContext(proto.Config{}, nil)
	b, err := textMessage(wctx, "q", []byte("truncated body")).Bytes()
	require.NoError(t, err)

	client, server := net.Pipe()
	go func() {
		client.Write(b[:len(b)-3])
		client.Close()
	}()
	pc := NewPacketConn(server, ConnConfig{}, nil)
	defer pc.Close()
	err = pc.Serve(context.Background(), &collector{})
	var trunc *proto.TruncatedError
	require.True(t, errors.As(err, &trunc), "got %v", err)
	assert.Equal(t, proto.HeaderSize, trunc.HeaderRead)
}

func TestServeContextCancel(t *testing.T) {
	for _, nonBlocking := range []bool{false, true} {
		t.Run(fmt.Sprintf("nonBlocking=%t", nonBlocking), func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()
			pc := NewPacketConn(server, ConnConfig{NonBlocking: nonBlocking, PollInterval: util.Duration{Duration: 2 * time.Millisecond}}, nil)
			defer pc.Close()

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() {
				done <- pc.Serve(ctx, &collector{})
			}()
			time.Sleep(20 * time.Millisecond)
			cancel()
			select {
			case err := <-done:
				assert.ErrorIs(t, err, context.Canceled)
			case <-time.After(5 * time.Second):
				t.Fatal("Serve did not return after cancel")
			}
		})
	}
}

func TestServeDispatchError(t *testing.T) {
	client, server := net.Pipe()
	wctx := proto.NewContext(proto.Config{}, nil)
	sendAll(t, client, ConnConfig{}, textMessage(wctx, "q", []byte("x")), textMessage(wctx, "q", []byte("y")))

	pc := NewPacketConn(server, ConnConfig{}, nil)
	stop := errors.New("stop")
	err := pc.Serve(context.Background(), proto.DispatcherFunc(func(*proto.Packet) error {
		return stop
	}))
	assert.Equal(t, stop, err)
	pc.Close()
}

func TestPollConnTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	pc := NewPollConn(server, time.Millisecond)
	n, err := pc.Read(make([]byte, 10))
	assert.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = pc.Write([]byte("nobody reads"))
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, int64(0), pc.BytesRead())
	assert.Equal(t, int64(0), pc.BytesWritten())

	go client.Write([]byte("abc"))
	buf := make([]byte, 10)
	for n == 0 {
		n, err = pc.Read(buf)
		require.NoError(t, err)
	}
	assert.Equal(t, "abc", string(buf[:n]))
	assert.Equal(t, int64(3), pc.BytesRead())
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, "oversized", ErrorKind(&proto.BigPacketError{Size: 10, Max: 5}))
	assert.Equal(t, "version", ErrorKind(&proto.VersionMismatchError{Version: 7}))
	assert.Equal(t, "decode", ErrorKind(fmt.Errorf("wrapped: %w", &proto.DecodeError{Section: "properties"})))
	assert.Equal(t, "usage", ErrorKind(proto.ErrConcurrentUse))
	assert.Equal(t, "idle", ErrorKind(ErrIdleTimeout))
	assert.Equal(t, "timeout", ErrorKind(ErrReadTimeout))
	assert.Equal(t, "size", ErrorKind(proto.ErrInvalidPacketSize))
	assert.Equal(t, "io", ErrorKind(errors.New("boom")))
}

func TestConnConfigDefaults(t *testing.T) {
	var c ConnConfig
	assert.True(t, c.SetDefaultIfNotDefined())
	assert.Equal(t, DefaultConnConfig, c)
	assert.False(t, c.SetDefaultIfNotDefined())

	c = ConnConfig{ReadTimeout: util.Duration{Duration: time.Minute}, IdleTimeout: util.Duration{Duration: time.Second}}
	c.SetDefaultIfNotDefined()
	assert.Equal(t, 2*time.Minute, c.IdleTimeout.Duration)
}

func TestPacketConnStalledPacket(t *testing.T) {
	wctx := proto.NewContext(proto.Config{}, nil)
	b, err := textMessage(wctx, "q", []byte("the tail never arrives")).Bytes()
	require.NoError(t, err)

	for _, nonBlocking := range []bool{false, true} {
		t.Run(fmt.Sprintf("nonBlocking=%t", nonBlocking), func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()
			go client.Write(b[:proto.HeaderSize+4])

			conf := ConnConfig{
				NonBlocking:  nonBlocking,
				IdleTimeout:  util.Duration{Duration: time.Minute},
				ReadTimeout:  util.Duration{Duration: 30 * time.Millisecond},
				PollInterval: util.Duration{Duration: 2 * time.Millisecond},
			}
			pc := NewPacketConn(server, conf, nil)
			defer pc.Close()

			start := time.Now()
			_, err := pc.ReadPacket()
			assert.Equal(t, ErrReadTimeout, err)
			assert.Less(t, time.Since(start), 10*time.Second)
			assert.True(t, proto.IsFatal(err))
			assert.Equal(t, 1, pc.Pool().Stats().Pooled)
		})
	}
}

func TestPacketConnIdleBeforePacket(t *testing.T) {
	for _, nonBlocking := range []bool{false, true} {
		t.Run(fmt.Sprintf("nonBlocking=%t", nonBlocking), func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()

			conf := ConnConfig{
				NonBlocking:  nonBlocking,
				IdleTimeout:  util.Duration{Duration: 40 * time.Millisecond},
				ReadTimeout:  util.Duration{Duration: 10 * time.Millisecond},
				PollInterval: util.Duration{Duration: 2 * time.Millisecond},
			}
			pc := NewPacketConn(server, conf, nil)
			defer pc.Close()

			_, err := pc.ReadPacket()
			assert.Equal(t, ErrIdleTimeout, err)
		})
	}
}
