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
	"io"
	"net"
	"sync"
	"time"

	"github.com/golang/glog"

	"mqwire/pkg/io/ioutil"
	"mqwire/pkg/logging"
	"mqwire/pkg/logging/otel"
	"mqwire/pkg/proto"
)

var (
	ErrIdleTimeout = errors.New("connection idle timeout")
	// ErrReadTimeout means a packet stopped arriving part way through. The
	// stream is no longer aligned.
	ErrReadTimeout = errors.New("packet read timeout")
)

// PacketConn reads and writes packets on one connection. Reads draw packets
// from a PacketPool; the caller returns them with Release once done.
type PacketConn struct {
	conn net.Conn
	poll *PollConn
	conf ConnConfig
	pool *proto.PacketPool
	wmu  sync.Mutex
}

func NewPacketConn(conn net.Conn, conf ConnConfig, pool *proto.PacketPool) *PacketConn {
	conf.SetDefaultIfNotDefined()
	if pool == nil {
		pool = proto.NewPacketPool(nil, conf.PacketPoolSize)
	}
	return &PacketConn{
		conn: conn,
		poll: NewPollConn(conn, conf.PollInterval.Duration),
		conf: conf,
		pool: pool,
	}
}

func (c *PacketConn) Pool() *proto.PacketPool {
	return c.pool
}

func (c *PacketConn) Release(pkt *proto.Packet) {
	c.pool.Put(pkt)
}

func (c *PacketConn) Close() error {
	return c.conn.Close()
}

func (c *PacketConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// ReadPacket returns the next complete and validated packet. Oversized and
// version mismatched packets are consumed from the stream and reported as errors
// for which proto.IsFatal is false.
func (c *PacketConn) ReadPacket() (*proto.Packet, error) {
	return c.readPacket(context.Background())
}

func (c *PacketConn) readPacket(ctx context.Context) (*proto.Packet, error) {
	pkt := c.pool.Get()
	var err error
	if c.conf.NonBlocking {
		err = c.pollRead(ctx, pkt)
	} else {
		err = c.blockingRead(ctx, pkt)
	}
	if err == nil {
		err = pkt.Validate()
	}
	if err != nil {
		c.pool.Put(pkt)
		return nil, err
	}
	otel.RecordPacketRead(pkt.Type().String(), pkt.Size())
	return pkt, nil
}

func (c *PacketConn) blockingRead(ctx context.Context, pkt *proto.Packet) (err error) {
	if c.conf.IdleTimeout.Duration > 0 {
		if err = c.conn.SetReadDeadline(time.Now().Add(c.conf.IdleTimeout.Duration)); err != nil {
			return
		}
	}
	r := &stallReader{ctx: ctx, conn: c.conn, timeout: c.conf.ReadTimeout.Duration}
	_, err = pkt.Read(r)
	if isTimeout(err) {
		if r.started {
			err = ErrReadTimeout
		} else {
			err = ErrIdleTimeout
		}
	}
	return
}

// stallReader moves the read deadline to timeout from now after every read
// that returns data, so the idle deadline only covers the wait for the first
// byte of a packet.
type stallReader struct {
	ctx     context.Context
	conn    net.Conn
	timeout time.Duration
	started bool
}

func (r *stallReader) Read(b []byte) (n int, err error) {
	n, err = r.conn.Read(b)
	if n > 0 {
		r.started = true
		if r.timeout > 0 && r.ctx.Err() == nil {
			if derr := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); derr != nil && err == nil {
				err = derr
			}
		}
	}
	return
}

func (c *PacketConn) pollRead(ctx context.Context, pkt *proto.Packet) error {
	var bigErr error
	start := c.poll.BytesRead()
	last := start
	lastProgress := time.Now()
	for {
		done, err := pkt.ReadPacket(c.poll)
		if err != nil {
			var big *proto.BigPacketError
			if !errors.As(err, &big) {
				return err
			}
			bigErr = err
		}
		if done {
			return bigErr
		}
		if n := c.poll.BytesRead(); n != last {
			last = n
			lastProgress = time.Now()
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		stalled := time.Since(lastProgress)
		if last != start {
			if rt := c.conf.ReadTimeout.Duration; rt > 0 && stalled > rt {
				return ErrReadTimeout
			}
		} else if stalled > c.conf.IdleTimeout.Duration {
			return ErrIdleTimeout
		}
	}
}

func (c *PacketConn) WritePacket(pkt *proto.Packet) (err error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.conf.NonBlocking {
		err = c.pollWrite(pkt)
	} else {
		if err = c.conn.SetWriteDeadline(time.Now().Add(c.conf.WriteTimeout.Duration)); err != nil {
			return
		}
		_, err = pkt.Write(c.conn)
	}
	if err != nil {
		otel.RecordPacketError(ErrorKind(err))
		return
	}
	otel.RecordPacketWrite(pkt.Type().String(), pkt.Size())
	return
}

func (c *PacketConn) pollWrite(pkt *proto.Packet) error {
	last := c.poll.BytesWritten()
	lastProgress := time.Now()
	for {
		done, err := pkt.WritePacket(c.poll)
		if err != nil || done {
			return err
		}
		if n := c.poll.BytesWritten(); n != last {
			last = n
			lastProgress = time.Now()
		} else if time.Since(lastProgress) > c.conf.WriteTimeout.Duration {
			return ErrIdleTimeout
		}
	}
}

// Serve reads packets and hands each to d until the peer closes the connection,
// ctx is cancelled, a fatal stream error occurs or d fails. Packets go back to
// the pool once Dispatch returns; a dispatcher that keeps one must copy it.
// A clean EOF between packets ends Serve with a nil error.
func (c *PacketConn) Serve(ctx context.Context, d proto.Dispatcher) error {
	stop := make(chan struct{})
	defer close(stop)
	if !c.conf.NonBlocking {
		go func() {
			select {
			case <-ctx.Done():
				c.conn.SetReadDeadline(time.Now())
			case <-stop:
			}
		}()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pkt, err := c.readPacket(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err == io.EOF {
				if logging.LOG_DEBUG {
					logging.Debugf("peer %s closed connection", c.conn.RemoteAddr())
				}
				return nil
			}
			otel.RecordPacketError(ErrorKind(err))
			if !proto.IsFatal(err) {
				if logging.LOG_WARN {
					b := logging.NewKVBufferForLog()
					b.Add("remote", addrString(c.conn.RemoteAddr())).Add("kind", ErrorKind(err)).AddError(err)
					glog.Warningf("skipped packet: %s", b.String())
				}
				continue
			}
			ioutil.LogError(err)
			return err
		}
		err = d.Dispatch(pkt)
		c.pool.Put(pkt)
		if err != nil {
			return err
		}
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

// ErrorKind classifies err for logs and metrics.
func ErrorKind(err error) string {
	var (
		big   *proto.BigPacketError
		ver   *proto.VersionMismatchError
		dec   *proto.DecodeError
		bad   *proto.CorruptedStreamError
		trunc *proto.TruncatedError
		usage *proto.UsageError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &big):
		return "oversized"
	case errors.As(err, &ver):
		return "version"
	case errors.As(err, &dec):
		return "decode"
	case errors.As(err, &bad):
		return "corrupted"
	case errors.As(err, &trunc):
		return "truncated"
	case errors.As(err, &usage):
		return "usage"
	case errors.Is(err, ErrIdleTimeout):
		return "idle"
	case errors.Is(err, ErrReadTimeout):
		return "timeout"
	case errors.Is(err, proto.ErrInvalidPacketSize):
		return "size"
	}
	return "io"
}
