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
	"errors"
	"net"
	"os"
	"sync/atomic"
	"time"
)

// PollConn makes a net.Conn behave like a non-blocking channel: a read or write
// that hits the poll deadline reports the bytes moved so far and a nil error.
type PollConn struct {
	net.Conn
	interval time.Duration
	nRead    int64
	nWritten int64
}

func NewPollConn(conn net.Conn, interval time.Duration) *PollConn {
	if interval <= 0 {
		interval = DefaultConnConfig.PollInterval.Duration
	}
	return &PollConn{Conn: conn, interval: interval}
}

func (c *PollConn) Read(b []byte) (n int, err error) {
	if err = c.Conn.SetReadDeadline(time.Now().Add(c.interval)); err != nil {
		return
	}
	n, err = c.Conn.Read(b)
	atomic.AddInt64(&c.nRead, int64(n))
	if isTimeout(err) {
		err = nil
	}
	return
}

func (c *PollConn) Write(b []byte) (n int, err error) {
	if err = c.Conn.SetWriteDeadline(time.Now().Add(c.interval)); err != nil {
		return
	}
	n, err = c.Conn.Write(b)
	atomic.AddInt64(&c.nWritten, int64(n))
	if isTimeout(err) {
		err = nil
	}
	return
}

func (c *PollConn) BytesRead() int64 {
	return atomic.LoadInt64(&c.nRead)
}

func (c *PollConn) BytesWritten() int64 {
	return atomic.LoadInt64(&c.nWritten)
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
