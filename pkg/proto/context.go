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
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"mqwire/pkg/util"
)

type Config struct {
	// MaxPacketSize bounds accepted packets. Values below MinMaxPacketSize are raised to it.
	MaxPacketSize int64
	// OriginAddress and OriginPort are stamped into the SysMessageID of
	// packets created from the context.
	OriginAddress string
	OriginPort    int32
	// EmbedMAC adds a pseudo MAC address to an IPv4 origin address.
	EmbedMAC bool
}

var (
	DefaultConfig = Config{
		MaxPacketSize: DefaultMaxPacketSize,
	}

	defaultContext     *Context
	defaultContextOnce sync.Once
)

func (c *Config) SetDefaultIfNotDefined() {
	if c.MaxPacketSize <= 0 {
		c.MaxPacketSize = DefaultConfig.MaxPacketSize
	}
	if c.MaxPacketSize < MinMaxPacketSize {
		c.MaxPacketSize = MinMaxPacketSize
	}
}

// Context is the process-wide state shared by packets: sequence counters,
// clock, size limit and buffer pool.
type Context struct {
	seq           util.AtomicCounter
	gseq          util.AtomicInt64Counter
	maxPacketSize int64
	pool          *util.BufferPool
	origin        IPAddress
	port          int32
	now           func() time.Time
}

func NewContext(conf Config, pool *util.BufferPool) *Context {
	conf.SetDefaultIfNotDefined()
	if pool == nil {
		pool = util.NewBufferPool(util.DefaultBufferPoolConfig)
	}
	c := &Context{
		maxPacketSize: conf.MaxPacketSize,
		pool:          pool,
		origin:        NullIPAddress,
		port:          conf.OriginPort,
		now:           time.Now,
	}
	if conf.OriginAddress != "" {
		if ip := net.ParseIP(conf.OriginAddress); ip != nil {
			c.origin = IPAddressFromIP(ip)
		} else {
			glog.Warningf("ignoring invalid origin address %q", conf.OriginAddress)
		}
	}
	if conf.EmbedMAC {
		if a, err := c.origin.WithMAC(RandomMAC()); err == nil {
			c.origin = a
		} else {
			glog.Warningf("cannot embed MAC into origin address %s", c.origin)
		}
	}
	return c
}

// DefaultContext returns a context built from DefaultConfig and a default
// heap buffer pool.
func DefaultContext() *Context {
	defaultContextOnce.Do(func() {
		defaultContext = NewContext(DefaultConfig, nil)
	})
	return defaultContext
}

func (c *Context) NextSequence() int32 {
	return c.seq.Next()
}

func (c *Context) NextGSequence() int64 {
	return c.gseq.Next()
}

func (c *Context) NowMillis() int64 {
	return c.now().UnixMilli()
}

// SetClock replaces the time source used for packet timestamps.
func (c *Context) SetClock(now func() time.Time) {
	c.now = now
}

func (c *Context) MaxPacketSize() int64 {
	return atomic.LoadInt64(&c.maxPacketSize)
}

// SetMaxPacketSize sets the largest accepted packet and returns the value in
// effect, which is never below MinMaxPacketSize.
func (c *Context) SetMaxPacketSize(n int64) int64 {
	if n < MinMaxPacketSize {
		n = MinMaxPacketSize
	}
	atomic.StoreInt64(&c.maxPacketSize, n)
	return n
}

func (c *Context) BufferPool() *util.BufferPool {
	return c.pool
}

func (c *Context) Origin() (IPAddress, int32) {
	return c.origin, c.port
}
