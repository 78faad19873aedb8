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
	"time"

	"mqwire/pkg/util"
)

var (
	DefaultConnConfig = ConnConfig{
		IdleTimeout:    util.Duration{Duration: 120 * time.Second},
		ReadTimeout:    util.Duration{Duration: 500 * time.Millisecond},
		WriteTimeout:   util.Duration{Duration: 500 * time.Millisecond},
		PollInterval:   util.Duration{Duration: 50 * time.Millisecond},
		PacketPoolSize: 256,
	}
)

type ConnConfig struct {
	// IdleTimeout bounds how long a read may wait for the next packet to start.
	IdleTimeout util.Duration
	// ReadTimeout bounds how long a packet that has started arriving may stall
	// between chunks.
	ReadTimeout  util.Duration
	WriteTimeout util.Duration
	// PollInterval is the deadline used for each zero-progress poll when NonBlocking is set.
	PollInterval   util.Duration
	NonBlocking    bool
	PacketPoolSize int
}

func (conf *ConnConfig) SetDefaultIfNotDefined() (set bool) {
	if conf.IdleTimeout.Duration == 0 {
		set = true
		conf.IdleTimeout = DefaultConnConfig.IdleTimeout
	}
	if conf.ReadTimeout.Duration == 0 {
		set = true
		conf.ReadTimeout = DefaultConnConfig.ReadTimeout
	}
	if conf.WriteTimeout.Duration == 0 {
		set = true
		conf.WriteTimeout = DefaultConnConfig.WriteTimeout
	}
	if conf.PollInterval.Duration == 0 {
		set = true
		conf.PollInterval = DefaultConnConfig.PollInterval
	}
	if conf.IdleTimeout.Duration < conf.ReadTimeout.Duration {
		set = true
		conf.IdleTimeout.Duration = 2 * conf.ReadTimeout.Duration
	}
	if conf.PacketPoolSize == 0 {
		set = true
		conf.PacketPoolSize = DefaultConnConfig.PacketPoolSize
	}
	return
}
