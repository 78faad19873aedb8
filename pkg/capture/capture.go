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

// Package capture records packets to a file and reads them back.
//
// File layout, all integers big-endian:
//
//	0       4       6   7   8                      24
//	+-------+-------+---+---+----------------------+
//	| MQWC  | ver   |cod|rsv| session uuid         |
//	+-------+-------+---+---+----------------------+
//
// followed by records:
//
//	0     1        5        9                 17
//	+-----+--------+--------+-----------------+--------------+
//	|flags| rawLen |storedLn| xxhash64(raw)   | stored bytes |
//	+-----+--------+--------+-----------------+--------------+
//
// flags bit 0 marks a GPacket, bit 1 marks a record stored without compression.
package capture

import (
	"encoding/binary"
	"errors"
	"strings"
)

const (
	Magic         = "MQWC"
	FormatVersion = uint16(1)

	FileHeaderSize   = 24
	RecordHeaderSize = 17

	FlagGPacket = uint8(1 << 0)
	FlagRaw     = uint8(1 << 1)
)

var (
	EncByteOrder = binary.BigEndian

	ErrBadMagic           = errors.New("not a capture file")
	ErrUnsupportedVersion = errors.New("unsupported capture format version")
	ErrChecksum           = errors.New("capture record checksum mismatch")
	ErrRecordTooLarge     = errors.New("capture record too large")
)

var DefaultConfig = Config{
	Codec:         "snappy",
	MaxRecordSize: 64 * 1024 * 1024,
	BufferSize:    64 * 1024,
}

type Config struct {
	// Codec is one of none, snappy, s2, zstd or lz4.
	Codec         string
	MaxRecordSize int
	BufferSize    int
}

func (c *Config) SetDefaultIfNotDefined() (set bool) {
	if c.Codec == "" {
		c.Codec = DefaultConfig.Codec
		set = true
	}
	if c.MaxRecordSize <= 0 {
		c.MaxRecordSize = DefaultConfig.MaxRecordSize
		set = true
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultConfig.BufferSize
		set = true
	}
	return
}

func (c *Config) Validate() error {
	c.SetDefaultIfNotDefined()
	c.Codec = strings.ToLower(c.Codec)
	_, err := ParseCodec(c.Codec)
	return err
}
