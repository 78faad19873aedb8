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
	"strconv"
	"strings"

	"mqwire/pkg/util"
)

const (
	SysMessageIDSize = 32

	sysMessageIDPrefix = "ID:"
)

// SysMessageID identifies a packet system-wide. Wire layout:
//
//	timestamp:i64 | address:16 | port:i32 | sequence:i32
type SysMessageID struct {
	Timestamp int64
	Address   IPAddress
	Port      int32
	Sequence  int32
}

func (id *SysMessageID) MarshalTo(b []byte) {
	EncByteOrder.PutUint64(b[0:], uint64(id.Timestamp))
	copy(b[8:24], id.Address[:])
	EncByteOrder.PutUint32(b[24:], uint32(id.Port))
	EncByteOrder.PutUint32(b[28:], uint32(id.Sequence))
}

func (id *SysMessageID) Unmarshal(b []byte) error {
	if len(b) < SysMessageIDSize {
		return ErrBufferTooShort
	}
	id.Timestamp = int64(EncByteOrder.Uint64(b[0:]))
	copy(id.Address[:], b[8:24])
	id.Port = int32(EncByteOrder.Uint32(b[24:]))
	id.Sequence = int32(EncByteOrder.Uint32(b[28:]))
	return nil
}

func (id SysMessageID) Bytes() []byte {
	b := make([]byte, SysMessageIDSize)
	id.MarshalTo(b)
	return b
}

// Equal compares the sequence first since that is where ids most often differ.
func (id SysMessageID) Equal(o SysMessageID) bool {
	return id.Sequence == o.Sequence &&
		id.Timestamp == o.Timestamp &&
		id.Port == o.Port &&
		id.Address == o.Address
}

func (id SysMessageID) Hash() uint32 {
	var b [SysMessageIDSize]byte
	id.MarshalTo(b[:])
	return util.Murmur3Hash(b[:])
}

func (id SysMessageID) IsZero() bool {
	return id.Sequence == 0 && id.Timestamp == 0 && id.Port == 0 && id.Address.IsNull()
}

// String formats the id as seq-address-port-timestamp.
func (id SysMessageID) String() string {
	var b strings.Builder
	b.Grow(64)
	b.WriteString(strconv.FormatInt(int64(id.Sequence), 10))
	b.WriteByte('-')
	b.WriteString(id.Address.String())
	b.WriteByte('-')
	b.WriteString(strconv.FormatInt(int64(id.Port), 10))
	b.WriteByte('-')
	b.WriteString(strconv.FormatInt(id.Timestamp, 10))
	return b.String()
}

// ParseSysMessageID parses the String form, with or without the "ID:" prefix.
// Negative numbers are accepted in any position.
func ParseSysMessageID(s string) (id SysMessageID, err error) {
	s = strings.TrimPrefix(s, sysMessageIDPrefix)
	fields := splitDashFields(s)
	if len(fields) != 4 {
		err = ErrInvalidSysMessageID
		return
	}
	var v int64
	if v, err = strconv.ParseInt(fields[0], 10, 32); err != nil {
		err = ErrInvalidSysMessageID
		return
	}
	id.Sequence = int32(v)
	if id.Address, err = ParseIPAddress(fields[1]); err != nil {
		return
	}
	if v, err = strconv.ParseInt(fields[2], 10, 32); err != nil {
		err = ErrInvalidSysMessageID
		return
	}
	id.Port = int32(v)
	if id.Timestamp, err = strconv.ParseInt(fields[3], 10, 64); err != nil {
		err = ErrInvalidSysMessageID
	}
	return
}

// splitDashFields splits on '-', treating a '-' at the start of a field as a
// minus sign.
func splitDashFields(s string) (fields []string) {
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '-' && i > start {
			fields = append(fields, s[start:i])
			start = i + 1
		}
	}
	return append(fields, s[start:])
}
