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
	"errors"
	"fmt"
)

type ProtocolError struct {
	what string
}

func (e *ProtocolError) Error() string {
	return "ProtocolError: " + e.what
}

// UsageError reports a programming error in how a packet is driven. It never
// originates from the wire.
type UsageError struct {
	what string
}

func (e *UsageError) Error() string {
	return "UsageError: " + e.what
}

var (
	ErrStringTooLong       = &ProtocolError{"string longer than 65535 bytes"}
	ErrBufferTooShort      = &ProtocolError{"input buffer too short"}
	ErrInvalidSysMessageID = &ProtocolError{"invalid system message id"}
	ErrInvalidIPAddress    = &ProtocolError{"invalid IP address"}
	ErrInvalidPacketSize   = &ProtocolError{"packet size smaller than header"}

	ErrPacketDestroyed = &UsageError{"packet used after destroy"}
	ErrReadInProgress  = &UsageError{"packet has a read in progress"}
	ErrWriteInProgress = &UsageError{"packet has a write in progress"}
	ErrConcurrentUse   = &UsageError{"packet entered concurrently"}
)

// CorruptedStreamError means the magic number did not match. Nothing after it
// on the stream can be trusted.
type CorruptedStreamError struct {
	Magic uint32
}

func (e *CorruptedStreamError) Error() string {
	return fmt.Sprintf("corrupted stream: bad magic number %d (0x%08X)", e.Magic, e.Magic)
}

// BigPacketError reports a packet larger than the configured maximum. The
// packet body is discarded; SkipRemaining is the number of bytes still to be
// skipped when the error was returned.
type BigPacketError struct {
	Size          int64
	Max           int64
	SkipRemaining int64
}

func (e *BigPacketError) Error() string {
	return fmt.Sprintf("packet size %d exceeds maximum %d (%d bytes left to skip)", e.Size, e.Max, e.SkipRemaining)
}

type VersionMismatchError struct {
	Version uint16
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("unsupported packet version %d, expected %d, %d or %d", e.Version, Version1, Version2, Version3)
}

// DecodeError is local to one section (variable header, properties); the
// fixed header is still valid.
type DecodeError struct {
	Section string
	Offset  int
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s decode error at offset %d: %s", e.Section, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// TruncatedError is returned when the transport ends before the packet is
// complete.
type TruncatedError struct {
	HeaderRead int
	BodyRead   int
	Size       int
	Err        error
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("truncated packet: header %d/%d, body %d, packet size %d: %s",
		e.HeaderRead, HeaderSize, e.BodyRead, e.Size, e.Err)
}

func (e *TruncatedError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err leaves the stream in an unusable state. Oversized
// packets, version mismatches and section decode errors keep the stream
// aligned on the next packet.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var (
		big *BigPacketError
		ver *VersionMismatchError
		dec *DecodeError
	)
	if errors.As(err, &big) || errors.As(err, &ver) || errors.As(err, &dec) {
		return false
	}
	return true
}
