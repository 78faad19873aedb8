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

type (
	headerLayout uint8

	// fixedHeader is the canonical in-memory form of every header version.
	fixedHeader struct {
		version          uint16
		packetType       PacketType
		size             uint32
		transactionID    int64
		expiration       int64
		sysMessageID     SysMessageID
		propertiesOffset uint32
		propertiesSize   uint32
		priority         uint8
		encryption       uint8
		flags            PacketFlag
		consumerID       int64

		versionMismatch bool
	}
)

const (
	layoutCurrent headerLayout = iota
	layoutV1
)

// Byte offsets of the fields following the size, per layout.
var layoutOffsets = [...]struct {
	transactionID int
	expiration    int
	sysMessageID  int
	propOffset    int
	propSize      int
	priority      int
	encryption    int
	flags         int
	consumerID    int
}{
	layoutCurrent: {-1, 12, 20, 52, 56, 60, 61, 62, 64},
	layoutV1:      {12, 16, 24, 56, 60, 64, 65, 66, 68},
}

func layoutOf(version uint16) (l headerLayout, known bool) {
	switch version {
	case Version1:
		return layoutV1, true
	case Version2, Version3:
		return layoutCurrent, true
	}
	return layoutCurrent, false
}

func (h *fixedHeader) reset() {
	*h = fixedHeader{
		version:      CurrentVersion,
		priority:     DefaultPriority,
		sysMessageID: SysMessageID{Address: NullIPAddress},
	}
}

// unmarshal decodes b[:HeaderSize]. A bad magic number is returned as
// *CorruptedStreamError. An unknown version is not an error here; it sets
// versionMismatch and the newest layout is used for the remaining fields.
func (h *fixedHeader) unmarshal(b []byte) error {
	if len(b) < HeaderSize {
		return ErrBufferTooShort
	}
	if magic := EncByteOrder.Uint32(b[0:]); magic != Magic {
		return &CorruptedStreamError{Magic: magic}
	}
	h.version = EncByteOrder.Uint16(b[4:])
	h.packetType = PacketType(EncByteOrder.Uint16(b[6:]))
	h.size = EncByteOrder.Uint32(b[8:])

	l, known := layoutOf(h.version)
	h.versionMismatch = !known
	off := &layoutOffsets[l]

	h.transactionID = 0
	if l == layoutV1 {
		h.transactionID = int64(int32(EncByteOrder.Uint32(b[off.transactionID:])))
	}
	h.expiration = int64(EncByteOrder.Uint64(b[off.expiration:]))
	h.sysMessageID.Unmarshal(b[off.sysMessageID:])
	h.propertiesOffset = EncByteOrder.Uint32(b[off.propOffset:])
	h.propertiesSize = EncByteOrder.Uint32(b[off.propSize:])
	h.priority = b[off.priority]
	h.encryption = b[off.encryption]
	h.flags = PacketFlag(EncByteOrder.Uint16(b[off.flags:]))
	if l == layoutV1 {
		h.consumerID = int64(int32(EncByteOrder.Uint32(b[off.consumerID:])))
		// the upper byte was never used by V1 senders and may hold garbage
		h.flags &= legacyFlagMask
	} else {
		h.consumerID = int64(EncByteOrder.Uint64(b[off.consumerID:]))
	}
	return nil
}

// setSizes recomputes the offsets and total size from the region lengths.
func (h *fixedHeader) setSizes(varSize, propSize, bodySize int) {
	h.propertiesOffset = uint32(HeaderSize + varSize)
	h.propertiesSize = uint32(propSize)
	h.size = h.propertiesOffset + h.propertiesSize + uint32(bodySize)
}

// marshalTo writes the header in the layout of h.version into b[:HeaderSize].
func (h *fixedHeader) marshalTo(b []byte) {
	l, _ := layoutOf(h.version)
	off := &layoutOffsets[l]

	EncByteOrder.PutUint32(b[0:], Magic)
	EncByteOrder.PutUint16(b[4:], h.version)
	EncByteOrder.PutUint16(b[6:], uint16(h.packetType))
	EncByteOrder.PutUint32(b[8:], h.size)
	if l == layoutV1 {
		EncByteOrder.PutUint32(b[off.transactionID:], uint32(h.transactionID))
	}
	EncByteOrder.PutUint64(b[off.expiration:], uint64(h.expiration))
	h.sysMessageID.MarshalTo(b[off.sysMessageID:])
	EncByteOrder.PutUint32(b[off.propOffset:], h.propertiesOffset)
	EncByteOrder.PutUint32(b[off.propSize:], h.propertiesSize)
	b[off.priority] = h.priority
	b[off.encryption] = h.encryption
	if l == layoutV1 {
		EncByteOrder.PutUint16(b[off.flags:], uint16(h.flags&legacyFlagMask))
		EncByteOrder.PutUint32(b[off.consumerID:], uint32(h.consumerID))
	} else {
		EncByteOrder.PutUint16(b[off.flags:], uint16(h.flags))
		EncByteOrder.PutUint64(b[off.consumerID:], uint64(h.consumerID))
	}
}
