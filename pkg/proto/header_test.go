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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSysMessageID() SysMessageID {
	return SysMessageID{
		Timestamp: 1700000000000,
		Address:   IPAddressFromIP(net.ParseIP("10.1.2.3")),
		Port:      7676,
		Sequence:  42,
	}
}

func testFixedHeader(version uint16) fixedHeader {
	return fixedHeader{
		version:       version,
		packetType:    PacketTypeTextMessage,
		transactionID: -5,
		expiration:    123456,
		sysMessageID:  testSysMessageID(),
		priority:      4,
		encryption:    1,
		flags:         FlagPersistent | FlagIsBrowse,
		consumerID:    -7,
	}
}

func TestFixedHeaderRoundTrip(t *testing.T) {
	for _, version := range []uint16{Version1, Version2, Version3} {
		h := testFixedHeader(version)
		h.setSizes(8, 17, 5)
		var b [HeaderSize]byte
		h.marshalTo(b[:])

		var got fixedHeader
		require.NoError(t, got.unmarshal(b[:]))

		want := h
		if version == Version1 {
			want.flags = FlagPersistent
		} else {
			want.transactionID = 0
		}
		assert.Equal(t, want, got, "version %d", version)
		assert.Equal(t, uint32(HeaderSize+8+17+5), got.size)
		assert.Equal(t, uint32(HeaderSize+8), got.propertiesOffset)
	}
}

func TestFixedHeaderOffsets(t *testing.T) {
	h := testFixedHeader(Version3)
	h.setSizes(0, 17, 5)
	var b [HeaderSize]byte
	h.marshalTo(b[:])

	assert.Equal(t, Magic, EncByteOrder.Uint32(b[0:]))
	assert.Equal(t, Version3, EncByteOrder.Uint16(b[4:]))
	assert.Equal(t, uint16(PacketTypeTextMessage), EncByteOrder.Uint16(b[6:]))
	assert.Equal(t, uint32(94), EncByteOrder.Uint32(b[8:]))
	assert.Equal(t, uint64(123456), EncByteOrder.Uint64(b[12:]))
	assert.Equal(t, uint32(42), EncByteOrder.Uint32(b[48:]))
	assert.Equal(t, uint32(72), EncByteOrder.Uint32(b[52:]))
	assert.Equal(t, uint32(17), EncByteOrder.Uint32(b[56:]))
	assert.Equal(t, byte(4), b[60])
	assert.Equal(t, uint16(FlagPersistent|FlagIsBrowse), EncByteOrder.Uint16(b[62:]))
	assert.Equal(t, int64(-7), int64(EncByteOrder.Uint64(b[64:])))

	h = testFixedHeader(Version1)
	h.setSizes(4, 0, 0)
	h.marshalTo(b[:])
	assert.Equal(t, int32(-5), int32(EncByteOrder.Uint32(b[12:])))
	assert.Equal(t, uint64(123456), EncByteOrder.Uint64(b[16:]))
	assert.Equal(t, uint32(76), EncByteOrder.Uint32(b[56:]))
	assert.Equal(t, int32(-7), int32(EncByteOrder.Uint32(b[68:])))
}

func TestFixedHeaderBadMagic(t *testing.T) {
	h := testFixedHeader(Version3)
	var b [HeaderSize]byte
	h.marshalTo(b[:])
	b[0] = 0x7F

	var got fixedHeader
	err := got.unmarshal(b[:])
	var cerr *CorruptedStreamError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, EncByteOrder.Uint32(b[:]), cerr.Magic)
	assert.True(t, IsFatal(err))
}

func TestFixedHeaderUnknownVersion(t *testing.T) {
	h := testFixedHeader(Version3)
	var b [HeaderSize]byte
	h.marshalTo(b[:])
	EncByteOrder.PutUint16(b[4:], 999)

	var got fixedHeader
	require.NoError(t, got.unmarshal(b[:]))
	assert.True(t, got.versionMismatch)
	assert.Equal(t, uint16(999), got.version)

	assert.ErrorIs(t, got.unmarshal(b[:10]), ErrBufferTooShort)
}

func TestPacketTypeAndFlagNames(t *testing.T) {
	assert.Equal(t, "TEXT_MESSAGE", PacketTypeTextMessage.String())
	assert.Equal(t, "UNKNOWN(9999)", PacketType(9999).String())
	assert.True(t, PacketTypeHelloReply.IsReply())
	assert.True(t, PacketTypeAuthenticateRequest.IsReply())
	assert.False(t, PacketTypePing.IsReply())
	assert.True(t, PacketTypeTextMessage.IsMessage())

	assert.Equal(t, "-", PacketFlag(0).String())
	assert.Equal(t, "QP", (FlagIsQueue | FlagPersistent).String())
}
