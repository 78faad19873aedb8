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
	"bytes"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"mqwire/pkg/util"
)

// GPacket is the generic packet used between brokers: a 36-byte header, a
// property blob and an opaque payload.
//
//	 0       2       4               8              12              16
//	+-------+-------+---------------+---------------+---------------+
//	|version| type  |     size      |     magic     |   propsSize   |
//	+-------+-------+---------------+---------------+---------------+
//	|           timestamp           |           sequence            |
//	+---------------+---------------+-------------------------------+
//	|   bitFlags    |
//	+---------------+
const (
	GVersion    uint16 = 350
	GMagic      uint32 = 2147476418
	GHeaderSize        = 36
)

type GBit uint32

const (
	GBitA GBit = 1 << iota
	GBitB
	GBitC
	GBitD
	GBitE
	GBitF
	GBitG
	GBitH
	GBitI
	GBitJ
	GBitK
	GBitL
	GBitM
	GBitN
	GBitO
	GBitP
	GBitQ
	GBitR
	GBitS
	GBitT
	GBitU
	GBitV
	GBitW
	GBitX
	GBitY
	GBitZ
	GBita
	GBitb
	GBitc
	GBitd
	GBite
	GBitf
)

const gBitLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdef"

// String lists the letters of the set bits, or "-" if none is set.
func (b GBit) String() string {
	if b == 0 {
		return "-"
	}
	var sb strings.Builder
	for i := 0; i < 32; i++ {
		if b&(1<<uint(i)) != 0 {
			sb.WriteByte(gBitLetters[i])
		}
	}
	return sb.String()
}

type GPacket struct {
	ctx *Context

	hdrBuf    [GHeaderSize]byte
	version   uint16
	gtype     uint16
	size      uint32
	propsSize uint32
	timestamp int64
	sequence  int64
	bits      GBit

	versionMismatch bool

	propBytes    []byte
	props        map[string]interface{}
	propsDecoded bool
	propsDirty   bool
	propErr      error

	payload []byte

	dirty        bool
	genSequence  bool
	genTimestamp bool

	propBuf    *util.Buffer
	payloadBuf *util.Buffer
	destroyed  bool
}

func NewGPacket(ctx *Context) *GPacket {
	if ctx == nil {
		ctx = DefaultContext()
	}
	g := &GPacket{ctx: ctx}
	g.Reset()
	return g
}

func (g *GPacket) Reset() {
	g.alive()
	g.version = GVersion
	g.gtype = 0
	g.size = GHeaderSize
	g.propsSize = 0
	g.timestamp = 0
	g.sequence = 0
	g.bits = 0
	g.versionMismatch = false
	g.propBytes = nil
	g.props = nil
	g.propsDecoded = true
	g.propsDirty = false
	g.propErr = nil
	g.payload = nil
	g.dirty = true
	g.genSequence = true
	g.genTimestamp = true
}

func (g *GPacket) Destroy() {
	if g.destroyed {
		return
	}
	if g.propBuf != nil {
		g.ctx.pool.Release(g.propBuf)
		g.propBuf = nil
	}
	if g.payloadBuf != nil {
		g.ctx.pool.Release(g.payloadBuf)
		g.payloadBuf = nil
	}
	g.propBytes = nil
	g.props = nil
	g.payload = nil
	g.destroyed = true
}

func (g *GPacket) Destroyed() bool {
	return g.destroyed
}

func (g *GPacket) alive() {
	if g.destroyed {
		panic(ErrPacketDestroyed)
	}
}

func (g *GPacket) Version() uint16 {
	g.alive()
	return g.version
}

func (g *GPacket) SetVersion(v uint16) {
	g.alive()
	g.version = v
	g.dirty = true
}

func (g *GPacket) Type() uint16 {
	g.alive()
	return g.gtype
}

func (g *GPacket) SetType(t uint16) {
	g.alive()
	g.gtype = t
	g.dirty = true
}

func (g *GPacket) Timestamp() int64 {
	g.alive()
	return g.timestamp
}

func (g *GPacket) SetTimestamp(ms int64) {
	g.alive()
	g.timestamp = ms
	g.dirty = true
}

func (g *GPacket) Sequence() int64 {
	g.alive()
	return g.sequence
}

func (g *GPacket) SetSequence(seq int64) {
	g.alive()
	g.sequence = seq
	g.dirty = true
}

func (g *GPacket) GenerateSequence(on bool) {
	g.alive()
	g.genSequence = on
}

func (g *GPacket) GenerateTimestamp(on bool) {
	g.alive()
	g.genTimestamp = on
}

func (g *GPacket) Bits() GBit {
	g.alive()
	return g.bits
}

func (g *GPacket) Bit(b GBit) bool {
	g.alive()
	return g.bits&b == b
}

func (g *GPacket) SetBit(b GBit, on bool) {
	g.alive()
	if on {
		g.bits |= b
	} else {
		g.bits &^= b
	}
	g.dirty = true
}

// Size returns the total encoded size.
func (g *GPacket) Size() int {
	g.alive()
	g.marshal()
	return int(g.size)
}

func (g *GPacket) PropertiesSize() int {
	g.alive()
	g.marshal()
	return int(g.propsSize)
}

func (g *GPacket) PayloadSize() int {
	g.alive()
	return len(g.payload)
}

func (g *GPacket) Payload() []byte {
	g.alive()
	return g.payload
}

// SetPayload installs b without copying it.
func (g *GPacket) SetPayload(b []byte) {
	g.alive()
	g.payload = b
	g.dirty = true
}

func (g *GPacket) Properties() (map[string]interface{}, error) {
	g.alive()
	if !g.propsDecoded {
		g.props, g.propErr = DecodeProperties(g.propBytes)
		g.propsDecoded = true
	}
	return g.props, g.propErr
}

func (g *GPacket) Property(key string) (interface{}, bool) {
	props, _ := g.Properties()
	v, ok := props[key]
	return v, ok
}

func (g *GPacket) SetProperty(key string, v interface{}) {
	g.alive()
	props, _ := g.Properties()
	if props == nil {
		props = make(map[string]interface{})
	}
	props[key] = v
	g.props = props
	g.propErr = nil
	g.propsDirty = true
}

func (g *GPacket) RemoveProperty(key string) {
	g.alive()
	props, _ := g.Properties()
	if _, ok := props[key]; ok {
		delete(props, key)
		g.propsDirty = true
	}
}

func (g *GPacket) ClearProperties() {
	g.alive()
	g.props = nil
	g.propsDecoded = true
	g.propErr = nil
	g.propsDirty = true
}

func (g *GPacket) marshal() error {
	if g.propsDirty {
		b, err := EncodeProperties(g.props)
		if err != nil {
			return &DecodeError{Section: "properties", Err: err}
		}
		g.propBytes = b
		g.propsDirty = false
		g.dirty = true
	}
	if !g.dirty {
		return nil
	}
	g.propsSize = uint32(len(g.propBytes))
	g.size = uint32(GHeaderSize+len(g.propBytes)) + uint32(len(g.payload))
	b := g.hdrBuf[:]
	EncByteOrder.PutUint16(b[0:], g.version)
	EncByteOrder.PutUint16(b[2:], g.gtype)
	EncByteOrder.PutUint32(b[4:], g.size)
	EncByteOrder.PutUint32(b[8:], GMagic)
	EncByteOrder.PutUint32(b[12:], g.propsSize)
	EncByteOrder.PutUint64(b[16:], uint64(g.timestamp))
	EncByteOrder.PutUint64(b[24:], uint64(g.sequence))
	EncByteOrder.PutUint32(b[32:], uint32(g.bits))
	g.dirty = false
	return nil
}

func (g *GPacket) unmarshal() error {
	b := g.hdrBuf[:]
	if magic := EncByteOrder.Uint32(b[8:]); magic != GMagic {
		return &CorruptedStreamError{Magic: magic}
	}
	g.version = EncByteOrder.Uint16(b[0:])
	g.gtype = EncByteOrder.Uint16(b[2:])
	g.size = EncByteOrder.Uint32(b[4:])
	g.propsSize = EncByteOrder.Uint32(b[12:])
	g.timestamp = int64(EncByteOrder.Uint64(b[16:]))
	g.sequence = int64(EncByteOrder.Uint64(b[24:]))
	g.bits = GBit(EncByteOrder.Uint32(b[32:]))
	g.versionMismatch = g.version != GVersion
	return nil
}

func gReadErr(err error, hdrRead, bodyRead, size int) error {
	if err == io.EOF && hdrRead == 0 {
		return io.EOF
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return &TruncatedError{HeaderRead: hdrRead, BodyRead: bodyRead, Size: size, Err: io.ErrUnexpectedEOF}
	}
	return err
}

// Read reads one whole packet from a blocking source and returns the number
// of bytes consumed.
func (g *GPacket) Read(r io.Reader) (n int, err error) {
	if g.destroyed {
		return 0, ErrPacketDestroyed
	}
	if n, err = io.ReadFull(r, g.hdrBuf[:]); err != nil {
		return n, gReadErr(err, n, 0, 0)
	}
	if err = g.unmarshal(); err != nil {
		return n, err
	}
	size := int64(g.size)
	if size < GHeaderSize {
		return n, ErrInvalidPacketSize
	}
	rest := size - GHeaderSize
	if max := g.ctx.MaxPacketSize(); size > max {
		m, err := io.CopyN(io.Discard, r, rest)
		n += int(m)
		if err != nil {
			return n, gReadErr(err, GHeaderSize, int(m), int(size))
		}
		return n, &BigPacketError{Size: size, Max: max}
	}

	var layoutErr error
	propLen := int64(g.propsSize)
	if g.versionMismatch {
		propLen = 0
	} else if propLen > rest {
		layoutErr = &DecodeError{Section: "generic header", Offset: 12,
			Err: fmt.Errorf("properties size %d exceeds packet size %d", propLen, size)}
		propLen = 0
	}
	payLen := int(rest - propLen)

	g.propBuf = scratchBuffer(g.ctx.pool, g.propBuf, int(propLen))
	g.payloadBuf = scratchBuffer(g.ctx.pool, g.payloadBuf, payLen)
	g.propBytes = regionBytes(g.propBuf, int(propLen))
	g.payload = regionBytes(g.payloadBuf, payLen)

	var rg regions
	rg.reset(g.propBytes, g.payload)
	m, err := rg.readFull(r)
	n += m
	if err != nil {
		return n, gReadErr(err, GHeaderSize, m, int(size))
	}

	g.props = nil
	g.propsDecoded = false
	g.propsDirty = false
	g.propErr = nil
	g.dirty = false
	if g.versionMismatch {
		return n, &VersionMismatchError{Version: g.version}
	}
	return n, layoutErr
}

func (g *GPacket) stamp() error {
	if g.genSequence {
		g.sequence = g.ctx.NextGSequence()
		g.dirty = true
	}
	if g.genTimestamp {
		g.timestamp = g.ctx.NowMillis()
		g.dirty = true
	}
	return g.marshal()
}

// Write writes the packet to a blocking sink, assigning sequence and
// timestamp unless disabled.
func (g *GPacket) Write(w io.Writer) (n int, err error) {
	if g.destroyed {
		return 0, ErrPacketDestroyed
	}
	if err = g.stamp(); err != nil {
		return 0, err
	}
	bufs := net.Buffers{g.hdrBuf[:]}
	if len(g.propBytes) != 0 {
		bufs = append(bufs, g.propBytes)
	}
	if len(g.payload) != 0 {
		bufs = append(bufs, g.payload)
	}
	m, err := bufs.WriteTo(w)
	return int(m), err
}

func (g *GPacket) Bytes() ([]byte, error) {
	if g.destroyed {
		return nil, ErrPacketDestroyed
	}
	if err := g.stamp(); err != nil {
		return nil, err
	}
	b := make([]byte, 0, g.size)
	b = append(b, g.hdrBuf[:]...)
	b = append(b, g.propBytes...)
	return append(b, g.payload...), nil
}

// Equal compares the header fields and the encoded properties. Size and
// payload are not compared.
func (g *GPacket) Equal(o *GPacket) bool {
	if g == o {
		return true
	}
	if o == nil {
		return false
	}
	g.alive()
	o.alive()
	if g.marshal() != nil || o.marshal() != nil {
		return false
	}
	return g.version == o.version && g.gtype == o.gtype && g.timestamp == o.timestamp &&
		g.sequence == o.sequence && g.bits == o.bits && bytes.Equal(g.propBytes, o.propBytes)
}

func (g *GPacket) Hash() uint32 {
	g.alive()
	var b [22]byte
	EncByteOrder.PutUint16(b[0:], g.gtype)
	EncByteOrder.PutUint64(b[2:], uint64(g.timestamp))
	EncByteOrder.PutUint64(b[10:], uint64(g.sequence))
	EncByteOrder.PutUint32(b[18:], uint32(g.bits))
	return util.Murmur3Hash(b[:])
}

func (g *GPacket) String() string {
	g.alive()
	g.marshal()
	return fmt.Sprintf("%d: v=%d,sz=%d,ts=%d,sq=%d,prop_sz=%d,pay_sz=%d",
		g.gtype, g.version, g.size, g.timestamp, g.sequence, g.propsSize, len(g.payload))
}

func (g *GPacket) Dump(w io.Writer) {
	if g.destroyed {
		fmt.Fprintln(w, "GPacket (destroyed)")
		return
	}
	g.marshal()
	fmt.Fprintf(w, "GPacket %d\n", g.gtype)
	fmt.Fprintf(w, "  version=%d size=%d propsSize=%d payload=%d\n", g.version, g.size, g.propsSize, len(g.payload))
	fmt.Fprintf(w, "  timestamp=%s sequence=%d bits=%s\n",
		util.TimeFromMillis(g.timestamp).Format(time.RFC3339Nano), g.sequence, g.bits)
	props, err := g.Properties()
	if err != nil {
		fmt.Fprintf(w, "  properties error: %s\n", err)
	} else if len(props) != 0 {
		fmt.Fprintf(w, "  properties: %v\n", props)
	}
}
