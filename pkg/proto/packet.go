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
	"reflect"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"mqwire/pkg/util"
)

type ioState uint8

const (
	stateIdle ioState = iota
	stateReadingHeader
	stateReadingBody
	stateSkipping
	stateWriting
)

// Packet is one protocol envelope: a 72-byte fixed header, the variable
// header, the properties and an opaque body.
//
// A Packet is owned by one goroutine at a time. Its I/O methods fail with
// ErrConcurrentUse if entered concurrently.
type Packet struct {
	ctx *Context

	hdr      fixedHeader
	fixedBuf [HeaderSize]byte
	varHdr   VariableHeader
	varBytes []byte

	propBytes    []byte
	props        map[string]interface{}
	propsDecoded bool
	propsDirty   bool
	propErr      error

	body []byte

	dirty        bool
	genSequence  bool
	genTimestamp bool

	varBuf  *util.Buffer
	propBuf *util.Buffer
	bodyBuf *util.Buffer

	state         ioState
	rgn           regions
	headerRead    int
	bodyRead      int
	bigErr        *BigPacketError
	skipRemaining int64
	layoutErr     error

	busy      int32
	destroyed bool
}

// NewPacket returns an empty current-version packet. A nil ctx uses DefaultContext.
func NewPacket(ctx *Context) *Packet {
	if ctx == nil {
		ctx = DefaultContext()
	}
	p := &Packet{ctx: ctx}
	p.Reset()
	return p
}

// Reset returns the packet to its initial state. Scratch buffers are kept for
// the next read.
func (p *Packet) Reset() {
	p.alive()
	p.hdr.reset()
	p.hdr.sysMessageID.Address, p.hdr.sysMessageID.Port = p.ctx.Origin()
	p.varHdr.Reset()
	p.varBytes = nil
	p.propBytes = nil
	p.props = nil
	p.propsDecoded = true
	p.propsDirty = false
	p.propErr = nil
	p.body = nil
	p.dirty = true
	p.genSequence = true
	p.genTimestamp = true
	p.state = stateIdle
	p.rgn.reset()
	p.headerRead = 0
	p.bodyRead = 0
	p.bigErr = nil
	p.skipRemaining = 0
	p.layoutErr = nil
}

// Destroy releases every pooled buffer. The packet must not be used afterwards;
// I/O methods return ErrPacketDestroyed and accessors panic.
func (p *Packet) Destroy() {
	if p.destroyed {
		return
	}
	for _, b := range []**util.Buffer{&p.varBuf, &p.propBuf, &p.bodyBuf} {
		if *b != nil {
			p.ctx.pool.Release(*b)
			*b = nil
		}
	}
	p.rgn.reset()
	p.varHdr.Reset()
	p.varBytes = nil
	p.propBytes = nil
	p.props = nil
	p.body = nil
	p.bigErr = nil
	p.destroyed = true
}

func (p *Packet) Destroyed() bool {
	return p.destroyed
}

func (p *Packet) alive() {
	if p.destroyed {
		panic(ErrPacketDestroyed)
	}
}

func (p *Packet) enter() error {
	if !atomic.CompareAndSwapInt32(&p.busy, 0, 1) {
		return ErrConcurrentUse
	}
	if p.destroyed {
		atomic.StoreInt32(&p.busy, 0)
		return ErrPacketDestroyed
	}
	return nil
}

func (p *Packet) leave() {
	atomic.StoreInt32(&p.busy, 0)
}

func (p *Packet) Context() *Context {
	return p.ctx
}

// scratchBuffer returns a pooled buffer of length n, reusing cur when it is
// large enough.
func scratchBuffer(pool *util.BufferPool, cur *util.Buffer, n int) *util.Buffer {
	if n == 0 {
		return cur
	}
	if cur != nil {
		if cur.Resize(n) {
			return cur
		}
		pool.Release(cur)
	}
	return pool.Acquire(n)
}

func (p *Packet) scratch(cur *util.Buffer, n int) *util.Buffer {
	return scratchBuffer(p.ctx.pool, cur, n)
}

func regionBytes(b *util.Buffer, n int) []byte {
	if n == 0 {
		return nil
	}
	return b.Bytes()
}

// updateBuffers re-encodes the sections that changed and rewrites the fixed
// header with recomputed sizes.
func (p *Packet) updateBuffers() error {
	varDirty := p.varHdr.Dirty() || (p.hdr.version == Version1 && len(p.varBytes) == 0)
	if !p.dirty && !varDirty && !p.propsDirty {
		return nil
	}
	if varDirty || p.dirty {
		vb, err := p.varHdr.Bytes(p.hdr.version == Version1)
		if err != nil {
			return &DecodeError{Section: "variable header", Err: err}
		}
		p.varBytes = vb
	}
	if p.propsDirty {
		pb, err := EncodeProperties(p.props)
		if err != nil {
			return &DecodeError{Section: "properties", Err: err}
		}
		p.propBytes = pb
		p.propsDirty = false
	}
	p.hdr.setSizes(len(p.varBytes), len(p.propBytes), len(p.body))
	p.hdr.marshalTo(p.fixedBuf[:])
	p.dirty = false
	return nil
}

// Size returns the total packet size, re-encoding changed sections first.
func (p *Packet) Size() int {
	p.alive()
	if err := p.updateBuffers(); err != nil {
		glog.Warningf("packet size: %s", err)
	}
	return int(p.hdr.size)
}

func (p *Packet) Magic() uint32 {
	return Magic
}

func (p *Packet) Version() uint16 {
	p.alive()
	return p.hdr.version
}

// SetVersion selects the header layout to emit. Moving off Version1 carries
// the transaction id into the variable header and vice versa; a Version1
// packet keeps it only in the fixed header.
func (p *Packet) SetVersion(v uint16) {
	p.alive()
	if v == p.hdr.version {
		return
	}
	if p.hdr.version == Version1 {
		if p.hdr.transactionID != 0 {
			p.varHdr.SetLong(TagTransactionID, p.hdr.transactionID)
		}
	} else if v == Version1 {
		p.hdr.transactionID = p.varHdr.Long(TagTransactionID)
		p.varHdr.Clear(TagTransactionID)
	}
	p.hdr.version = v
	p.dirty = true
}

func (p *Packet) Type() PacketType {
	p.alive()
	return p.hdr.packetType
}

func (p *Packet) SetType(t PacketType) {
	p.alive()
	p.hdr.packetType = t
	p.dirty = true
}

func (p *Packet) IsReply() bool {
	p.alive()
	return p.hdr.packetType.IsReply()
}

func (p *Packet) Expiration() int64 {
	p.alive()
	return p.hdr.expiration
}

func (p *Packet) SetExpiration(ms int64) {
	p.alive()
	p.hdr.expiration = ms
	p.dirty = true
}

func (p *Packet) Priority() uint8 {
	p.alive()
	return p.hdr.priority
}

func (p *Packet) SetPriority(v uint8) {
	p.alive()
	p.hdr.priority = v
	p.dirty = true
}

func (p *Packet) Encryption() uint8 {
	p.alive()
	return p.hdr.encryption
}

func (p *Packet) SetEncryption(v uint8) {
	p.alive()
	p.hdr.encryption = v
	p.dirty = true
}

func (p *Packet) Flags() PacketFlag {
	p.alive()
	return p.hdr.flags
}

func (p *Packet) Flag(f PacketFlag) bool {
	p.alive()
	return p.hdr.flags&f == f
}

func (p *Packet) SetFlag(f PacketFlag, on bool) {
	p.alive()
	if on {
		p.hdr.flags |= f
	} else {
		p.hdr.flags &^= f
	}
	p.dirty = true
}

func (p *Packet) IsQueue() bool            { return p.Flag(FlagIsQueue) }
func (p *Packet) Redelivered() bool        { return p.Flag(FlagRedelivered) }
func (p *Packet) Persistent() bool         { return p.Flag(FlagPersistent) }
func (p *Packet) SelectorsProcessed() bool { return p.Flag(FlagSelectorsProcessed) }
func (p *Packet) SendAck() bool            { return p.Flag(FlagSendAck) }
func (p *Packet) IsLast() bool             { return p.Flag(FlagIsLastPkt) }
func (p *Packet) FlowPaused() bool         { return p.Flag(FlagFlowPaused) }
func (p *Packet) IsTransacted() bool       { return p.Flag(FlagIsTransacted) }
func (p *Packet) ConsumerFlowPaused() bool { return p.Flag(FlagConsumerFlowPaused) }
func (p *Packet) IsBrowse() bool           { return p.Flag(FlagIsBrowse) }
func (p *Packet) ClientAck() bool          { return p.Flag(FlagClientAck) }
func (p *Packet) Indirect() bool           { return p.Flag(FlagIndirect) }
func (p *Packet) Wildcard() bool           { return p.Flag(FlagWildcard) }

func (p *Packet) ConsumerID() int64 {
	p.alive()
	return p.hdr.consumerID
}

func (p *Packet) SetConsumerID(id int64) {
	p.alive()
	p.hdr.consumerID = id
	p.dirty = true
}

func (p *Packet) SysMessageID() SysMessageID {
	p.alive()
	return p.hdr.sysMessageID
}

func (p *Packet) SetSysMessageID(id SysMessageID) {
	p.alive()
	p.hdr.sysMessageID = id
	p.dirty = true
}

func (p *Packet) Timestamp() int64 {
	p.alive()
	return p.hdr.sysMessageID.Timestamp
}

func (p *Packet) SetTimestamp(ms int64) {
	p.alive()
	p.hdr.sysMessageID.Timestamp = ms
	p.dirty = true
}

func (p *Packet) Sequence() int32 {
	p.alive()
	return p.hdr.sysMessageID.Sequence
}

func (p *Packet) SetSequence(seq int32) {
	p.alive()
	p.hdr.sysMessageID.Sequence = seq
	p.dirty = true
}

// SetOrigin sets the address and port recorded in the SysMessageID.
func (p *Packet) SetOrigin(addr IPAddress, port int32) {
	p.alive()
	p.hdr.sysMessageID.Address = addr
	p.hdr.sysMessageID.Port = port
	p.dirty = true
}

// GenerateSequence controls whether writes assign a fresh sequence number.
func (p *Packet) GenerateSequence(on bool) {
	p.alive()
	p.genSequence = on
}

// GenerateTimestamp controls whether writes stamp the current time.
func (p *Packet) GenerateTimestamp(on bool) {
	p.alive()
	p.genTimestamp = on
}

func (p *Packet) TransactionID() int64 {
	p.alive()
	if p.hdr.version == Version1 {
		return p.hdr.transactionID
	}
	return p.varHdr.Long(TagTransactionID)
}

// SetTransactionID stores id in the variable header, or in the fixed header
// for Version1. The in-memory copy survives version changes.
func (p *Packet) SetTransactionID(id int64) {
	p.alive()
	p.hdr.transactionID = id
	if p.hdr.version != Version1 {
		p.varHdr.SetLong(TagTransactionID, id)
	}
	p.dirty = true
}

func (p *Packet) ProducerID() int64 {
	p.alive()
	return p.varHdr.Long(TagProducerID)
}

func (p *Packet) SetProducerID(id int64) {
	p.alive()
	p.varHdr.SetLong(TagProducerID, id)
}

func (p *Packet) DeliveryTime() int64 {
	p.alive()
	return p.varHdr.Long(TagDeliveryTime)
}

func (p *Packet) SetDeliveryTime(ms int64) {
	p.alive()
	p.varHdr.SetLong(TagDeliveryTime, ms)
}

func (p *Packet) DeliveryCount() int32 {
	p.alive()
	return p.varHdr.DeliveryCount()
}

func (p *Packet) SetDeliveryCount(n int32) {
	p.alive()
	p.varHdr.SetDeliveryCount(n)
}

func (p *Packet) stringField(tag VarHeaderTag) string {
	p.alive()
	s, _ := p.varHdr.String(tag)
	return s
}

func (p *Packet) setStringField(tag VarHeaderTag, v string) {
	p.alive()
	p.varHdr.SetString(tag, v)
}

func (p *Packet) Destination() string      { return p.stringField(TagDestination) }
func (p *Packet) DestinationClass() string { return p.stringField(TagDestinationClass) }
func (p *Packet) CorrelationID() string    { return p.stringField(TagCorrelationID) }
func (p *Packet) ReplyTo() string          { return p.stringField(TagReplyTo) }
func (p *Packet) ReplyToClass() string     { return p.stringField(TagReplyToClass) }
func (p *Packet) MessageType() string      { return p.stringField(TagType) }

func (p *Packet) SetDestination(s string)      { p.setStringField(TagDestination, s) }
func (p *Packet) SetDestinationClass(s string) { p.setStringField(TagDestinationClass, s) }
func (p *Packet) SetCorrelationID(s string)    { p.setStringField(TagCorrelationID, s) }
func (p *Packet) SetReplyTo(s string)          { p.setStringField(TagReplyTo, s) }
func (p *Packet) SetReplyToClass(s string)     { p.setStringField(TagReplyToClass, s) }
func (p *Packet) SetMessageType(s string)      { p.setStringField(TagType, s) }

// MessageID returns the message id override from the variable header, or the
// string form of the SysMessageID.
func (p *Packet) MessageID() string {
	p.alive()
	if s, ok := p.varHdr.String(TagMessageID); ok {
		return s
	}
	return p.hdr.sysMessageID.String()
}

func (p *Packet) SetMessageID(s string) {
	p.setStringField(TagMessageID, s)
}

// PrepareToSend drops the message id override so the SysMessageID is used.
func (p *Packet) PrepareToSend() {
	p.alive()
	if _, ok := p.varHdr.String(TagMessageID); ok {
		p.varHdr.Clear(TagMessageID)
	}
}

func (p *Packet) VariableHeader() *VariableHeader {
	p.alive()
	return &p.varHdr
}

// Properties decodes the property blob on first use. The returned map is the
// packet's own; call SetProperties after modifying it.
func (p *Packet) Properties() (map[string]interface{}, error) {
	p.alive()
	if !p.propsDecoded {
		p.props, p.propErr = DecodeProperties(p.propBytes)
		p.propsDecoded = true
	}
	return p.props, p.propErr
}

func (p *Packet) Property(key string) (interface{}, bool) {
	props, _ := p.Properties()
	v, ok := props[key]
	return v, ok
}

func (p *Packet) SetProperties(props map[string]interface{}) {
	p.alive()
	p.props = props
	p.propsDecoded = true
	p.propErr = nil
	p.propsDirty = true
}

func (p *Packet) SetProperty(key string, v interface{}) {
	props, _ := p.Properties()
	if props == nil {
		props = make(map[string]interface{})
	}
	props[key] = v
	p.SetProperties(props)
}

// PropertiesBytes returns the encoded property blob.
func (p *Packet) PropertiesBytes() ([]byte, error) {
	p.alive()
	if err := p.updateBuffers(); err != nil {
		return nil, err
	}
	return p.propBytes, nil
}

// Body returns the message body. After a read it aliases a pooled buffer
// that stays valid until the next read, Reset or Destroy.
func (p *Packet) Body() []byte {
	p.alive()
	return p.body
}

// SetBody installs b as the body without copying it.
func (p *Packet) SetBody(b []byte) {
	p.alive()
	p.body = b
	p.dirty = true
}

// Validate decodes the variable header and properties and returns the first
// section error.
func (p *Packet) Validate() error {
	p.alive()
	if err := p.varHdr.Err(); err != nil {
		return err
	}
	_, err := p.Properties()
	return err
}

// BigPacketError returns the oversized-packet error of the last read, if any.
func (p *Packet) BigPacketError() *BigPacketError {
	p.alive()
	if p.bigErr == nil {
		return nil
	}
	e := *p.bigErr
	e.SkipRemaining = p.skipRemaining
	return &e
}

// Skipping reports whether an oversized packet is still being discarded.
func (p *Packet) Skipping() bool {
	p.alive()
	return p.state == stateSkipping
}

// CopyFrom makes p a copy of src. A shallow copy shares the body and the
// encoded sections with src, a deep copy does not.
func (p *Packet) CopyFrom(src *Packet, deep bool) error {
	p.alive()
	src.alive()
	if err := src.updateBuffers(); err != nil {
		return err
	}
	clone := func(b []byte) []byte {
		if !deep || b == nil {
			return b
		}
		return append([]byte(nil), b...)
	}
	p.hdr = src.hdr
	p.fixedBuf = src.fixedBuf
	p.varBytes = clone(src.varBytes)
	p.varHdr.SetBytes(p.varBytes)
	p.propBytes = clone(src.propBytes)
	p.props = nil
	p.propsDecoded = false
	p.propsDirty = false
	p.propErr = nil
	p.body = clone(src.body)
	p.genSequence = src.genSequence
	p.genTimestamp = src.genTimestamp
	p.dirty = false
	return nil
}

// Bytes returns the whole packet in one slice, assigning sequence and
// timestamp as a write would.
func (p *Packet) Bytes() ([]byte, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	if p.state != stateIdle {
		return nil, p.inProgressErr()
	}
	if err := p.stamp(); err != nil {
		return nil, err
	}
	b := make([]byte, 0, p.hdr.size)
	b = append(b, p.fixedBuf[:]...)
	b = append(b, p.varBytes...)
	b = append(b, p.propBytes...)
	return append(b, p.body...), nil
}

// Equal compares headers, variable header fields and properties. The body
// and the sizes derived from it are not compared.
func (p *Packet) Equal(o *Packet) bool {
	if p == o {
		return true
	}
	if o == nil {
		return false
	}
	p.alive()
	o.alive()
	a, b := p.hdr, o.hdr
	if a.version != b.version || a.packetType != b.packetType || a.expiration != b.expiration ||
		!a.sysMessageID.Equal(b.sysMessageID) || a.priority != b.priority ||
		a.encryption != b.encryption || a.flags != b.flags || a.consumerID != b.consumerID ||
		p.TransactionID() != o.TransactionID() {
		return false
	}
	if !p.varHdr.equalFields(&o.varHdr) {
		return false
	}
	pp, perr := p.Properties()
	op, oerr := o.Properties()
	if perr != nil || oerr != nil {
		return bytes.Equal(p.propBytes, o.propBytes)
	}
	if len(pp) == 0 && len(op) == 0 {
		return true
	}
	return reflect.DeepEqual(pp, op)
}

func (p *Packet) Hash() uint32 {
	p.alive()
	return p.hdr.sysMessageID.Hash()
}

func (p *Packet) String() string {
	p.alive()
	return fmt.Sprintf("%s:%s", p.hdr.packetType, p.hdr.sysMessageID)
}

// Dump writes a readable description of the header and sections.
func (p *Packet) Dump(w io.Writer) {
	if p.destroyed {
		fmt.Fprintln(w, "Packet (destroyed)")
		return
	}
	h := &p.hdr
	fmt.Fprintf(w, "Packet %s\n", p.hdr.packetType)
	fmt.Fprintf(w, "  version=%d size=%d propertiesOffset=%d propertiesSize=%d body=%d\n",
		h.version, h.size, h.propertiesOffset, h.propertiesSize, len(p.body))
	fmt.Fprintf(w, "  sysMessageID=%s\n", h.sysMessageID)
	fmt.Fprintf(w, "  timestamp=%s expiration=%d priority=%d encryption=%d\n",
		util.TimeFromMillis(h.sysMessageID.Timestamp).Format(time.RFC3339Nano), h.expiration, h.priority, h.encryption)
	fmt.Fprintf(w, "  flags=%s(0x%04X) consumerID=%d transactionID=%d\n",
		h.flags, uint16(h.flags), h.consumerID, p.TransactionID())
	p.varHdr.Dump(w)
	props, err := p.Properties()
	if err != nil {
		fmt.Fprintf(w, "  properties error: %s\n", err)
	} else if len(props) != 0 {
		fmt.Fprintf(w, "  properties: %v\n", props)
	}
}
