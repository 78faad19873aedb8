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
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mqwire/pkg/util"
)

const testNow = 1700000000000

func newTestContext() *Context {
	ctx := NewContext(Config{}, util.NewBufferPool(util.BufferPoolConfig{}))
	ctx.SetClock(func() time.Time { return time.UnixMilli(testNow) })
	return ctx
}

func newTextMessage(ctx *Context, body string) *Packet {
	p := NewPacket(ctx)
	p.SetType(PacketTypeTextMessage)
	p.SetDestination("orders")
	p.SetCorrelationID("c-1")
	p.SetProperty("k", int32(42))
	p.SetProperty("who", "me")
	p.SetFlag(FlagPersistent, true)
	p.SetExpiration(testNow + 60000)
	p.SetBody([]byte(body))
	return p
}

func mustBytes(t *testing.T, p *Packet) []byte {
	b, err := p.Bytes()
	require.NoError(t, err)
	return b
}

// trickleReader hands out one byte per call and reports no progress on every
// other call, like a busy non-blocking socket.
type trickleReader struct {
	b    []byte
	idle bool
}

func (r *trickleReader) Read(p []byte) (int, error) {
	r.idle = !r.idle
	if r.idle {
		return 0, nil
	}
	if len(r.b) == 0 {
		return 0, io.EOF
	}
	p[0] = r.b[0]
	r.b = r.b[1:]
	return 1, nil
}

// trickleWriter accepts at most max bytes per call and nothing on every other call.
type trickleWriter struct {
	bytes.Buffer
	max  int
	full bool
}

func (w *trickleWriter) Write(p []byte) (int, error) {
	w.full = !w.full
	if w.full {
		return 0, nil
	}
	if len(p) > w.max {
		p = p[:w.max]
	}
	return w.Buffer.Write(p)
}

func TestTextMessageExample(t *testing.T) {
	ctx := newTestContext()
	p := NewPacket(ctx)
	p.SetType(PacketTypeTextMessage)
	p.SetProperties(map[string]interface{}{"k": int32(42)})
	p.SetBody([]byte("hello"))

	b := mustBytes(t, p)
	require.Len(t, b, HeaderSize+0+17+5)
	assert.Equal(t, HeaderSize+17+5, p.Size())
	assert.Equal(t, Magic, EncByteOrder.Uint32(b))
	assert.Equal(t, CurrentVersion, EncByteOrder.Uint16(b[4:]))
	assert.Equal(t, uint32(len(b)), EncByteOrder.Uint32(b[8:]))
	assert.Equal(t, uint32(HeaderSize), EncByteOrder.Uint32(b[52:]))
	assert.Equal(t, uint32(17), EncByteOrder.Uint32(b[56:]))

	q := NewPacket(ctx)
	n, err := q.Read(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, len(b), n)
	assert.Equal(t, PacketTypeTextMessage, q.Type())
	v, ok := q.Property("k")
	assert.True(t, ok)
	assert.Equal(t, int32(42), v)
	assert.Equal(t, "hello", string(q.Body()))
	assert.Equal(t, int64(testNow), q.Timestamp())
	assert.Equal(t, p.Sequence(), q.Sequence())
	assert.Equal(t, uint8(DefaultPriority), q.Priority())
	assert.True(t, p.Equal(q))
	assert.Equal(t, p.Hash(), q.Hash())
}

func TestPacketSizeInvariant(t *testing.T) {
	ctx := newTestContext()
	p := newTextMessage(ctx, "some body")

	b := mustBytes(t, p)
	varBytes, err := p.VariableHeader().Bytes(false)
	require.NoError(t, err)
	propBytes, err := p.PropertiesBytes()
	require.NoError(t, err)

	want := HeaderSize + len(varBytes) + len(propBytes) + len("some body")
	assert.Equal(t, want, p.Size())
	assert.Equal(t, want, len(b))
	assert.Equal(t, uint32(want), EncByteOrder.Uint32(b[8:]))
	assert.Equal(t, uint32(HeaderSize+len(varBytes)), EncByteOrder.Uint32(b[52:]))
	assert.Zero(t, len(varBytes)%4)

	p.SetReplyTo("replies")
	varBytes, err = p.VariableHeader().Bytes(false)
	require.NoError(t, err)
	assert.Equal(t, HeaderSize+len(varBytes)+len(propBytes)+len("some body"), p.Size())
}

func TestPacketChunkedReads(t *testing.T) {
	ctx := newTestContext()
	b := mustBytes(t, newTextMessage(ctx, "chunked body of some length"))

	whole := NewPacket(ctx)
	n, done, err := whole.ReadBuffer(b)
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, len(b), n)

	for _, chunk := range []int{1, 2, 3, 7, 64, len(b)} {
		q := NewPacket(ctx)
		off := 0
		for {
			end := off + chunk
			if end > len(b) {
				end = len(b)
			}
			n, done, err := q.ReadBuffer(b[off:end])
			require.NoError(t, err, "chunk %d", chunk)
			off += n
			if done {
				break
			}
			require.Equal(t, end-off+n, n, "chunk %d consumed partially", chunk)
			require.Less(t, off, len(b))
		}
		assert.Equal(t, len(b), off, "chunk %d", chunk)
		assert.True(t, whole.Equal(q), "chunk %d", chunk)
		assert.Equal(t, whole.Body(), q.Body(), "chunk %d", chunk)
		assert.Equal(t, "orders", q.Destination())
		assert.Equal(t, "c-1", q.CorrelationID())
	}
}

func TestPacketNonBlockingRead(t *testing.T) {
	ctx := newTestContext()
	b := mustBytes(t, newTextMessage(ctx, "body"))

	q := NewPacket(ctx)
	src := &trickleReader{b: b}
	calls := 0
	for {
		done, err := q.ReadPacket(src)
		require.NoError(t, err)
		calls++
		if done {
			break
		}
		require.Less(t, calls, 10*len(b))
	}
	assert.Equal(t, "body", string(q.Body()))
	assert.True(t, q.Persistent())

	_, err := q.ReadPacket(src)
	for err == nil {
		_, err = q.ReadPacket(src)
	}
	assert.Equal(t, io.EOF, err)
}

func TestPacketBackToBack(t *testing.T) {
	ctx := newTestContext()
	b1 := mustBytes(t, newTextMessage(ctx, "first"))
	b2 := mustBytes(t, newTextMessage(ctx, "second"))
	stream := append(append([]byte(nil), b1...), b2...)

	q := NewPacket(ctx)
	n, done, err := q.ReadBuffer(stream)
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, len(b1), n)
	assert.Equal(t, "first", string(q.Body()))

	n, done, err = q.ReadBuffer(stream[n:])
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, len(b2), n)
	assert.Equal(t, "second", string(q.Body()))
}

func bigAndSmall(t *testing.T) (big, small []byte) {
	ctx := newTestContext()
	p := NewPacket(ctx)
	p.SetType(PacketTypeBytesMessage)
	p.SetBody(make([]byte, 200))
	big = mustBytes(t, p)
	require.Len(t, big, 272)

	p = NewPacket(ctx)
	p.SetType(PacketTypeBytesMessage)
	p.SetBody([]byte("small"))
	small = mustBytes(t, p)
	return
}

func TestPacketOversizedBlocking(t *testing.T) {
	big, small := bigAndSmall(t)
	ctx := newTestContext()
	ctx.maxPacketSize = 100

	r := bytes.NewReader(append(big, small...))
	q := NewPacket(ctx)
	n, err := q.Read(r)
	var berr *BigPacketError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, int64(272), berr.Size)
	assert.Equal(t, int64(100), berr.Max)
	assert.Zero(t, berr.SkipRemaining)
	assert.Equal(t, 272, n)
	assert.False(t, IsFatal(err))
	assert.NotNil(t, q.BigPacketError())

	n, err = q.Read(r)
	require.NoError(t, err)
	assert.Equal(t, len(small), n)
	assert.Equal(t, "small", string(q.Body()))
	assert.Nil(t, q.BigPacketError())
}

func TestPacketOversizedNonBlocking(t *testing.T) {
	big, small := bigAndSmall(t)
	ctx := newTestContext()
	ctx.maxPacketSize = 100
	stream := append(big, small...)

	q := NewPacket(ctx)
	n, done, err := q.ReadBuffer(stream[0:50])
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, 50, n)

	n, done, err = q.ReadBuffer(stream[50:100])
	var berr *BigPacketError
	require.ErrorAs(t, err, &berr)
	assert.False(t, done)
	assert.Equal(t, 50, n)
	assert.Equal(t, int64(172), berr.SkipRemaining)
	assert.True(t, q.Skipping())

	off := 100
	for {
		end := off + 50
		if end > len(stream) {
			end = len(stream)
		}
		n, done, err = q.ReadBuffer(stream[off:end])
		require.NoError(t, err)
		off += n
		if done {
			break
		}
	}
	assert.Equal(t, len(big), off)
	assert.NotNil(t, q.BigPacketError())
	assert.False(t, q.Skipping())

	n, done, err = q.ReadBuffer(stream[off:])
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, len(small), n)
	assert.Equal(t, "small", string(q.Body()))
}

func TestPacketBadMagic(t *testing.T) {
	ctx := newTestContext()
	b := mustBytes(t, newTextMessage(ctx, "x"))
	b[1] ^= 0xFF

	_, err := NewPacket(ctx).Read(bytes.NewReader(b))
	var cerr *CorruptedStreamError
	require.ErrorAs(t, err, &cerr)
	assert.True(t, IsFatal(err))

	_, _, err = NewPacket(ctx).ReadBuffer(b)
	require.ErrorAs(t, err, &cerr)
}

func TestPacketInvalidSize(t *testing.T) {
	ctx := newTestContext()
	b := mustBytes(t, newTextMessage(ctx, "x"))
	EncByteOrder.PutUint32(b[8:], 10)

	_, err := NewPacket(ctx).Read(bytes.NewReader(b))
	assert.ErrorIs(t, err, ErrInvalidPacketSize)
}

func TestPacketVersionMismatch(t *testing.T) {
	ctx := newTestContext()
	b := mustBytes(t, newTextMessage(ctx, "payload"))
	next := mustBytes(t, newTextMessage(ctx, "next"))
	EncByteOrder.PutUint16(b[4:], 999)

	r := bytes.NewReader(append(b, next...))
	q := NewPacket(ctx)
	n, err := q.Read(r)
	var verr *VersionMismatchError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, uint16(999), verr.Version)
	assert.Equal(t, len(b), n)
	assert.Len(t, q.Body(), len(b)-HeaderSize)
	assert.False(t, IsFatal(err))

	_, err = q.Read(r)
	require.NoError(t, err)
	assert.Equal(t, "next", string(q.Body()))
}

func TestPacketTruncated(t *testing.T) {
	ctx := newTestContext()
	b := mustBytes(t, newTextMessage(ctx, "truncated body"))

	_, err := NewPacket(ctx).Read(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err)

	_, err = NewPacket(ctx).Read(bytes.NewReader(b[:50]))
	var terr *TruncatedError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 50, terr.HeaderRead)
	assert.Equal(t, 0, terr.BodyRead)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.True(t, IsFatal(err))

	_, err = NewPacket(ctx).Read(bytes.NewReader(b[:80]))
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, HeaderSize, terr.HeaderRead)
	assert.Equal(t, 8, terr.BodyRead)
	assert.Equal(t, len(b), terr.Size)

	_, err = NewPacket(ctx).ReadPacket(bytes.NewReader(b[:80]))
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 8, terr.BodyRead)
}

func TestPacketUsageErrors(t *testing.T) {
	ctx := newTestContext()
	b := mustBytes(t, newTextMessage(ctx, "usage"))

	q := NewPacket(ctx)
	_, done, err := q.ReadBuffer(b[:10])
	require.NoError(t, err)
	require.False(t, done)
	_, err = q.WritePacket(io.Discard)
	assert.Equal(t, ErrReadInProgress, err)
	_, err = q.Bytes()
	assert.Equal(t, ErrReadInProgress, err)

	p := newTextMessage(ctx, "usage")
	done, err = p.WritePacket(&trickleWriter{max: 5})
	require.NoError(t, err)
	require.False(t, done)
	_, _, err = p.ReadBuffer(b)
	assert.Equal(t, ErrWriteInProgress, err)

	p.busy = 1
	_, _, err = p.ReadBuffer(b)
	assert.Equal(t, ErrConcurrentUse, err)
	p.busy = 0

	var uerr *UsageError
	assert.True(t, errors.As(ErrConcurrentUse, &uerr))
}

func TestPacketDestroy(t *testing.T) {
	ctx := newTestContext()
	b := mustBytes(t, newTextMessage(ctx, "destroy me"))

	q := NewPacket(ctx)
	_, err := q.Read(bytes.NewReader(b))
	require.NoError(t, err)
	before := ctx.BufferPool().Stats().NumFree

	q.Destroy()
	assert.True(t, q.Destroyed())
	assert.Greater(t, ctx.BufferPool().Stats().NumFree, before)

	_, _, err = q.ReadBuffer(b)
	assert.Equal(t, ErrPacketDestroyed, err)
	_, err = q.Write(io.Discard)
	assert.Equal(t, ErrPacketDestroyed, err)
	assert.PanicsWithValue(t, ErrPacketDestroyed, func() { q.SetType(PacketTypePing) })
	assert.PanicsWithValue(t, ErrPacketDestroyed, func() { q.Body() })

	accessors := map[string]func(){
		"Type":         func() { q.Type() },
		"Version":      func() { q.Version() },
		"Priority":     func() { q.Priority() },
		"Encryption":   func() { q.Encryption() },
		"Flags":        func() { q.Flags() },
		"IsQueue":      func() { q.IsQueue() },
		"ConsumerID":   func() { q.ConsumerID() },
		"SysMessageID": func() { q.SysMessageID() },
		"Timestamp":    func() { q.Timestamp() },
		"Sequence":     func() { q.Sequence() },
		"String":       func() { _ = q.String() },
		"Hash":         func() { q.Hash() },
		"Equal":        func() { q.Equal(NewPacket(ctx)) },
		"GenerateSeq":  func() { q.GenerateSequence(false) },
		"GenerateTs":   func() { q.GenerateTimestamp(false) },
		"Transaction":  func() { q.TransactionID() },
	}
	for name, fn := range accessors {
		assert.PanicsWithValue(t, ErrPacketDestroyed, fn, name)
	}

	var out bytes.Buffer
	q.Dump(&out)
	assert.Contains(t, out.String(), "destroyed")
	q.Destroy()
}

func TestPacketResetKeepsBuffers(t *testing.T) {
	ctx := newTestContext()
	b := mustBytes(t, newTextMessage(ctx, "reuse"))

	q := NewPacket(ctx)
	_, err := q.Read(bytes.NewReader(b))
	require.NoError(t, err)
	misses := ctx.BufferPool().Stats().Misses

	q.Reset()
	assert.Equal(t, PacketTypeNull, q.Type())
	assert.Nil(t, q.Body())
	_, err = q.Read(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, misses, ctx.BufferPool().Stats().Misses)
	assert.Equal(t, "reuse", string(q.Body()))
}

func TestPacketWrite(t *testing.T) {
	ctx := newTestContext()
	p := newTextMessage(ctx, "written in pieces")
	p.GenerateSequence(false)
	p.GenerateTimestamp(false)
	p.SetSequence(7)
	want := mustBytes(t, p)

	w := &trickleWriter{max: 5}
	calls := 0
	for {
		done, err := p.WritePacket(w)
		require.NoError(t, err)
		calls++
		if done {
			break
		}
		require.Less(t, calls, 10*len(want))
	}
	assert.Equal(t, want, w.Bytes())

	var buf bytes.Buffer
	n, err := p.Write(&buf)
	require.NoError(t, err)
	assert.Equal(t, len(want), n)
	assert.Equal(t, want, buf.Bytes())
}

func TestPacketSequenceGeneration(t *testing.T) {
	ctx := newTestContext()
	p := newTextMessage(ctx, "seq")

	var buf bytes.Buffer
	_, err := p.Write(&buf)
	require.NoError(t, err)
	first := p.Sequence()
	_, err = p.Write(&buf)
	require.NoError(t, err)
	assert.Equal(t, first+1, p.Sequence())
	assert.Equal(t, int64(testNow), p.Timestamp())

	q := NewPacket(ctx)
	_, err = q.Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, first, q.Sequence())
	_, err = q.Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, first+1, q.Sequence())
}

func TestPacketEqualityExcludesBody(t *testing.T) {
	ctx := newTestContext()
	p := newTextMessage(ctx, "one body")
	_ = mustBytes(t, p)

	q := NewPacket(ctx)
	require.NoError(t, q.CopyFrom(p, true))
	q.SetBody([]byte("a different and longer body"))
	assert.True(t, p.Equal(q))

	q.SetPriority(9)
	assert.False(t, p.Equal(q))
	q.SetPriority(p.Priority())
	q.SetProperty("extra", true)
	assert.False(t, p.Equal(q))

	// decoded maps are compared, not the encoded blobs
	r := NewPacket(ctx)
	require.NoError(t, r.CopyFrom(p, true))
	props, err := p.Properties()
	require.NoError(t, err)
	same := make(map[string]interface{}, len(props))
	for k, v := range props {
		same[k] = v
	}
	r.SetProperties(same)
	assert.True(t, p.Equal(r))
}

func TestPacketCopyFrom(t *testing.T) {
	ctx := newTestContext()
	src := newTextMessage(ctx, "shared")

	shallow := NewPacket(ctx)
	require.NoError(t, shallow.CopyFrom(src, false))
	assert.True(t, &src.Body()[0] == &shallow.Body()[0])
	assert.Equal(t, "orders", shallow.Destination())
	v, _ := shallow.Property("who")
	assert.Equal(t, "me", v)

	deep := NewPacket(ctx)
	require.NoError(t, deep.CopyFrom(src, true))
	assert.False(t, &src.Body()[0] == &deep.Body()[0])
	assert.Equal(t, src.Body(), deep.Body())
	assert.True(t, src.Equal(deep))
}

func TestPacketVersion1(t *testing.T) {
	ctx := newTestContext()
	p := NewPacket(ctx)
	p.SetType(PacketTypeTextMessage)
	p.SetVersion(Version1)
	p.SetTransactionID(77)
	p.SetFlag(FlagPersistent, true)
	p.SetFlag(FlagIsBrowse, true)
	p.SetBody([]byte("v1"))

	b := mustBytes(t, p)
	assert.Len(t, b, HeaderSize+4+2)
	assert.Equal(t, Version1, EncByteOrder.Uint16(b[4:]))
	assert.Equal(t, uint32(77), EncByteOrder.Uint32(b[12:]))

	q := NewPacket(ctx)
	_, err := q.Read(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, Version1, q.Version())
	assert.Equal(t, int64(77), q.TransactionID())
	assert.Equal(t, FlagPersistent, q.Flags())
	assert.Equal(t, "v1", string(q.Body()))

	q.SetVersion(Version3)
	assert.Equal(t, int64(77), q.TransactionID())
	b = mustBytes(t, q)

	r := NewPacket(ctx)
	_, err = r.Read(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, Version3, r.Version())
	assert.Equal(t, int64(77), r.TransactionID())
	assert.Equal(t, int64(77), r.VariableHeader().Long(TagTransactionID))
}

func TestPacketVersion1TransactionIDOnce(t *testing.T) {
	ctx := newTestContext()
	p := NewPacket(ctx)
	p.SetType(PacketTypeTextMessage)
	p.SetTransactionID(111)
	p.SetVersion(Version1)
	assert.Equal(t, int64(111), p.TransactionID())
	p.SetTransactionID(222)

	b := mustBytes(t, p)
	assert.Equal(t, uint32(222), EncByteOrder.Uint32(b[12:]))

	q := NewPacket(ctx)
	_, done, err := q.ReadBuffer(b)
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, int64(222), q.TransactionID())
	assert.Equal(t, int64(0), q.VariableHeader().Long(TagTransactionID))

	q.SetVersion(Version3)
	assert.Equal(t, int64(222), q.VariableHeader().Long(TagTransactionID))
}

func TestPacketMessageID(t *testing.T) {
	ctx := newTestContext()
	p := newTextMessage(ctx, "id")
	p.SetSysMessageID(testSysMessageID())
	assert.Equal(t, "42-10.1.2.3-7676-1700000000000", p.MessageID())

	p.SetMessageID("ID:custom")
	assert.Equal(t, "ID:custom", p.MessageID())
	p.PrepareToSend()
	assert.Equal(t, "42-10.1.2.3-7676-1700000000000", p.MessageID())

	p.SetType(PacketTypeHelloReply)
	assert.True(t, p.IsReply())
}

func TestPacketValidate(t *testing.T) {
	ctx := newTestContext()
	p := NewPacket(ctx)
	p.SetProperty("k", int32(1))
	b := mustBytes(t, p)
	b[HeaderSize+3] = 9

	q := NewPacket(ctx)
	_, err := q.Read(bytes.NewReader(b))
	require.NoError(t, err)
	err = q.Validate()
	var derr *DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "properties", derr.Section)
	assert.False(t, IsFatal(err))
}

func TestPacketDump(t *testing.T) {
	ctx := newTestContext()
	p := newTextMessage(ctx, "dump")
	_ = mustBytes(t, p)

	var buf bytes.Buffer
	p.Dump(&buf)
	out := buf.String()
	assert.Contains(t, out, "TEXT_MESSAGE")
	assert.Contains(t, out, `DESTINATION="orders"`)
	assert.Contains(t, out, "flags=P(0x0004)")
	assert.Contains(t, p.String(), "TEXT_MESSAGE:")
}
