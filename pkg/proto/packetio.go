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
	"fmt"
	"io"

	"github.com/golang/glog"

	"mqwire/pkg/logging"
)

const maxSkipChunk = 64 * 1024

// discarder is implemented by in-memory sources that can drop buffered bytes
// without copying them.
type discarder interface {
	discardAvailable(max int64) int
}

// sliceReader reads from a fixed slice. An exhausted slice reports zero
// progress rather than io.EOF, as a non-blocking socket with no data would.
type sliceReader struct {
	b   []byte
	off int
}

func (r *sliceReader) Read(b []byte) (int, error) {
	n := copy(b, r.b[r.off:])
	r.off += n
	return n, nil
}

func (r *sliceReader) discardAvailable(max int64) int {
	n := len(r.b) - r.off
	if int64(n) > max {
		n = int(max)
	}
	r.off += n
	return n
}

func (p *Packet) inProgressErr() error {
	if p.state == stateWriting {
		return ErrWriteInProgress
	}
	return ErrReadInProgress
}

func (p *Packet) stamp() error {
	if p.genSequence {
		p.hdr.sysMessageID.Sequence = p.ctx.NextSequence()
		p.dirty = true
	}
	if p.genTimestamp {
		p.hdr.sysMessageID.Timestamp = p.ctx.NowMillis()
		p.dirty = true
	}
	return p.updateBuffers()
}

func (p *Packet) beginRead() {
	p.state = stateReadingHeader
	p.headerRead = 0
	p.bodyRead = 0
	p.bigErr = nil
	p.skipRemaining = 0
	p.layoutErr = nil
	p.rgn.reset(p.fixedBuf[:])
}

// parseHeader decodes the fixed header and sets up the regions for the rest
// of the packet, or switches to skipping if it is too big.
func (p *Packet) parseHeader() error {
	if err := p.hdr.unmarshal(p.fixedBuf[:]); err != nil {
		return err
	}
	size := int64(p.hdr.size)
	if size < HeaderSize {
		return ErrInvalidPacketSize
	}
	if max := p.ctx.MaxPacketSize(); size > max {
		p.bigErr = &BigPacketError{Size: size, Max: max}
		p.skipRemaining = size - HeaderSize
		p.state = stateSkipping
		if logging.LOG_DEBUG {
			glog.Infof("skipping %d bytes of oversized %s packet", p.skipRemaining, p.hdr.packetType)
		}
		return nil
	}
	rest := int(size - HeaderSize)
	varLen, propLen := 0, 0
	if !p.hdr.versionMismatch {
		propOff, propSize := int64(p.hdr.propertiesOffset), int64(p.hdr.propertiesSize)
		if propOff < HeaderSize || propOff+propSize > size {
			p.layoutErr = &DecodeError{Section: "fixed header", Offset: int(propOff),
				Err: fmt.Errorf("properties [%d,+%d) outside packet of size %d", propOff, propSize, size)}
		} else {
			varLen = int(propOff - HeaderSize)
			propLen = int(propSize)
		}
	}
	bodyLen := rest - varLen - propLen

	p.varBuf = p.scratch(p.varBuf, varLen)
	p.propBuf = p.scratch(p.propBuf, propLen)
	p.bodyBuf = p.scratch(p.bodyBuf, bodyLen)
	p.varBytes = regionBytes(p.varBuf, varLen)
	p.propBytes = regionBytes(p.propBuf, propLen)
	p.body = regionBytes(p.bodyBuf, bodyLen)
	p.rgn.reset(p.varBytes, p.propBytes, p.body)
	p.state = stateReadingBody
	return nil
}

// skip discards what src has available of an oversized packet.
func (p *Packet) skip(src io.Reader) error {
	for p.skipRemaining > 0 {
		var (
			n   int
			err error
		)
		if d, ok := src.(discarder); ok {
			n = d.discardAvailable(p.skipRemaining)
		} else {
			chunk := int64(maxSkipChunk)
			if chunk > p.skipRemaining {
				chunk = p.skipRemaining
			}
			p.bodyBuf = p.scratch(p.bodyBuf, int(chunk))
			n, err = src.Read(p.bodyBuf.Bytes())
		}
		p.skipRemaining -= int64(n)
		p.bodyRead += n
		if err != nil {
			if err == io.EOF && p.skipRemaining == 0 {
				return nil
			}
			return err
		}
		if n == 0 {
			return nil
		}
	}
	return nil
}

func (p *Packet) finishRead() error {
	p.state = stateIdle
	p.varHdr.SetBytes(p.varBytes)
	p.props = nil
	p.propsDecoded = false
	p.propsDirty = false
	p.propErr = nil
	p.dirty = false
	if p.hdr.versionMismatch {
		return &VersionMismatchError{Version: p.hdr.version}
	}
	return p.layoutErr
}

// failRead ends the current read. An end of stream before the first byte is
// a clean io.EOF, anywhere else it is a *TruncatedError.
func (p *Packet) failRead(err error) error {
	p.state = stateIdle
	if err != io.EOF && err != io.ErrUnexpectedEOF {
		return err
	}
	if p.headerRead == 0 && err == io.EOF {
		return io.EOF
	}
	size := 0
	if p.headerRead == HeaderSize {
		size = int(p.hdr.size)
	}
	return &TruncatedError{HeaderRead: p.headerRead, BodyRead: p.bodyRead, Size: size, Err: io.ErrUnexpectedEOF}
}

func (p *Packet) readPacket(src io.Reader) (done bool, err error) {
	switch p.state {
	case stateWriting:
		return false, ErrWriteInProgress
	case stateIdle:
		p.beginRead()
	}

	if p.state == stateReadingHeader {
		n, err := p.rgn.readFrom(src)
		p.headerRead += n
		if err != nil {
			return false, p.failRead(err)
		}
		if !p.rgn.done() {
			return false, nil
		}
		if err = p.parseHeader(); err != nil {
			p.state = stateIdle
			return false, err
		}
		if p.state == stateSkipping {
			if err = p.skip(src); err != nil {
				return false, p.failRead(err)
			}
			done = p.skipRemaining == 0
			if done {
				p.state = stateIdle
			}
			return done, p.BigPacketError()
		}
	}

	if p.state == stateSkipping {
		if err = p.skip(src); err != nil {
			return false, p.failRead(err)
		}
		if p.skipRemaining != 0 {
			return false, nil
		}
		p.state = stateIdle
		return true, nil
	}

	n, err := p.rgn.readFrom(src)
	p.bodyRead += n
	if err != nil {
		return false, p.failRead(err)
	}
	if !p.rgn.done() {
		return false, nil
	}
	return true, p.finishRead()
}

// ReadPacket reads from a non-blocking source. A source read returning zero
// bytes and no error means no data is available yet; ReadPacket then returns
// done == false and the call is resumed later with the same packet.
//
// An oversized packet is reported once, by the call that completes its
// header, with a *BigPacketError. Later calls keep discarding it and return
// done == true with a nil error once it is gone; BigPacketError tells such a
// packet apart from a real one.
func (p *Packet) ReadPacket(src io.Reader) (done bool, err error) {
	if err = p.enter(); err != nil {
		return false, err
	}
	defer p.leave()
	return p.readPacket(src)
}

// ReadBuffer feeds the bytes of b to the packet and returns how many were
// consumed. Bytes past the end of the packet are left for the next one.
func (p *Packet) ReadBuffer(b []byte) (n int, done bool, err error) {
	if err = p.enter(); err != nil {
		return 0, false, err
	}
	defer p.leave()
	r := sliceReader{b: b}
	done, err = p.readPacket(&r)
	return r.off, done, err
}

// Read reads one whole packet from a blocking source and returns the number
// of bytes consumed. An oversized packet is discarded and reported with a
// *BigPacketError after the stream is aligned on the next packet.
func (p *Packet) Read(r io.Reader) (n int, err error) {
	if err = p.enter(); err != nil {
		return 0, err
	}
	defer p.leave()

	switch p.state {
	case stateWriting:
		return 0, ErrWriteInProgress
	case stateIdle:
		p.beginRead()
	}

	if p.state == stateReadingHeader {
		m, err := p.rgn.readFull(r)
		p.headerRead += m
		n += m
		if err != nil {
			return n, p.failRead(err)
		}
		if err = p.parseHeader(); err != nil {
			p.state = stateIdle
			return n, err
		}
	}

	if p.state == stateSkipping {
		m, err := io.CopyN(io.Discard, r, p.skipRemaining)
		n += int(m)
		p.skipRemaining -= m
		p.bodyRead += int(m)
		if err != nil {
			return n, p.failRead(err)
		}
		p.state = stateIdle
		return n, p.BigPacketError()
	}

	m, err := p.rgn.readFull(r)
	p.bodyRead += m
	n += m
	if err != nil {
		return n, p.failRead(err)
	}
	return n, p.finishRead()
}

func (p *Packet) beginWrite() error {
	if err := p.stamp(); err != nil {
		return err
	}
	p.rgn.reset(p.fixedBuf[:], p.varBytes, p.propBytes, p.body)
	p.state = stateWriting
	return nil
}

// WritePacket writes to a non-blocking sink. A sink write that accepts zero
// bytes means it is full; WritePacket returns done == false and is resumed
// later. Sequence and timestamp are assigned when the write starts.
func (p *Packet) WritePacket(dst io.Writer) (done bool, err error) {
	if err = p.enter(); err != nil {
		return false, err
	}
	defer p.leave()

	switch p.state {
	case stateIdle:
		if err = p.beginWrite(); err != nil {
			return false, err
		}
	case stateWriting:
	default:
		return false, ErrReadInProgress
	}
	if _, err = p.rgn.writeTo(dst); err != nil {
		p.state = stateIdle
		return false, err
	}
	if !p.rgn.done() {
		return false, nil
	}
	p.state = stateIdle
	return true, nil
}

// Write writes the whole packet, or what remains of a partial WritePacket,
// to a blocking sink with one vectored write.
func (p *Packet) Write(w io.Writer) (n int, err error) {
	if err = p.enter(); err != nil {
		return 0, err
	}
	defer p.leave()

	switch p.state {
	case stateIdle:
		if err = p.beginWrite(); err != nil {
			return 0, err
		}
	case stateWriting:
	default:
		return 0, ErrReadInProgress
	}
	bufs := p.rgn.pending()
	m, err := bufs.WriteTo(w)
	p.state = stateIdle
	return int(m), err
}
