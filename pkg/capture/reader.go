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

package capture

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cespare/xxhash/v2"
	uuid "github.com/satori/go.uuid"

	"mqwire/pkg/proto"
	"mqwire/pkg/util"
)

type Record struct {
	Flags uint8
	Data  []byte
}

func (r Record) IsGPacket() bool {
	return r.Flags&FlagGPacket != 0
}

// Packet decodes the record into a new Packet owned by the caller.
func (r Record) Packet(ctx *proto.Context) (*proto.Packet, error) {
	if r.IsGPacket() {
		return nil, errors.New("record holds a GPacket")
	}
	p := proto.NewPacket(ctx)
	n, done, err := p.ReadBuffer(r.Data)
	if err == nil && !done {
		err = &proto.TruncatedError{HeaderRead: min(n, proto.HeaderSize), BodyRead: max(n-proto.HeaderSize, 0), Err: io.ErrUnexpectedEOF}
	}
	if err == nil && n != len(r.Data) {
		err = fmt.Errorf("capture record has %d trailing bytes", len(r.Data)-n)
	}
	if err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

func (r Record) GPacket(ctx *proto.Context) (*proto.GPacket, error) {
	if !r.IsGPacket() {
		return nil, errors.New("record holds a Packet")
	}
	g := proto.NewGPacket(ctx)
	if _, err := g.Read(bytes.NewReader(r.Data)); err != nil {
		g.Destroy()
		return nil, err
	}
	return g, nil
}

type Reader struct {
	r       *bufio.Reader
	codec   CodecType
	version uint16
	session uuid.UUID
	maxSize int
	index   int64
	hdr     [RecordHeaderSize]byte
}

// NewReader reads and checks the file header.
func NewReader(r io.Reader, conf Config) (*Reader, error) {
	conf.SetDefaultIfNotDefined()
	cr := &Reader{
		r:       util.NewBufioReader(r, conf.BufferSize),
		maxSize: conf.MaxRecordSize,
	}
	hdr, err := cr.readFileHeader()
	if err != nil {
		cr.Close()
		return nil, err
	}
	cr.version = EncByteOrder.Uint16(hdr[4:6])
	cr.codec = CodecType(hdr[6])
	if cr.session, err = uuid.FromBytes(hdr[8:24]); err != nil {
		cr.Close()
		return nil, err
	}
	return cr, nil
}

func (r *Reader) readFileHeader() (hdr [FileHeaderSize]byte, err error) {
	if _, err = io.ReadFull(r.r, hdr[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			err = ErrBadMagic
		}
		return
	}
	if string(hdr[0:4]) != Magic {
		err = ErrBadMagic
	} else if v := EncByteOrder.Uint16(hdr[4:6]); v != FormatVersion {
		err = fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	} else if !CodecType(hdr[6]).valid() {
		err = fmt.Errorf("%w: %d", ErrUnsupportedCodec, hdr[6])
	}
	return
}

// Close releases the read buffer. The underlying reader is not closed.
func (r *Reader) Close() {
	if r.r != nil {
		util.PutBufioReader(r.r)
		r.r = nil
	}
}

func (r *Reader) Codec() CodecType {
	return r.codec
}

func (r *Reader) Session() uuid.UUID {
	return r.session
}

// Created returns when the capture was started, taken from the session id.
func (r *Reader) Created() (time.Time, error) {
	return util.GetTimeFromUUIDv1(r.session)
}

// Next returns the next record, or io.EOF at a clean end of file.
func (r *Reader) Next() (rec Record, err error) {
	if _, err = io.ReadFull(r.r, r.hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = fmt.Errorf("record %d header: %w", r.index, err)
		}
		return
	}
	flags := r.hdr[0]
	rawLen := int(EncByteOrder.Uint32(r.hdr[1:5]))
	storedLen := int(EncByteOrder.Uint32(r.hdr[5:9]))
	sum := EncByteOrder.Uint64(r.hdr[9:17])
	if rawLen > r.maxSize || storedLen > r.maxSize {
		err = fmt.Errorf("record %d: %w", r.index, ErrRecordTooLarge)
		return
	}

	stored := make([]byte, storedLen)
	if _, err = io.ReadFull(r.r, stored); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		err = fmt.Errorf("record %d body: %w", r.index, err)
		return
	}

	raw := stored
	if flags&FlagRaw == 0 {
		if raw, err = r.codec.decompress(stored, rawLen); err != nil {
			err = fmt.Errorf("record %d: %w", r.index, err)
			return
		}
	} else if storedLen != rawLen {
		err = fmt.Errorf("record %d: raw record length %d, want %d", r.index, storedLen, rawLen)
		return
	}
	if xxhash.Sum64(raw) != sum {
		err = fmt.Errorf("record %d: %w", r.index, ErrChecksum)
		return
	}
	r.index++
	rec = Record{Flags: flags &^ FlagRaw, Data: raw}
	return
}
