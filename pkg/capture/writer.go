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
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/glog"
	uuid "github.com/satori/go.uuid"

	"mqwire/pkg/proto"
	"mqwire/pkg/util"
)

type Stats struct {
	Records     int64
	RawBytes    int64
	StoredBytes int64
}

func (s Stats) Ratio() float64 {
	if s.RawBytes == 0 {
		return 0
	}
	return float64(s.StoredBytes) / float64(s.RawBytes)
}

// Writer appends packet records to a capture stream. It is not safe for
// concurrent use.
type Writer struct {
	w       *bufio.Writer
	codec   CodecType
	maxSize int
	session uuid.UUID
	stats   Stats
	hdr     [RecordHeaderSize]byte
}

// NewWriter writes the file header to w and returns a Writer for the records.
func NewWriter(w io.Writer, conf Config) (*Writer, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	codec, _ := ParseCodec(conf.Codec)
	cw := &Writer{
		w:       util.NewBufioWriter(w, conf.BufferSize),
		codec:   codec,
		maxSize: conf.MaxRecordSize,
		session: uuid.NewV1(),
	}
	var hdr [FileHeaderSize]byte
	copy(hdr[0:4], Magic)
	EncByteOrder.PutUint16(hdr[4:6], FormatVersion)
	hdr[6] = uint8(codec)
	copy(hdr[8:24], cw.session.Bytes())
	if _, err := cw.w.Write(hdr[:]); err != nil {
		util.PutBufioWriter(cw.w)
		return nil, err
	}
	return cw, nil
}

func (w *Writer) Session() uuid.UUID {
	return w.session
}

func (w *Writer) Codec() CodecType {
	return w.codec
}

func (w *Writer) Stats() Stats {
	return w.stats
}

// WritePacket appends p. Sequence and timestamp are stamped as for a send.
func (w *Writer) WritePacket(p *proto.Packet) error {
	raw, err := p.Bytes()
	if err != nil {
		return err
	}
	return w.WriteRecord(0, raw)
}

func (w *Writer) WriteGPacket(g *proto.GPacket) error {
	raw, err := g.Bytes()
	if err != nil {
		return err
	}
	return w.WriteRecord(FlagGPacket, raw)
}

// WriteRecord appends raw with the given flags. FlagRaw is managed by the
// writer and ignored in flags.
func (w *Writer) WriteRecord(flags uint8, raw []byte) error {
	if len(raw) > w.maxSize {
		return fmt.Errorf("%w: %d > %d", ErrRecordTooLarge, len(raw), w.maxSize)
	}
	flags &^= FlagRaw
	stored, err := w.codec.compress(raw)
	if err != nil {
		glog.Warningf("%s compress failed, storing raw: %s", w.codec, err)
		stored = nil
	}
	if w.codec != CodecNone && (stored == nil || len(stored) >= len(raw)) {
		stored = raw
		flags |= FlagRaw
	}

	w.hdr[0] = flags
	EncByteOrder.PutUint32(w.hdr[1:5], uint32(len(raw)))
	EncByteOrder.PutUint32(w.hdr[5:9], uint32(len(stored)))
	EncByteOrder.PutUint64(w.hdr[9:17], xxhash.Sum64(raw))
	if _, err = w.w.Write(w.hdr[:]); err != nil {
		return err
	}
	if _, err = w.w.Write(stored); err != nil {
		return err
	}
	w.stats.Records++
	w.stats.RawBytes += int64(len(raw))
	w.stats.StoredBytes += int64(RecordHeaderSize + len(stored))
	return nil
}

func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Close flushes buffered records. The underlying writer is not closed.
func (w *Writer) Close() error {
	if w.w == nil {
		return nil
	}
	err := w.w.Flush()
	util.PutBufioWriter(w.w)
	w.w = nil
	return err
}
