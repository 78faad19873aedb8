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
	"strings"

	"github.com/golang/glog"
)

type VarHeaderTag uint16

const (
	tagNull             VarHeaderTag = 0
	TagDestination      VarHeaderTag = 1
	TagMessageID        VarHeaderTag = 2
	TagCorrelationID    VarHeaderTag = 3
	TagReplyTo          VarHeaderTag = 4
	TagType             VarHeaderTag = 5
	TagDestinationClass VarHeaderTag = 6
	TagReplyToClass     VarHeaderTag = 7
	TagTransactionID    VarHeaderTag = 8
	TagProducerID       VarHeaderTag = 9
	TagDeliveryTime     VarHeaderTag = 10
	TagDeliveryCount    VarHeaderTag = 11

	lastStringTag = TagReplyToClass
)

var varHeaderTagNames = [...]string{
	"NULL", "DESTINATION", "MESSAGEID", "CORRELATIONID", "REPLYTO", "TYPE",
	"DESTINATION_CLASS", "REPLYTO_CLASS", "TRANSACTIONID", "PRODUCERID",
	"DELIVERY_TIME", "DELIVERY_COUNT",
}

func (t VarHeaderTag) String() string {
	if int(t) < len(varHeaderTagNames) {
		return varHeaderTagNames[t]
	}
	return fmt.Sprintf("TAG(%d)", uint16(t))
}

func (t VarHeaderTag) isString() bool {
	return t >= TagDestination && t <= lastStringTag
}

// VariableHeader holds the optional tagged fields that follow the fixed
// header. Wire bytes handed in by SetBytes are decoded on first access.
type VariableHeader struct {
	buf    []byte
	parsed bool
	dirty  bool
	err    error

	strs          [lastStringTag + 1]string
	strSet        uint16
	transactionID int64
	producerID    int64
	deliveryTime  int64
	deliveryCount int32
}

func (h *VariableHeader) Reset() {
	*h = VariableHeader{}
}

// SetBytes installs wire bytes to be decoded lazily. b is not copied and must
// stay valid until the next SetBytes or Reset.
func (h *VariableHeader) SetBytes(b []byte) {
	h.Reset()
	h.buf = b
	h.parsed = len(b) == 0
}

func (h *VariableHeader) Dirty() bool {
	return h.dirty
}

// Err decodes the wire bytes if needed and returns the decode error, if any.
// Fields decoded before the error remain available.
func (h *VariableHeader) Err() error {
	h.parse()
	return h.err
}

func (h *VariableHeader) String(tag VarHeaderTag) (string, bool) {
	if !tag.isString() {
		return "", false
	}
	h.parse()
	return h.strs[tag], h.strSet&(1<<tag) != 0
}

// SetString sets a string field. An empty value is still sent; use Clear to
// remove a field.
func (h *VariableHeader) SetString(tag VarHeaderTag, v string) {
	if !tag.isString() {
		panic(fmt.Sprintf("%s is not a string field", tag))
	}
	h.parse()
	h.strs[tag] = v
	h.strSet |= 1 << tag
	h.dirty = true
}

func (h *VariableHeader) Clear(tag VarHeaderTag) {
	h.parse()
	switch {
	case tag.isString():
		h.strs[tag] = ""
		h.strSet &^= 1 << tag
	case tag == TagTransactionID:
		h.transactionID = 0
	case tag == TagProducerID:
		h.producerID = 0
	case tag == TagDeliveryTime:
		h.deliveryTime = 0
	case tag == TagDeliveryCount:
		h.deliveryCount = 0
	default:
		return
	}
	h.dirty = true
}

func (h *VariableHeader) Long(tag VarHeaderTag) int64 {
	h.parse()
	switch tag {
	case TagTransactionID:
		return h.transactionID
	case TagProducerID:
		return h.producerID
	case TagDeliveryTime:
		return h.deliveryTime
	}
	return 0
}

func (h *VariableHeader) SetLong(tag VarHeaderTag, v int64) {
	h.parse()
	switch tag {
	case TagTransactionID:
		h.transactionID = v
	case TagProducerID:
		h.producerID = v
	case TagDeliveryTime:
		h.deliveryTime = v
	default:
		panic(fmt.Sprintf("%s is not a long field", tag))
	}
	h.dirty = true
}

func (h *VariableHeader) DeliveryCount() int32 {
	h.parse()
	return h.deliveryCount
}

func (h *VariableHeader) SetDeliveryCount(v int32) {
	h.parse()
	h.deliveryCount = v
	h.dirty = true
}

// equalFields compares every field except the transaction id, which the
// oldest header version carries outside the variable header.
func (h *VariableHeader) equalFields(o *VariableHeader) bool {
	h.parse()
	o.parse()
	return h.strSet == o.strSet && h.strs == o.strs && h.producerID == o.producerID &&
		h.deliveryTime == o.deliveryTime && h.deliveryCount == o.deliveryCount
}

func (h *VariableHeader) isEmpty() bool {
	return h.strSet == 0 && h.transactionID == 0 && h.producerID == 0 &&
		h.deliveryTime == 0 && h.deliveryCount <= 0
}

// Bytes returns the wire form. Unless compat is set, a header with no fields
// encodes to nil. compat always yields at least the terminator and padding,
// which the oldest protocol version requires.
func (h *VariableHeader) Bytes(compat bool) ([]byte, error) {
	if !h.dirty && (len(h.buf) != 0 || !compat) {
		return h.buf, nil
	}
	h.parse()
	if h.isEmpty() && !compat {
		h.buf = nil
		h.dirty = false
		return nil, nil
	}
	b, err := h.encode()
	if err != nil {
		return nil, err
	}
	h.buf = b
	h.dirty = false
	return b, nil
}

func (h *VariableHeader) encode() (b []byte, err error) {
	b = make([]byte, 0, 64)
	appendLong := func(tag VarHeaderTag, v int64) {
		if v != 0 {
			b = EncByteOrder.AppendUint16(b, uint16(tag))
			b = EncByteOrder.AppendUint16(b, 8)
			b = EncByteOrder.AppendUint64(b, uint64(v))
		}
	}
	appendLong(TagTransactionID, h.transactionID)
	appendLong(TagProducerID, h.producerID)
	appendLong(TagDeliveryTime, h.deliveryTime)
	if h.deliveryCount > 0 {
		b = EncByteOrder.AppendUint16(b, uint16(TagDeliveryCount))
		b = EncByteOrder.AppendUint16(b, 4)
		b = EncByteOrder.AppendUint32(b, uint32(h.deliveryCount))
	}
	for tag := TagDestination; tag <= lastStringTag; tag++ {
		if h.strSet&(1<<tag) == 0 {
			continue
		}
		b = EncByteOrder.AppendUint16(b, uint16(tag))
		if b, err = appendUTF(b, h.strs[tag]); err != nil {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
	}
	b = EncByteOrder.AppendUint16(b, uint16(tagNull))
	for pad := 4 - len(b)%4; pad > 0; pad-- {
		b = append(b, 0)
	}
	return b, nil
}

func (h *VariableHeader) parse() {
	if h.parsed {
		return
	}
	h.parsed = true
	b := h.buf
	if len(b) == 0 {
		return
	}
	off := 0
	for {
		if off+2 > len(b) {
			h.err = &DecodeError{Section: "variable header", Offset: off, Err: io.ErrUnexpectedEOF}
			break
		}
		tag := VarHeaderTag(EncByteOrder.Uint16(b[off:]))
		off += 2
		if tag == tagNull {
			break
		}
		if off+2 > len(b) {
			h.err = &DecodeError{Section: "variable header", Offset: off, Err: io.ErrUnexpectedEOF}
			break
		}
		l := int(EncByteOrder.Uint16(b[off:]))
		off += 2
		if off+l > len(b) {
			h.err = &DecodeError{Section: "variable header", Offset: off,
				Err: fmt.Errorf("%s length %d past end of %d-byte header", tag, l, len(b))}
			break
		}
		v := b[off : off+l]
		off += l

		switch {
		case tag.isString():
			if s, ok := decodeUTF(v); ok {
				h.strs[tag] = s
				h.strSet |= 1 << tag
			} else {
				glog.Warningf("variable header: invalid UTF-8 in %s at offset %d, field ignored", tag, off-l)
			}
		case tag == TagTransactionID || tag == TagProducerID || tag == TagDeliveryTime:
			if l < 8 {
				glog.Warningf("variable header: %s has length %d, field ignored", tag, l)
				continue
			}
			x := int64(EncByteOrder.Uint64(v))
			switch tag {
			case TagTransactionID:
				h.transactionID = x
			case TagProducerID:
				h.producerID = x
			default:
				h.deliveryTime = x
			}
		case tag == TagDeliveryCount:
			if l < 4 {
				glog.Warningf("variable header: %s has length %d, field ignored", tag, l)
				continue
			}
			h.deliveryCount = int32(EncByteOrder.Uint32(v))
		}
	}
}

func (h *VariableHeader) Dump(w io.Writer) {
	h.parse()
	var fields []string
	if h.transactionID != 0 {
		fields = append(fields, fmt.Sprintf("%s=%d", TagTransactionID, h.transactionID))
	}
	if h.producerID != 0 {
		fields = append(fields, fmt.Sprintf("%s=%d", TagProducerID, h.producerID))
	}
	if h.deliveryTime != 0 {
		fields = append(fields, fmt.Sprintf("%s=%d", TagDeliveryTime, h.deliveryTime))
	}
	if h.deliveryCount != 0 {
		fields = append(fields, fmt.Sprintf("%s=%d", TagDeliveryCount, h.deliveryCount))
	}
	for tag := TagDestination; tag <= lastStringTag; tag++ {
		if h.strSet&(1<<tag) != 0 {
			fields = append(fields, fmt.Sprintf("%s=%q", tag, h.strs[tag]))
		}
	}
	fmt.Fprintf(w, "  variable header: {%s}\n", strings.Join(fields, ", "))
	if h.err != nil {
		fmt.Fprintf(w, "  variable header error: %s\n", h.err)
	}
}
