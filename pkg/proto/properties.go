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
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/golang/glog"
)

const (
	propertiesVersion1 int32 = 1

	propBoolean uint16 = 1
	propByte    uint16 = 2
	propShort   uint16 = 3
	propInteger uint16 = 4
	propLong    uint16 = 5
	propFloat   uint16 = 6
	propDouble  uint16 = 7
	propString  uint16 = 8
	propObject  uint16 = 9
)

// Opaque holds a property value of a type outside the scalar set. It is the
// JSON encoding of the original value.
type Opaque []byte

// EncodeProperties serializes props. Keys are written in sorted order. Values
// of type bool, int8, int16, int32, int64, float32, float64 and string keep
// their type; anything else is stored as JSON and decodes to Opaque.
func EncodeProperties(props map[string]interface{}) ([]byte, error) {
	if len(props) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b := make([]byte, 0, 16*len(props)+8)
	b = EncByteOrder.AppendUint32(b, uint32(propertiesVersion1))
	b = EncByteOrder.AppendUint32(b, uint32(len(props)))

	var err error
	for _, k := range keys {
		if b, err = appendUTF(b, k); err != nil {
			return nil, fmt.Errorf("property key: %w", err)
		}
		if b, err = appendPropertyValue(b, props[k]); err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
	}
	return b, nil
}

func appendPropertyValue(b []byte, v interface{}) ([]byte, error) {
	switch x := v.(type) {
	case bool:
		b = EncByteOrder.AppendUint16(b, propBoolean)
		if x {
			return append(b, 1), nil
		}
		return append(b, 0), nil
	case int8:
		b = EncByteOrder.AppendUint16(b, propByte)
		return append(b, byte(x)), nil
	case int16:
		b = EncByteOrder.AppendUint16(b, propShort)
		return EncByteOrder.AppendUint16(b, uint16(x)), nil
	case int32:
		b = EncByteOrder.AppendUint16(b, propInteger)
		return EncByteOrder.AppendUint32(b, uint32(x)), nil
	case int64:
		b = EncByteOrder.AppendUint16(b, propLong)
		return EncByteOrder.AppendUint64(b, uint64(x)), nil
	case float32:
		b = EncByteOrder.AppendUint16(b, propFloat)
		return EncByteOrder.AppendUint32(b, math.Float32bits(x)), nil
	case float64:
		b = EncByteOrder.AppendUint16(b, propDouble)
		return EncByteOrder.AppendUint64(b, math.Float64bits(x)), nil
	case string:
		b = EncByteOrder.AppendUint16(b, propString)
		return appendUTF(b, x)
	case Opaque:
		return appendOpaque(b, x), nil
	default:
		blob, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return appendOpaque(b, blob), nil
	}
}

func appendOpaque(b []byte, blob []byte) []byte {
	b = EncByteOrder.AppendUint16(b, propObject)
	b = EncByteOrder.AppendUint32(b, uint32(len(blob)))
	return append(b, blob...)
}

type propReader struct {
	b   []byte
	off int
}

func (r *propReader) need(n int) error {
	if n < 0 || r.off+n > len(r.b) {
		return &DecodeError{Section: "properties", Offset: r.off, Err: io.ErrUnexpectedEOF}
	}
	return nil
}

func (r *propReader) next(n int) (v []byte, err error) {
	if err = r.need(n); err == nil {
		v = r.b[r.off : r.off+n]
		r.off += n
	}
	return
}

func (r *propReader) utf() (string, error) {
	lb, err := r.next(2)
	if err != nil {
		return "", err
	}
	off := r.off
	v, err := r.next(int(EncByteOrder.Uint16(lb)))
	if err != nil {
		return "", err
	}
	s, ok := decodeUTF(v)
	if !ok {
		return "", &DecodeError{Section: "properties", Offset: off, Err: fmt.Errorf("invalid UTF-8")}
	}
	return s, nil
}

// key length, type code and at least one value byte
const minPropertyEntrySize = 5

// DecodeProperties parses a blob written by EncodeProperties. An unknown
// format version is an error. Entries with an unknown type code are skipped;
// their value is taken to be length-prefixed like an opaque value.
func DecodeProperties(b []byte) (map[string]interface{}, error) {
	if len(b) == 0 {
		return nil, nil
	}
	r := &propReader{b: b}
	hdr, err := r.next(8)
	if err != nil {
		return nil, err
	}
	if ver := int32(EncByteOrder.Uint32(hdr)); ver != propertiesVersion1 {
		return nil, &DecodeError{Section: "properties", Offset: 0,
			Err: fmt.Errorf("unsupported properties version %d", ver)}
	}
	count := int(int32(EncByteOrder.Uint32(hdr[4:])))
	if count < 0 {
		return nil, &DecodeError{Section: "properties", Offset: 4, Err: fmt.Errorf("negative count %d", count)}
	}
	if limit := (len(b) - 8) / minPropertyEntrySize; count > limit {
		return nil, &DecodeError{Section: "properties", Offset: 4,
			Err: fmt.Errorf("count %d does not fit in %d bytes: %w", count, len(b)-8, io.ErrUnexpectedEOF)}
	}

	props := make(map[string]interface{}, count)
	for i := 0; i < count; i++ {
		key, err := r.utf()
		if err != nil {
			return props, err
		}
		tb, err := r.next(2)
		if err != nil {
			return props, err
		}
		typ := EncByteOrder.Uint16(tb)
		var v []byte
		switch typ {
		case propBoolean, propByte:
			v, err = r.next(1)
		case propShort:
			v, err = r.next(2)
		case propInteger, propFloat:
			v, err = r.next(4)
		case propLong, propDouble:
			v, err = r.next(8)
		case propString:
			var s string
			if s, err = r.utf(); err != nil {
				return props, err
			}
			props[key] = s
			continue
		default:
			var lb []byte
			if lb, err = r.next(4); err == nil {
				v, err = r.next(int(int32(EncByteOrder.Uint32(lb))))
			}
		}
		if err != nil {
			return props, err
		}

		switch typ {
		case propBoolean:
			props[key] = v[0] != 0
		case propByte:
			props[key] = int8(v[0])
		case propShort:
			props[key] = int16(EncByteOrder.Uint16(v))
		case propInteger:
			props[key] = int32(EncByteOrder.Uint32(v))
		case propFloat:
			props[key] = math.Float32frombits(EncByteOrder.Uint32(v))
		case propLong:
			props[key] = int64(EncByteOrder.Uint64(v))
		case propDouble:
			props[key] = math.Float64frombits(EncByteOrder.Uint64(v))
		case propObject:
			props[key] = Opaque(append([]byte(nil), v...))
		default:
			glog.Warningf("properties: skipping %q with unknown type code %d", key, typ)
		}
	}
	return props, nil
}
