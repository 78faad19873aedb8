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
	"unicode/utf8"
)

const maxUTFLength = 0xFFFF

// appendUTF appends s as a u16 length followed by modified UTF-8: NUL is
// written as C0 80 and supplementary characters as surrogate pairs, which is
// what the peers' DataInput.readUTF expects.
func appendUTF(b []byte, s string) ([]byte, error) {
	lenOff := len(b)
	b = append(b, 0, 0)
	for _, r := range s {
		switch {
		case r == 0:
			b = append(b, 0xC0, 0x80)
		case r < 0x80:
			b = append(b, byte(r))
		case r < 0x800:
			b = append(b, byte(0xC0|r>>6), byte(0x80|r&0x3F))
		case r < 0x10000:
			b = appendUTF3(b, r)
		default:
			r -= 0x10000
			b = appendUTF3(b, 0xD800+(r>>10))
			b = appendUTF3(b, 0xDC00+(r&0x3FF))
		}
	}
	n := len(b) - lenOff - 2
	if n > maxUTFLength {
		return b[:lenOff], ErrStringTooLong
	}
	EncByteOrder.PutUint16(b[lenOff:], uint16(n))
	return b, nil
}

func appendUTF3(b []byte, r rune) []byte {
	return append(b, byte(0xE0|r>>12), byte(0x80|(r>>6)&0x3F), byte(0x80|r&0x3F))
}

// decodeUTF decodes modified UTF-8. Plain UTF-8 is accepted as well. It
// returns false on malformed input or unpaired surrogates.
func decodeUTF(b []byte) (string, bool) {
	if utf8.Valid(b) {
		return string(b), true
	}
	out := make([]rune, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			out = append(out, rune(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", false
			}
			out = append(out, rune(c&0x1F)<<6|rune(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", false
			}
			out = append(out, rune(c&0x0F)<<12|rune(b[i+1]&0x3F)<<6|rune(b[i+2]&0x3F))
			i += 3
		case c&0xF8 == 0xF0:
			r, sz := utf8.DecodeRune(b[i:])
			if r == utf8.RuneError {
				return "", false
			}
			out = append(out, r)
			i += sz
		default:
			return "", false
		}
	}
	res := make([]rune, 0, len(out))
	for i := 0; i < len(out); i++ {
		r := out[i]
		if r >= 0xD800 && r < 0xDC00 {
			if i+1 >= len(out) || out[i+1] < 0xDC00 || out[i+1] > 0xDFFF {
				return "", false
			}
			r = 0x10000 + (r-0xD800)<<10 + (out[i+1] - 0xDC00)
			i++
		} else if r >= 0xDC00 && r <= 0xDFFF {
			return "", false
		}
		res = append(res, r)
	}
	return string(res), true
}
