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
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const (
	CodecNone CodecType = iota
	CodecSnappy
	CodecS2
	CodecZstd
	CodecLZ4
)

type CodecType uint8

var (
	ErrUnsupportedCodec = errors.New("unsupported capture codec")

	codecNames = [...]string{"none", "snappy", "s2", "zstd", "lz4"}
)

func (t CodecType) String() string {
	if int(t) < len(codecNames) {
		return codecNames[t]
	}
	return fmt.Sprintf("codec(%d)", uint8(t))
}

func (t CodecType) valid() bool {
	return int(t) < len(codecNames)
}

func ParseCodec(name string) (CodecType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return CodecNone, nil
	}
	for i, n := range codecNames {
		if n == name {
			return CodecType(i), nil
		}
	}
	return CodecNone, fmt.Errorf("%w: %q", ErrUnsupportedCodec, name)
}

var zstdEncoderPool = sync.Pool{
	New: func() any {
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderCRC(false))
		if err != nil {
			panic(fmt.Sprintf("zstd encoder: %v", err))
		}
		return enc
	},
}

var zstdDecoderPool = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("zstd decoder: %v", err))
		}
		return dec
	},
}

var lz4CompressorPool = sync.Pool{
	New: func() any {
		return &lz4.Compressor{}
	},
}

// compress returns the stored form of raw. For lz4 a block that does not
// shrink is returned as nil so the caller stores raw bytes instead.
func (t CodecType) compress(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	switch t {
	case CodecNone:
		return raw, nil
	case CodecSnappy:
		return snappy.Encode(nil, raw), nil
	case CodecS2:
		return s2.Encode(nil, raw), nil
	case CodecZstd:
		enc := zstdEncoderPool.Get().(*zstd.Encoder)
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(raw, nil), nil
	case CodecLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		c := lz4CompressorPool.Get().(*lz4.Compressor)
		defer lz4CompressorPool.Put(c)
		n, err := c.CompressBlock(raw, dst)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
		return dst[:n], nil
	}
	return nil, ErrUnsupportedCodec
}

func (t CodecType) decompress(stored []byte, rawLen int) (raw []byte, err error) {
	if rawLen == 0 {
		return nil, nil
	}
	switch t {
	case CodecNone:
		raw = stored
	case CodecSnappy:
		raw, err = snappy.Decode(make([]byte, rawLen), stored)
	case CodecS2:
		raw, err = s2.Decode(make([]byte, rawLen), stored)
	case CodecZstd:
		dec := zstdDecoderPool.Get().(*zstd.Decoder)
		defer zstdDecoderPool.Put(dec)
		raw, err = dec.DecodeAll(stored, make([]byte, 0, rawLen))
	case CodecLZ4:
		raw = make([]byte, rawLen)
		var n int
		if n, err = lz4.UncompressBlock(stored, raw); err == nil {
			raw = raw[:n]
		}
	default:
		return nil, ErrUnsupportedCodec
	}
	if err != nil {
		return nil, fmt.Errorf("%s decompress: %w", t, err)
	}
	if len(raw) != rawLen {
		return nil, fmt.Errorf("%s decompress: got %d bytes, want %d", t, len(raw), rawLen)
	}
	return raw, nil
}
