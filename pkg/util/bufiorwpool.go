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

package util

import (
	"bufio"
	"io"
	"sync"
)

// Pools are kept per buffer size so a caller never gets a smaller buffer than
// it asked for.
var (
	bufioReaderPools sync.Map
	bufioWriterPools sync.Map
)

func poolForSize(m *sync.Map, size int) *sync.Pool {
	if p, ok := m.Load(size); ok {
		return p.(*sync.Pool)
	}
	p, _ := m.LoadOrStore(size, &sync.Pool{})
	return p.(*sync.Pool)
}

func NewBufioReader(r io.Reader, bufSize int) *bufio.Reader {
	if v := poolForSize(&bufioReaderPools, bufSize).Get(); v != nil {
		br := v.(*bufio.Reader)
		br.Reset(r)
		return br
	}
	return bufio.NewReaderSize(r, bufSize)
}

func PutBufioReader(br *bufio.Reader) {
	br.Reset(nil)
	poolForSize(&bufioReaderPools, br.Size()).Put(br)
}

func NewBufioWriter(w io.Writer, bufSize int) *bufio.Writer {
	if v := poolForSize(&bufioWriterPools, bufSize).Get(); v != nil {
		bw := v.(*bufio.Writer)
		bw.Reset(w)
		return bw
	}
	return bufio.NewWriterSize(w, bufSize)
}

// PutBufioWriter drops any unflushed bytes.
func PutBufioWriter(bw *bufio.Writer) {
	bw.Reset(nil)
	poolForSize(&bufioWriterPools, bw.Size()).Put(bw)
}
