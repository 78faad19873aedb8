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
	"io"
	"net"
)

const maxRegions = 4

// regions treats up to four byte slices as one ordered byte sequence for
// partial transfers. Empty slices are dropped. A transfer moves on to the
// next slice only once the current one is full (read) or drained (write).
type regions struct {
	bufs [maxRegions][]byte
	n    int
	idx  int
	off  int
}

func (r *regions) reset(bufs ...[]byte) {
	*r = regions{}
	for _, b := range bufs {
		if len(b) != 0 {
			r.bufs[r.n] = b
			r.n++
		}
	}
}

func (r *regions) done() bool {
	return r.idx >= r.n
}

func (r *regions) remaining() (n int) {
	for i := r.idx; i < r.n; i++ {
		n += len(r.bufs[i])
	}
	return n - r.off
}

func (r *regions) current() []byte {
	return r.bufs[r.idx][r.off:]
}

func (r *regions) advance(m int) {
	r.off += m
	for r.idx < r.n && r.off >= len(r.bufs[r.idx]) {
		r.off -= len(r.bufs[r.idx])
		r.idx++
	}
}

// readFrom fills the regions from a non-blocking source. It returns when the
// regions are full, the source makes no progress, or the source fails.
func (r *regions) readFrom(src io.Reader) (n int, err error) {
	for !r.done() {
		var m int
		m, err = src.Read(r.current())
		if m > 0 {
			n += m
			r.advance(m)
		}
		if err != nil {
			if err == io.EOF && r.done() {
				err = nil
			}
			return
		}
		if m == 0 {
			return
		}
	}
	return
}

// readFull fills the regions from a blocking source.
func (r *regions) readFull(src io.Reader) (n int, err error) {
	for !r.done() {
		var m int
		m, err = io.ReadFull(src, r.current())
		n += m
		r.advance(m)
		if err != nil {
			return
		}
	}
	return
}

// writeTo drains the regions into a non-blocking sink. A write that moves
// zero bytes without error means the sink is full.
func (r *regions) writeTo(dst io.Writer) (n int, err error) {
	for !r.done() {
		var m int
		m, err = dst.Write(r.current())
		if m > 0 {
			n += m
			r.advance(m)
		}
		if err != nil || m == 0 {
			return
		}
	}
	return
}

// pending returns the untransferred bytes for a vectored write.
func (r *regions) pending() net.Buffers {
	if r.done() {
		return nil
	}
	bufs := make(net.Buffers, 0, r.n-r.idx)
	bufs = append(bufs, r.current())
	for i := r.idx + 1; i < r.n; i++ {
		bufs = append(bufs, r.bufs[i])
	}
	return bufs
}
