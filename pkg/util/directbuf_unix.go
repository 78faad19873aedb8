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

//go:build unix

package util

import (
	"runtime"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"
)

// allocDirect maps an anonymous region outside the Go heap. The mapping is
// removed when the owning slab becomes unreachable.
func allocDirect(s *slab, size int) []byte {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		glog.Warningf("mmap of %d bytes failed, using heap: %s", size, err)
		return make([]byte, size)
	}
	runtime.SetFinalizer(s, func(s *slab) {
		if err := unix.Munmap(s.mem); err != nil {
			glog.Errorf("munmap: %s", err)
		}
	})
	return mem
}
