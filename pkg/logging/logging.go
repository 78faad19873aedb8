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

// Package logging sets up glog levels and provides key/value log line helpers.
package logging

import (
	"bytes"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang/glog"
)

var (
	LOG_ERROR   glog.Verbose = true
	LOG_WARN    glog.Verbose = true
	LOG_INFO    glog.Verbose = true
	LOG_DEBUG   glog.Verbose = false
	LOG_VERBOSE glog.Verbose = false
)

// InitLogging maps a level name (error, warning, info, debug, verbose) onto
// glog's -v flag and logs to stderr.
func InitLogging(level string, appName string) {
	if f := flag.Lookup("logtostderr"); f != nil {
		f.Value.Set("true")
	}

	var glevel string

	if strings.EqualFold("error", level) {
		glevel = "1"
	} else if strings.EqualFold("warning", level) {
		glevel = "2"
	} else if strings.EqualFold("debug", level) {
		glevel = "4"
	} else if strings.EqualFold("verbose", level) {
		glevel = "5"
	} else { //default is info
		glevel = "3"
	}

	if f := flag.Lookup("v"); f != nil {
		f.Value.Set(glevel)
	}

	LOG_ERROR = glog.V(1)
	LOG_WARN = glog.V(2)
	LOG_INFO = glog.V(3)
	LOG_DEBUG = glog.V(4)
	LOG_VERBOSE = glog.V(5)

	if LOG_DEBUG {
		glog.Infof("%s: logging at level %s", appName, level)
	}
}

func Debugf(format string, args ...interface{}) {
	if LOG_DEBUG {
		glog.InfoDepth(1, fmt.Sprintf(format, args...))
	}
}

func DebugDepth(depth int, args ...interface{}) {
	if LOG_DEBUG {
		glog.InfoDepth(depth+1, args...)
	}
}

type KeyValueBuffer struct {
	bytes.Buffer
	delimiter     byte
	pairDelimiter byte
}

func NewKVBufferForLog() *KeyValueBuffer {
	b := &KeyValueBuffer{
		delimiter:     '=',
		pairDelimiter: ',',
	}
	return b
}

func (b *KeyValueBuffer) Add(key string, value string) *KeyValueBuffer {
	if b.Len() > 0 {
		b.WriteByte(b.pairDelimiter)
	}
	b.WriteString(key)
	b.WriteByte(b.delimiter)
	b.WriteString(value)
	return b
}

func (b *KeyValueBuffer) AddInt(key string, value int) *KeyValueBuffer {
	return b.Add(key, strconv.Itoa(value))
}

func (b *KeyValueBuffer) AddInt64(key string, value int64) *KeyValueBuffer {
	return b.Add(key, strconv.FormatInt(value, 10))
}

func (b *KeyValueBuffer) AddUInt64(key string, value uint64) *KeyValueBuffer {
	return b.Add(key, strconv.FormatUint(value, 10))
}

func (b *KeyValueBuffer) AddHex(key string, value []byte) *KeyValueBuffer {
	return b.Add(key, fmt.Sprintf("%X", value))
}

func (b *KeyValueBuffer) AddError(err error) *KeyValueBuffer {
	if err == nil {
		return b
	}
	return b.Add("err", err.Error())
}
