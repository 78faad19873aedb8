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
	"fmt"
	"strings"
)

// StringListFlags collects a repeated command line option.
type StringListFlags []string

func (l *StringListFlags) String() string {
	return strings.Join(*l, ",")
}

func (l *StringListFlags) Set(value string) error {
	*l = append(*l, value)
	return nil
}

// KeyValues splits each entry at the first '='.
func (l StringListFlags) KeyValues() (map[string]string, error) {
	m := make(map[string]string, len(l))
	for _, s := range l {
		k, v, ok := strings.Cut(s, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%q is not key=value", s)
		}
		m[k] = v
	}
	return m, nil
}
