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

package cmd

import (
	"flag"
	"fmt"
	"strings"
)

type (
	Option struct {
		flag.FlagSet
		optsDesc string
	}
)

// addOption registers each '|' separated alias of name through define and
// records one usage entry for all of them.
func (o *Option) addOption(name string, kind string, def string, usage string, define func(n string)) {
	if name == "" {
		return
	}
	var opts []string
	for _, n := range strings.Split(name, "|") {
		if n != "" {
			define(n)
			opts = append(opts, "-"+n)
		}
	}
	head := strings.Join(opts, ", ")
	if kind != "" {
		head += " " + kind
	}
	if def != "" {
		o.optsDesc += fmt.Sprintf("  %s\n    \t(default %s)\n    \t%s\n\n", head, def, usage)
	} else {
		o.optsDesc += fmt.Sprintf("  %s\n    \t%s\n\n", head, usage)
	}
}

func (o *Option) ValueOption(value flag.Value, name string, usage string) {
	o.addOption(name, "value", "", usage, func(n string) { o.Var(value, n, "") })
}

func (o *Option) StringOption(p *string, name string, value string, usage string) {
	o.addOption(name, "string", fmt.Sprintf("%q", value), usage, func(n string) { o.StringVar(p, n, value, "") })
}

func (o *Option) BoolOption(p *bool, name string, value bool, usage string) {
	o.addOption(name, "", fmt.Sprint(value), usage, func(n string) { o.BoolVar(p, n, value, "") })
}

func (o *Option) UintOption(p *uint, name string, value uint, usage string) {
	o.addOption(name, "uint", fmt.Sprint(value), usage, func(n string) { o.UintVar(p, n, value, "") })
}

func (o *Option) IntOption(p *int, name string, value int, usage string) {
	o.addOption(name, "int", fmt.Sprint(value), usage, func(n string) { o.IntVar(p, n, value, "") })
}

func (o *Option) Int64Option(p *int64, name string, value int64, usage string) {
	o.addOption(name, "int", fmt.Sprint(value), usage, func(n string) { o.Int64Var(p, n, value, "") })
}

func (o *Option) GetOptionDesc() string {
	return o.optsDesc
}
