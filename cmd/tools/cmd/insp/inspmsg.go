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

package insp

import (
	"bytes"
	"fmt"
	"os"

	"mqwire/pkg/cmd"
	"mqwire/pkg/config"
	"mqwire/pkg/proto"
	"mqwire/pkg/util"
)

type cmdInspMsgT struct {
	cmd.Command
	generic bool
	msg     []byte
}

func (c *cmdInspMsgT) Init(name string, desc string) {
	c.Command.Init(name, desc)
	c.BoolOption(&c.generic, "g|generic", false, "decode as a generic packet")
	c.SetSynopsis("[-g] <hex-string>")
	c.AddExample("mqwirecli inspect 1C0FEBC2012D...", "decode a packet captured as hex")
}

func (c *cmdInspMsgT) Parse(args []string) (err error) {
	if err = c.Command.Parse(args); err != nil {
		return
	}
	if c.NArg() < 1 {
		err = fmt.Errorf("missing hex msg")
		return
	}
	c.msg, err = util.FromHexString(c.Arg(0))
	return
}

func (c *cmdInspMsgT) Exec() error {
	util.HexDump(os.Stdout, c.msg)
	fmt.Println()
	ctx := config.Conf.NewContext()

	if c.generic {
		g := proto.NewGPacket(ctx)
		defer g.Destroy()
		if _, err := g.Read(bytes.NewReader(c.msg)); err != nil {
			return err
		}
		g.Dump(os.Stdout)
		return nil
	}

	p := proto.NewPacket(ctx)
	defer p.Destroy()
	n, done, err := p.ReadBuffer(c.msg)
	if err != nil {
		return err
	}
	if !done {
		return fmt.Errorf("incomplete packet after %d bytes", n)
	}
	if err = p.Validate(); err != nil {
		fmt.Printf("* %s\n", err)
	}
	p.Dump(os.Stdout)
	if n < len(c.msg) {
		fmt.Printf("\n%d trailing bytes\n", len(c.msg)-n)
	}
	return nil
}

func init() {
	c := &cmdInspMsgT{}
	c.Init("inspect", "decode a hex encoded packet and print its fields")

	cmd.Register(c)
}
