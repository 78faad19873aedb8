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

package capt

import (
	"errors"
	"fmt"
	"io"
	"os"

	"mqwire/pkg/capture"
	"mqwire/pkg/cmd"
	"mqwire/pkg/config"
	"mqwire/pkg/util"
)

type cmdDumpT struct {
	cmd.Command
	file    string
	verbose bool
	hex     bool
	limit   int
}

func (c *cmdDumpT) Init(name string, desc string) {
	c.Command.Init(name, desc)
	c.BoolOption(&c.verbose, "v|verbose", false, "print every header field instead of one line per packet")
	c.BoolOption(&c.hex, "x|hex", false, "hex dump each record")
	c.IntOption(&c.limit, "l|limit", 0, "stop after this many records. 0 means all")
	c.SetSynopsis("[-v] [-x] <capture-file>")
}

func (c *cmdDumpT) Parse(args []string) (err error) {
	if err = c.Command.Parse(args); err != nil {
		return
	}
	if c.NArg() < 1 {
		return fmt.Errorf("missing capture file")
	}
	c.file = c.Arg(0)
	return
}

func (c *cmdDumpT) Exec() error {
	f, err := os.Open(c.file)
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := capture.NewReader(f, config.Conf.Capture)
	if err != nil {
		return err
	}
	defer r.Close()
	created, _ := r.Created()
	fmt.Printf("session %s codec %s created %s\n\n", r.Session(), r.Codec(), created.Format("2006-01-02 15:04:05.000"))

	ctx := config.Conf.NewContext()
	for i := 0; c.limit <= 0 || i < c.limit; i++ {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if c.hex {
			util.HexDump(os.Stdout, rec.Data)
		}
		if rec.IsGPacket() {
			g, err := rec.GPacket(ctx)
			if err != nil {
				fmt.Printf("%6d * %s\n", i, err)
				continue
			}
			if c.verbose {
				g.Dump(os.Stdout)
			} else {
				fmt.Printf("%6d G %s size=%d payload=%q\n", i, g, g.Size(), bodyPreview(g.Payload()))
			}
			g.Destroy()
			continue
		}
		p, err := rec.Packet(ctx)
		if err != nil {
			fmt.Printf("%6d * %s\n", i, err)
			continue
		}
		if c.verbose {
			p.Dump(os.Stdout)
			fmt.Println()
		} else {
			fmt.Printf("%6d P %s dest=%s size=%d body=%q\n", i, p, p.Destination(), p.Size(), bodyPreview(p.Body()))
		}
		p.Destroy()
	}
	return nil
}

const maxPreview = 32

func bodyPreview(b []byte) string {
	if len(b) > maxPreview {
		return util.ToPrintableString(b[:maxPreview]) + "..."
	}
	return util.ToPrintableString(b)
}
