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
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"

	"mqwire/pkg/capture"
	"mqwire/pkg/cmd"
	"mqwire/pkg/config"
	"mqwire/pkg/proto"
	"mqwire/pkg/util"
)

type cmdGenT struct {
	cmd.Command
	output   string
	codec    string
	count    int
	gcount   int
	bodySize int
	dest     string
	seed     int64
	props    util.StringListFlags
}

func (c *cmdGenT) Init(name string, desc string) {
	c.Command.Init(name, desc)
	c.StringOption(&c.output, "o|output", "packets.mqwc", "capture file to create")
	c.StringOption(&c.codec, "codec", "", "none, snappy, s2, zstd or lz4. Defaults to the configured codec")
	c.IntOption(&c.count, "n|count", 100, "number of message packets")
	c.IntOption(&c.gcount, "g|generic", 0, "number of generic packets")
	c.IntOption(&c.bodySize, "s|size", 256, "maximum body size in bytes")
	c.StringOption(&c.dest, "d|dest", "mq.test", "destination name")
	c.Int64Option(&c.seed, "seed", 0, "random seed. 0 uses the clock")
	c.ValueOption(&c.props, "p|prop", "string property key=value added to every message. May repeat")
	c.AddExample("mqwirecli gen -n 1000 -codec zstd -o /tmp/t.mqwc", "write 1000 synthetic messages")
}

var genTypes = []proto.PacketType{
	proto.PacketTypeTextMessage,
	proto.PacketTypeBytesMessage,
	proto.PacketTypeMapMessage,
	proto.PacketTypeMessage,
}

func (c *cmdGenT) Exec() (err error) {
	conf := config.Conf.Capture
	if c.codec != "" {
		conf.Codec = c.codec
	}
	seed := c.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rnd := rand.New(rand.NewSource(seed))

	f, err := os.Create(c.output)
	if err != nil {
		return
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	extra, err := c.props.KeyValues()
	if err != nil {
		return
	}
	w, err := capture.NewWriter(f, conf)
	if err != nil {
		return
	}

	ctx := config.Conf.NewContext()
	pool := config.Conf.NewPacketPool(ctx)
	for i := 0; i < c.count; i++ {
		p := pool.Get()
		p.SetType(genTypes[rnd.Intn(len(genTypes))])
		p.SetDestination(c.dest)
		p.SetCorrelationID(fmt.Sprintf("gen-%d", i))
		p.SetFlag(proto.FlagPersistent, rnd.Intn(2) == 0)
		p.SetProperty("index", int32(i))
		p.SetProperty("seed", seed)
		for k, v := range extra {
			p.SetProperty(k, v)
		}
		p.SetBody(randomBody(rnd, c.bodySize))
		err = w.WritePacket(p)
		pool.Put(p)
		if err != nil {
			return
		}
	}
	for i := 0; i < c.gcount; i++ {
		g := proto.NewGPacket(ctx)
		g.SetType(uint16(rnd.Intn(16)))
		g.SetBit(proto.GBitA, true)
		g.SetProperty("index", int32(i))
		g.SetPayload(randomBody(rnd, c.bodySize))
		err = w.WriteGPacket(g)
		g.Destroy()
		if err != nil {
			return
		}
	}
	if err = w.Close(); err != nil {
		return
	}
	st := w.Stats()
	glog.Infof("wrote %d records to %s: codec=%s raw=%d stored=%d ratio=%.2f session=%s",
		st.Records, c.output, w.Codec(), st.RawBytes, st.StoredBytes, st.Ratio(), w.Session())
	fmt.Printf("%d records, %d raw bytes, %d stored (%s)\n", st.Records, st.RawBytes, st.StoredBytes, w.Codec())
	return
}

func randomBody(rnd *rand.Rand, max int) []byte {
	if max <= 0 {
		return nil
	}
	words := []string{"order", "quote", "fill", "cancel", "ack", "price", "qty"}
	var b strings.Builder
	n := rnd.Intn(max + 1)
	for b.Len() < n {
		b.WriteString(words[rnd.Intn(len(words))])
		b.WriteByte(' ')
	}
	return []byte(b.String()[:n])
}

func init() {
	c := &cmdGenT{}
	c.Init("gen", "write synthetic packets to a capture file")

	d := &cmdDumpT{}
	d.Init("dump", "print the packets in a capture file")

	cmd.RegisterNewGroup("capture", c, d)
}
