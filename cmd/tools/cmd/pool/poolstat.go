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

package pool

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"mqwire/pkg/cmd"
	"mqwire/pkg/config"
	"mqwire/pkg/logging/otel"
	"mqwire/pkg/util"
)

type cmdPoolStatT struct {
	cmd.Command
	requests int
	minSize  int
	maxSize  int
	window   int
	direct   bool
	seed     int64
}

func (c *cmdPoolStatT) Init(name string, desc string) {
	c.Command.Init(name, desc)
	c.IntOption(&c.requests, "n|requests", 100000, "number of acquisitions")
	c.IntOption(&c.minSize, "min", 64, "smallest requested size")
	c.IntOption(&c.maxSize, "max", 16*1024, "largest requested size")
	c.IntOption(&c.window, "w|window", 64, "buffers held at once before the oldest is released")
	c.BoolOption(&c.direct, "direct", false, "use direct (off heap) buffers")
	c.Int64Option(&c.seed, "seed", 0, "random seed. 0 uses the clock")
	c.AddDetails("  Sizes follow a log-uniform distribution between -min and -max.\n")
}

func (c *cmdPoolStatT) Exec() error {
	if c.minSize <= 0 || c.maxSize < c.minSize {
		return fmt.Errorf("invalid size range [%d, %d]", c.minSize, c.maxSize)
	}
	if c.window <= 0 {
		c.window = 1
	}
	conf := config.Conf.BufferPool
	if c.direct {
		conf.UseDirect = true
	}
	bp := util.NewBufferPool(conf)
	if err := otel.RegisterBufferPool("poolstat", bp); err != nil {
		return err
	}

	seed := c.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rnd := rand.New(rand.NewSource(seed))
	held := make([]*util.Buffer, 0, c.window)
	start := time.Now()
	for i := 0; i < c.requests; i++ {
		if len(held) == c.window {
			held[0].Release()
			held = append(held[:0], held[1:]...)
		}
		held = append(held, bp.Acquire(logUniform(rnd, c.minSize, c.maxSize)))
	}
	for _, b := range held {
		b.Release()
	}
	elapsed := time.Since(start)

	st := bp.Stats()
	fmt.Printf("%d acquisitions in %s (%.0f ns/op)\n", c.requests, elapsed, float64(elapsed.Nanoseconds())/float64(c.requests))
	fmt.Printf("%s\n\n", bp)
	fmt.Printf("hit ratio     %.3f\n", st.Utilization())
	fmt.Printf("request size  p50=%d p90=%d p99=%d\n",
		bp.RequestSizeQuantile(0.5), bp.RequestSizeQuantile(0.9), bp.RequestSizeQuantile(0.99))
	fmt.Printf("free lists    %s\n", bp.Contents())
	return nil
}

func logUniform(rnd *rand.Rand, min, max int) int {
	if min == max {
		return min
	}
	lo, hi := float64(min), float64(max)
	return int(lo * math.Pow(hi/lo, rnd.Float64()))
}

func init() {
	c := &cmdPoolStatT{}
	c.Init("poolstat", "exercise a buffer pool and print its accounting")

	cmd.Register(c)
}
