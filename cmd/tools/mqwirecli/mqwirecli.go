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

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/golang/glog"

	_ "mqwire/cmd/tools/cmd/capt"
	_ "mqwire/cmd/tools/cmd/insp"
	_ "mqwire/cmd/tools/cmd/pool"
	"mqwire/pkg/cmd"
	"mqwire/pkg/config"
	"mqwire/pkg/logging/otel"
)

func main() {
	status := 0
	if command, args := cmd.ParseCommandLine(); command != nil {
		if err := command.Parse(args); err == nil {
			if err = otel.InitMetricProvider(&config.Conf.Otel); err != nil {
				glog.Warningf("metrics disabled: %s", err)
			}
			if err = command.Exec(); err != nil {
				fmt.Printf("* command '%s' failed. %s\n", command.GetName(), err)
				status = 1
			}
		} else {
			fmt.Printf("* command '%s' failed. %s\n", command.GetName(), err)
			status = 2
		}
	} else {
		cmd.PrintVersionOrUsage()
	}
	if otel.IsEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		otel.Shutdown(ctx)
		cancel()
	}
	glog.Flush()
	os.Exit(status)
}
