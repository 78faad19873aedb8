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
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"text/template"

	"github.com/golang/glog"

	"mqwire/pkg/config"
	"mqwire/pkg/logging"
	"mqwire/pkg/version"
)

var (
	commands           = make(map[string]ICommand)
	groups             = make(map[string]*Group)
	notGroupedCommands []ICommand
)

var usageTemplate = template.Must(template.New("cmd-usage").Parse(`
NAME
	{{.GetName}}{{if .GetDesc}} - {{.GetDesc}}{{end}}

SYNOPSIS
	{{.GetName}} {{if .GetSynopsis}}{{.GetSynopsis}}{{else}}[<args>]{{end}}
{{if .GetOptionDesc}}
OPTION
{{.GetOptionDesc}}
{{end}}
{{if .GetDetails}}DESCRIPTION
{{.GetDetails}}
{{end}}
{{if .GetExample}}EXAMPLE
{{.GetExample}}
{{end}}
`))

type (
	ICommand interface {
		GetName() string
		GetDesc() string //get short description
		GetSynopsis() string
		GetDetails() string
		GetOptionDesc() string
		GetExample() string
		AddExample(cmdExample string, desc string)
		AddDetails(txt string)
		Init(name string, desc string)
		Exec() error
		Parse(args []string) error
		PrintUsage()
	}

	// Command carries the options every command shares: a config file, the
	// log level and glog's vmodule.
	Command struct {
		Option
		name        string
		desc        string
		synopsis    string
		details     string
		examples    string
		optConfig   string
		optLogLevel string
		optVModule  string
	}

	Group struct {
		cmds []ICommand
		name string
	}
)

func (c *Command) Init(name string, desc string) {
	c.name = name
	c.desc = desc
	c.Option.Init(name, flag.ContinueOnError)
	c.StringOption(&c.optConfig, "c|config", "", "TOML config file")
	c.StringOption(&c.optLogLevel, "log-level", "", "error, warning, info, debug or verbose. Overrides the config file")
	c.StringVar(&c.optVModule, "vmodule", "", "comma-separated list of pattern=N settings for file-filtered logging")
	c.Option.Usage = c.PrintUsage
}

func (c *Command) SetSynopsis(str string) {
	c.synopsis = str
}

func (c *Command) GetName() string {
	return c.name
}

func (c *Command) GetDesc() string {
	return c.desc
}

func (c *Command) GetSynopsis() string {
	return c.synopsis
}

func (c *Command) GetDetails() string {
	return c.details
}

func (c *Command) GetExample() string {
	return c.examples
}

func (c *Command) AddExample(cmdExample string, desc string) {
	c.examples += desc + "\n\t\t" + cmdExample + "\n\n"
}

func (c *Command) AddDetails(txt string) {
	c.details += txt
}

func (c *Command) Write(w io.Writer) {
	wo := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := usageTemplate.Execute(wo, c); err != nil {
		fmt.Fprintln(w, err)
	}
	wo.Flush()
}

func (c *Command) PrintUsage() {
	less := exec.Command("less")
	var buf bytes.Buffer
	c.Write(&buf)
	less.Stdin = &buf
	less.Stdout = os.Stdout
	if err := less.Run(); err != nil {
		c.Write(os.Stdout)
	}
}

// Parse parses the shared options, loads the config file if one was given and
// initializes logging.
func (c *Command) Parse(arguments []string) (err error) {
	if err = c.Option.Parse(arguments); err != nil {
		return
	}
	if c.optConfig != "" {
		if err = config.LoadConfig(c.optConfig); err != nil {
			return fmt.Errorf("load %s: %w", c.optConfig, err)
		}
	}
	if c.optLogLevel != "" {
		config.Conf.LogLevel = c.optLogLevel
	}
	logging.InitLogging(config.Conf.LogLevel, c.name)
	if c.optVModule != "" {
		if err = flag.Set("vmodule", c.optVModule); err != nil {
			glog.Warningf("vmodule: %s", err)
			err = nil
		}
	}
	return
}

func (c *Command) Exec() error {
	return fmt.Errorf("command %s not implemented", c.name)
}

func RegisterNewGroup(name string, cmds ...ICommand) (grp *Group) {
	if _, grpFound := groups[name]; grpFound {
		glog.Warningf("group %s has been registered", name)
		return
	}
	grp = &Group{name: name}
	for _, c := range cmds {
		if register(c) {
			grp.cmds = append(grp.cmds, c)
		}
	}
	groups[name] = grp
	return
}

func Register(c ICommand) bool {
	if register(c) {
		notGroupedCommands = append(notGroupedCommands, c)
		return true
	}
	return false
}

func register(c ICommand) bool {
	if _, found := commands[c.GetName()]; found {
		glog.Warningf("command %s has been registered", c.GetName())
		return false
	}
	commands[c.GetName()] = c
	return true
}

func GetCommand(name string) ICommand {
	if cmd, ok := commands[name]; ok {
		return cmd
	}
	return nil
}

// ParseArgs finds the first registered command name in args. Options before
// the name are passed to the command along with those after it.
func ParseArgs(argv []string) (cmd ICommand, args []string) {
	for i, arg := range argv {
		if cmd = GetCommand(arg); cmd != nil {
			args = append(args, argv[i+1:]...)
			return
		}
		args = append(args, arg)
	}
	return nil, args
}

func ParseCommandLine() (cmd ICommand, args []string) {
	return ParseArgs(os.Args[1:])
}

func Write(w io.Writer) {
	progName := filepath.Base(os.Args[0])
	fmt.Fprintf(w, "\nUSAGE\n  %s [-version] [[options] <command> [<args>]] \n\n", progName)
	WriteCommand(w)
}

func WriteCommand(w io.Writer) {
	if len(groups)+len(notGroupedCommands) == 0 {
		return
	}
	fmt.Fprintln(w, "\nCOMMAND")

	names := make([]string, 0, len(groups))
	for n := range groups {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, "  %s\n", n)
		for _, c := range groups[n].cmds {
			fmt.Fprintf(w, "    * %s\n      %s\n", c.GetName(), c.GetDesc())
		}
	}
	if len(notGroupedCommands) != 0 {
		if len(groups) != 0 {
			fmt.Fprintln(w, "  others")
		}
		for _, c := range notGroupedCommands {
			fmt.Fprintf(w, "    * %s\n      %s\n", c.GetName(), c.GetDesc())
		}
	}
}

func PrintUsage() {
	less := exec.Command("less")
	var buf bytes.Buffer
	Write(&buf)
	less.Stdin = &buf
	less.Stdout = os.Stdout
	if err := less.Run(); err != nil {
		Write(os.Stdout)
	}
}

func PrintVersionOrUsage() {
	var option Option
	var displayVersion bool
	option.Init("", flag.ContinueOnError)
	option.BoolOption(&displayVersion, "version", false, "display version info.")
	option.Usage = PrintUsage
	if err := option.Parse(os.Args[1:]); err == nil {
		if displayVersion {
			version.PrintVersionInfo()
		} else {
			PrintUsage()
		}
	}
}
