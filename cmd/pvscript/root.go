/*
 * Copyright 2024 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/rulego/pvscript/api/types"
	"github.com/rulego/pvscript/widget"
)

// rootOptions holds the flags shared by all commands.
type rootOptions struct {
	Debug   bool
	Timeout time.Duration
	Macros  map[string]string
	Mqtt    types.MqttConfig
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "pvscript",
		Short: "Run widget scripts and rules against live points",
		Long: `pvscript loads display definitions (JSON or YAML), binds every widget
script and rule to its points and runs them whenever a trigger point changes.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.BoolVar(&opts.Debug, "debug", false, "log scheduling details")
	flags.DurationVar(&opts.Timeout, "timeout", 0, "max execution time of one script run, 0 is unlimited")
	flags.StringToStringVarP(&opts.Macros, "macro", "m", nil, "global macro NAME=VALUE, repeatable")
	flags.StringVar(&opts.Mqtt.Server, "mqtt", "", "MQTT broker for mqtt:// points, e.g. tcp://127.0.0.1:1883")
	flags.StringVar(&opts.Mqtt.Username, "mqtt-user", "", "MQTT user name")
	flags.StringVar(&opts.Mqtt.Password, "mqtt-password", "", "MQTT password")
	flags.Uint8Var(&opts.Mqtt.QOS, "mqtt-qos", 0, "MQTT QoS for subscriptions and writes")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newCheckCommand(opts))
	return cmd
}

// config builds the engine configuration, logging to w.
func (o *rootOptions) config(w io.Writer) types.Config {
	return types.NewConfig(
		types.WithLogger(log.New(w, "", log.LstdFlags)),
		types.WithDebug(o.Debug),
		types.WithScriptMaxExecutionTime(o.Timeout),
		types.WithProperties(o.Macros),
		types.WithMqtt(o.Mqtt),
		types.WithDefaultPool(),
	)
}

// changePrinter prints widget property changes, one line each.
type changePrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *changePrinter) attach(d *widget.Display) {
	for _, r := range d.Runtimes() {
		r.Widget().OnChange(func(w *widget.Widget, id string, old, value interface{}) {
			p.mu.Lock()
			defer p.mu.Unlock()
			fmt.Fprintf(p.out, "%s/%s.%s = %v\n", d.Name(), w.Name(), id, value)
		})
	}
}

func displayNames(displays []*widget.Display) string {
	names := make([]string, 0, len(displays))
	for _, d := range displays {
		names = append(names, d.Name())
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
