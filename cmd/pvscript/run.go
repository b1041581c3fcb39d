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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rulego/pvscript/display"
)

func newRunCommand(rootOpts *rootOptions) *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "run <display-file-or-dir>",
		Short: "Run displays and print property changes",
		Long: `Run loads the display file, or every .json/.yaml/.yml display below a
directory, starts all widget scripts and rules and prints each property change
as display/widget.property = value. It stops on SIGINT or SIGTERM.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			return runDisplays(ctx, rootOpts, args[0], cmd)
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long, 0 runs until interrupted")
	return cmd
}

func runDisplays(ctx context.Context, opts *rootOptions, path string, cmd *cobra.Command) error {
	config := opts.config(cmd.ErrOrStderr())
	defer config.Pool.Release()

	pool := display.NewPool(config)
	defer pool.Stop()

	displays, err := pool.Load(path)
	if err != nil {
		return err
	}
	if len(displays) == 0 {
		return fmt.Errorf("no display found in %s", path)
	}
	printer := &changePrinter{out: cmd.OutOrStdout()}
	for _, d := range displays {
		printer.attach(d)
	}
	if err := pool.Start(); err != nil {
		// failed scripts are logged, the rest keeps running
		config.Printf("start: %v", err)
	}
	config.Printf("running %s", displayNames(displays))

	<-ctx.Done()
	config.Printf("stopping")
	return nil
}
