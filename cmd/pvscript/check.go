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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rulego/pvscript/display"
)

// errCheckFailed is returned when at least one display has errors.
var errCheckFailed = errors.New("check failed")

func newCheckCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <display-file-or-dir>",
		Short: "Compile every script and rule without running them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkDisplays(rootOpts, args[0], cmd)
		},
	}
}

func checkDisplays(opts *rootOptions, path string, cmd *cobra.Command) error {
	config := opts.config(cmd.ErrOrStderr())
	defer config.Pool.Release()

	pool := display.NewPool(config)
	defer pool.Stop()

	displays, err := pool.Load(path)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	failed := 0
	for _, d := range displays {
		if err := d.Check(); err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s\n%v\n", d.Name(), err)
			continue
		}
		fmt.Fprintf(out, "ok   %s\n", d.Name())
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d displays", errCheckFailed, failed, len(displays))
	}
	return nil
}
