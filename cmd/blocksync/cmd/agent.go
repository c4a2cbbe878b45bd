// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"github.com/ethersphere/blocksync/pkg/blockstore"
	"github.com/ethersphere/blocksync/pkg/diffsync"
	"github.com/ethersphere/blocksync/pkg/transport"
	"github.com/spf13/cobra"
)

func (c *command) initAgentCmd() {
	cmd := &cobra.Command{
		Use:   "agent <path>",
		Short: "Serve the remote end of a session on standard input and output",
		Long: `Started by sync on the other host, through ssh or with --local. Standard
output carries the protocol and logs go to standard error.`,
		Hidden: true,
		Args:   rangeArgs(1, 1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return c.bindFlags(cmd)
		},
		RunE: c.runAgent,
	}

	c.setSessionFlags(cmd)
	cmd.Flags().String(optionNameDirection, "push", "push writes the served object, pull reads it")
	cmd.Flags().String(optionNameDevSize, "0", "size of the object created with --force")
	cmd.Flags().String(optionNameSessionID, "", "session identifier for log correlation")

	c.root.AddCommand(cmd)
}

func (c *command) runAgent(cmd *cobra.Command, args []string) error {
	path := args[0]
	logger, err := newLogger(cmd, c.config.GetString(optionNameVerbosity))
	if err != nil {
		return err
	}
	entry := logger.WithField("session", c.config.GetString(optionNameSessionID))

	direction, err := diffsync.ParseDirection(c.config.GetString(optionNameDirection))
	if err != nil {
		return err
	}
	force := c.config.GetBool(optionNameForce)
	devSize := int64(c.config.GetSizeInBytes(optionNameDevSize))
	opts := []diffsync.Option{diffsync.WithDirection(direction)}
	if force {
		opts = append(opts, diffsync.WithForce(devSize))
	}
	cfg, err := c.sessionConfig(opts...)
	if err != nil {
		return err
	}

	so := blockstore.Options{
		BlockSize: cfg.BlockSize,
		Mode:      blockstore.ReadOnly,
		NoCache:   c.config.GetBool(optionNameNoCache),
	}
	if direction == diffsync.Push {
		so.Mode = blockstore.ReadWrite
		so.DryRun = cfg.DryRun
		so.Create = force
		so.CreateSize = devSize
	}
	store, err := blockstore.Open(c.fs, path, so)
	if err != nil {
		entry.Errorf("agent: %v", err)
		return err
	}

	ch := transport.Stdio(cmd.InOrStdin(), cmd.OutOrStdout())
	engine, err := diffsync.New(diffsync.Agent, diffsync.Options{
		Config:  cfg,
		Store:   store,
		Channel: ch,
		Path:    path,
		Logger:  logger,
	})
	if err != nil {
		_ = ch.Close()
		_ = store.Close()
		return err
	}

	report, err := engine.Run(baseContext(cmd))
	if err != nil {
		entry.Errorf("agent: %v", err)
		return err
	}
	entry.Debugf("agent: %s %s done, %d same, %d differ", direction, path, report.Same.Load(), report.Differ.Load())
	return nil
}
