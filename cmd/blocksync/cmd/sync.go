// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ethersphere/blocksync/pkg/blockstore"
	"github.com/ethersphere/blocksync/pkg/diffsync"
	"github.com/ethersphere/blocksync/pkg/fault"
	"github.com/ethersphere/blocksync/pkg/metrics"
	"github.com/ethersphere/blocksync/pkg/transport"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func (c *command) initSyncCmd() {
	cmd := &cobra.Command{
		Use:   "sync <local> <host> [remote]",
		Short: "Synchronize a local object with one on a remote host",
		Long: `Compares <local> with [remote] on <host> block by block and copies the
blocks that differ. The remote object defaults to the local path.

With --pull the remote object is the source and <local> is written. With
--local the agent runs on this host and the arguments are <local> <remote>.`,
		Args: rangeArgs(2, 3),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return c.bindFlags(cmd)
		},
		RunE: c.runSync,
	}

	c.setSessionFlags(cmd)
	cmd.Flags().Bool(optionNamePull, false, "copy from the remote object to the local one")
	cmd.Flags().Bool(optionNameShowSum, false, "compute and show the checksum of the source")
	cmd.Flags().Bool(optionNameSudo, false, "run the agent with sudo")
	cmd.Flags().String(optionNameSSH, "ssh", "ssh client program and options")
	cmd.Flags().String(optionNameSSHCipher, "", "ssh cipher, passed to ssh with -c")
	cmd.Flags().String(optionNameRemoteCommand, "blocksync", "agent program on the remote host")
	cmd.Flags().Bool(optionNameLocal, false, "run the agent on this host")
	cmd.Flags().String(optionNameBWLimit, "0", "bandwidth limit in bytes per second, with an optional kb, mb or gb suffix")
	cmd.Flags().Duration(optionNameIdleTimeout, 0, "abort when no data moves for this long")
	cmd.Flags().String(optionNameReportFile, "", "write the session report as YAML to this file")
	cmd.Flags().String(optionNameMetricsFile, "", "write prometheus metrics in text format to this file")

	c.root.AddCommand(cmd)
}

func (c *command) runSync(cmd *cobra.Command, args []string) error {
	localPath := args[0]
	var host, remotePath string
	if c.config.GetBool(optionNameLocal) {
		if len(args) != 2 {
			return fault.Configf("sync --local: expected <local> <remote>, got %d arguments", len(args))
		}
		remotePath = args[1]
	} else {
		host = args[1]
		remotePath = localPath
		if len(args) == 3 {
			remotePath = args[2]
		}
	}

	logger, err := newLogger(cmd, c.config.GetString(optionNameVerbosity))
	if err != nil {
		return err
	}

	direction := diffsync.Push
	if c.config.GetBool(optionNamePull) {
		direction = diffsync.Pull
	}
	cfg, err := c.sessionConfig(
		diffsync.WithDirection(direction),
		diffsync.WithShowSum(c.config.GetBool(optionNameShowSum)),
	)
	if err != nil {
		return err
	}

	force := c.config.GetBool(optionNameForce)
	so := blockstore.Options{
		BlockSize: cfg.BlockSize,
		Mode:      blockstore.ReadOnly,
		NoCache:   c.config.GetBool(optionNameNoCache),
	}
	if direction == diffsync.Pull {
		so.Mode = blockstore.ReadWrite
		so.DryRun = cfg.DryRun
		so.Create = force
	}
	store, err := blockstore.Open(c.fs, localPath, so)
	if err != nil {
		return err
	}

	sessionID := uuid.New().String()
	program, argv, err := c.agentCommand(host, c.agentArgs(cfg, remotePath, sessionID, force, store.Size()))
	if err != nil {
		_ = store.Close()
		return err
	}
	logger.Debugf("sync: starting agent: %s %s", program, strings.Join(argv, " "))

	ctx, stop := signal.NotifyContext(baseContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch, err := c.dial(ctx, cmd, program, argv)
	if err != nil {
		_ = store.Close()
		return err
	}
	ch = transport.WithRateLimit(ch, int(c.config.GetSizeInBytes(optionNameBWLimit)))
	ch = transport.WithIdleTimeout(ch, c.config.GetDuration(optionNameIdleTimeout))

	engine, err := diffsync.New(diffsync.Driver, diffsync.Options{
		Config:  cfg,
		Store:   store,
		Channel: ch,
		Path:    remotePath,
		Logger:  logger,
	})
	if err != nil {
		_ = ch.Close()
		_ = store.Close()
		return err
	}

	peer := remotePath
	if host != "" {
		peer = host + ":" + remotePath
	}
	logger.WithField("session", sessionID).Infof("sync: %s %s with %s, %d byte blocks", direction, localPath, peer, cfg.BlockSize)

	stopProgress := startProgress(cmd.OutOrStdout(), engine.Report())
	report, err := engine.Run(ctx)
	stopProgress()

	printSummary(cmd.OutOrStdout(), report, err)
	if werr := c.writeOutputs(report, engine, logger); werr != nil {
		if err == nil {
			return werr
		}
		logger.Errorf("sync: %v", werr)
	}
	return err
}

// agentArgs returns the arguments of the agent command for a session of cfg.
func (c *command) agentArgs(cfg diffsync.Config, path, sessionID string, force bool, devSize int64) []string {
	args := []string{
		"agent", path,
		"--" + optionNameBlockSize, strconv.FormatInt(cfg.BlockSize, 10),
		"--" + optionNameHash, cfg.Hash,
		"--" + optionNameCompress, cfg.Codec,
		"--" + optionNameSkip, strconv.FormatUint(cfg.Skip, 10),
		"--" + optionNameDirection, cfg.Direction.String(),
		"--" + optionNameSessionID, sessionID,
		"--" + optionNameVerbosity, c.config.GetString(optionNameVerbosity),
	}
	if cfg.DryRun {
		args = append(args, "--"+optionNameDryRun)
	}
	if force && cfg.Direction == diffsync.Push {
		args = append(args, "--"+optionNameForce, "--"+optionNameDevSize, strconv.FormatInt(devSize, 10))
	}
	if c.config.GetBool(optionNameNoCache) {
		args = append(args, "--"+optionNameNoCache)
	}
	return args
}

// agentCommand returns the program and arguments that run the agent on host,
// or on this host with --local.
func (c *command) agentCommand(host string, agentArgs []string) (string, []string, error) {
	sudo := c.config.GetBool(optionNameSudo)
	if c.config.GetBool(optionNameLocal) {
		exe, err := os.Executable()
		if err != nil {
			return "", nil, fault.Config("locate agent", err)
		}
		if sudo {
			return "sudo", append([]string{exe}, agentArgs...), nil
		}
		return exe, agentArgs, nil
	}

	remote := strings.Fields(c.config.GetString(optionNameRemoteCommand))
	if len(remote) == 0 {
		return "", nil, fault.Configf("empty %s", optionNameRemoteCommand)
	}
	client := strings.Fields(c.config.GetString(optionNameSSH))
	if len(client) == 0 {
		return "", nil, fault.Configf("empty %s", optionNameSSH)
	}
	program, args := transport.SSH(host, transport.SSHOptions{
		Program: client[0],
		Extra:   client[1:],
		Cipher:  c.config.GetString(optionNameSSHCipher),
		Sudo:    sudo,
	}, append(remote, agentArgs...))
	return program, args, nil
}

func (c *command) writeOutputs(report *diffsync.Report, cs ...metrics.Collector) error {
	if path := c.config.GetString(optionNameReportFile); path != "" {
		b, err := report.YAML()
		if err != nil {
			return fmt.Errorf("render report: %w", err)
		}
		if err := afero.WriteFile(c.fs, path, b, 0o644); err != nil {
			return fault.Access("write report", err)
		}
	}
	if path := c.config.GetString(optionNameMetricsFile); path != "" {
		if err := metrics.WriteTextfile(path, cs...); err != nil {
			return fault.Access("write metrics", err)
		}
	}
	return nil
}

// startProgress renders the progress of r once per second while w is a
// terminal. The returned function stops it.
func startProgress(w io.Writer, r *diffsync.Report) (stop func()) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				printProgress(f, r)
			case <-done:
				printProgress(f, r)
				fmt.Fprintln(f)
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func printProgress(w io.Writer, r *diffsync.Report) {
	fmt.Fprintf(w, "\rsame: %d, diff: %d, %d/%d, %5.1f MB/s",
		r.Same.Load(), r.Differ.Load(), r.Skipped+r.Examined(), r.Total.Load(), r.Rate())
}

func printSummary(w io.Writer, r *diffsync.Report, err error) {
	s := r.Snapshot()
	if err != nil {
		fmt.Fprintf(w, "Failed after %s at block %d\n", s.Duration, s.Skipped+s.Same+s.Differ)
		return
	}
	fmt.Fprintf(w, "Completed in %s\n", s.Duration)
	fmt.Fprintf(w, "same: %d, diff: %d, skipped: %d, %d/%d blocks, %.1f MB/s\n",
		s.Same, s.Differ, s.Skipped, s.Skipped+s.Same+s.Differ, s.Total, s.Rate)
	if s.Checksum != "" {
		fmt.Fprintf(w, "Source checksum: %s\n", s.Checksum)
	}
}
