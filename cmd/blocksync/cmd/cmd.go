// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethersphere/blocksync/pkg/diffsync"
	"github.com/ethersphere/blocksync/pkg/fault"
	"github.com/ethersphere/blocksync/pkg/logging"
	"github.com/ethersphere/blocksync/pkg/transport"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	optionNameBlockSize     = "block-size"
	optionNameHash          = "hash"
	optionNameCompress      = "compress"
	optionNameSkip          = "skip"
	optionNameForce         = "force"
	optionNameDryRun        = "dry-run"
	optionNamePull          = "pull"
	optionNameNoCache       = "no-cache"
	optionNameShowSum       = "show-sum"
	optionNameSudo          = "sudo"
	optionNameSSH           = "ssh"
	optionNameSSHCipher     = "ssh-cipher"
	optionNameRemoteCommand = "remote-command"
	optionNameLocal         = "local"
	optionNameBWLimit       = "bwlimit"
	optionNameIdleTimeout   = "idle-timeout"
	optionNameReportFile    = "report-file"
	optionNameMetricsFile   = "metrics-file"
	optionNameVerbosity     = "verbosity"
	optionNameDirection     = "direction"
	optionNameDevSize       = "devsize"
	optionNameSessionID     = "session-id"
)

func init() {
	cobra.EnableCommandSorting = false
}

// dialFunc starts the agent program and returns the channel to it.
type dialFunc func(ctx context.Context, cmd *cobra.Command, program string, args []string) (transport.Channel, error)

type command struct {
	root    *cobra.Command
	config  *viper.Viper
	fs      afero.Fs
	dial    dialFunc
	cfgFile string
	homeDir string
}

type option func(*command)

func newCommand(opts ...option) (c *command, err error) {
	c = &command{
		root: &cobra.Command{
			Use:           "blocksync",
			Short:         "Synchronize block devices and files by transferring only changed blocks",
			SilenceErrors: true,
			SilenceUsage:  true,
			PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
				return c.initConfig()
			},
		},
	}
	c.root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fault.Config("parse flags", err)
	})

	for _, o := range opts {
		o(c)
	}
	if c.fs == nil {
		c.fs = afero.NewOsFs()
	}
	if c.dial == nil {
		c.dial = dialCommand
	}

	// Find home directory.
	if err := c.setHomeDir(); err != nil {
		return nil, err
	}

	c.initGlobalFlags()
	c.initSyncCmd()
	c.initAgentCmd()
	c.initVersionCmd()

	return c, nil
}

func (c *command) Execute() (err error) {
	return c.root.Execute()
}

// Execute parses command line arguments and runs appropriate functions.
func Execute() (err error) {
	c, err := newCommand()
	if err != nil {
		return err
	}
	return c.Execute()
}

func (c *command) initGlobalFlags() {
	globalFlags := c.root.PersistentFlags()
	globalFlags.StringVar(&c.cfgFile, "config", "", "config file (default is $HOME/.blocksync.yaml)")
}

func (c *command) initConfig() (err error) {
	config := viper.New()
	config.SetFs(c.fs)
	configName := ".blocksync"
	if c.cfgFile != "" {
		// Use config file from the flag.
		config.SetConfigFile(c.cfgFile)
	} else {
		// Search config in home directory with name ".blocksync" (without extension).
		config.AddConfigPath(c.homeDir)
		config.SetConfigName(configName)
	}

	// Environment
	config.SetEnvPrefix("blocksync")
	config.AutomaticEnv() // read in environment variables that match
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if c.homeDir != "" && c.cfgFile == "" {
		c.cfgFile = filepath.Join(c.homeDir, configName+".yaml")
	}

	// If a config file is found, read it in.
	if err := config.ReadInConfig(); err != nil {
		var e viper.ConfigFileNotFoundError
		if !errors.As(err, &e) {
			return fault.Config("read config", err)
		}
	}
	c.config = config
	return nil
}

func (c *command) setHomeDir() (err error) {
	if c.homeDir != "" {
		return
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	c.homeDir = dir
	return nil
}

// setSessionFlags adds the flags shared by the driver and the agent.
func (c *command) setSessionFlags(cmd *cobra.Command) {
	cmd.Flags().String(optionNameBlockSize, "1mb", "block size in bytes, with an optional kb, mb or gb suffix")
	cmd.Flags().String(optionNameHash, "sha256", "block digest algorithm")
	cmd.Flags().String(optionNameCompress, "none", "block payload compression: none, snappy, s2, lz4, zstd or zlib")
	cmd.Flags().Uint64(optionNameSkip, 0, "number of leading blocks to skip")
	cmd.Flags().Bool(optionNameForce, false, "create the destination if it does not exist")
	cmd.Flags().Bool(optionNameDryRun, false, "compare only, never write")
	cmd.Flags().Bool(optionNameNoCache, false, "minimize page cache usage")
	cmd.Flags().String(optionNameVerbosity, "info", "log verbosity level 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace")
}

func (c *command) bindFlags(cmd *cobra.Command) error {
	if err := c.config.BindPFlags(cmd.Flags()); err != nil {
		return fault.Config("bind flags", err)
	}
	return nil
}

// sessionConfig builds the session parameters from the flags, then applies
// opts.
func (c *command) sessionConfig(opts ...diffsync.Option) (diffsync.Config, error) {
	blockSize := c.config.GetSizeInBytes(optionNameBlockSize)
	if blockSize == 0 {
		return diffsync.Config{}, fault.Configf("invalid block size %q", c.config.GetString(optionNameBlockSize))
	}
	cfg := diffsync.NewConfig(append([]diffsync.Option{
		diffsync.WithBlockSize(int64(blockSize)),
		diffsync.WithHash(c.config.GetString(optionNameHash)),
		diffsync.WithCodec(c.config.GetString(optionNameCompress)),
		diffsync.WithSkip(c.config.GetUint64(optionNameSkip)),
		diffsync.WithDryRun(c.config.GetBool(optionNameDryRun)),
	}, opts...)...)
	if err := cfg.Validate(); err != nil {
		return diffsync.Config{}, err
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, verbosity string) (logging.Logger, error) {
	level, err := logging.ParseVerbosity(verbosity)
	if err != nil {
		return nil, fault.Config("verbosity", err)
	}
	return logging.New(cmd.ErrOrStderr(), level), nil
}

func dialCommand(ctx context.Context, cmd *cobra.Command, program string, args []string) (transport.Channel, error) {
	ch, err := transport.Command(ctx, program, args, transport.WithStderr(cmd.ErrOrStderr()))
	if err != nil {
		return nil, fault.Transport("start agent", err)
	}
	return ch, nil
}

func baseContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func rangeArgs(min, max int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < min || len(args) > max {
			return fault.Configf("%s: expected %d to %d arguments, got %d\nusage: %s", cmd.Name(), min, max, len(args), cmd.UseLine())
		}
		return nil
	}
}
