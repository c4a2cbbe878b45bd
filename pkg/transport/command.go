// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// killGrace is how long Close waits for the process to exit on its own once
// its input is closed.
var killGrace = 5 * time.Second

// Cmd is a channel to the standard streams of a child process.
type Cmd struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	closeOnce sync.Once
	closeErr  error
	exitCode  int
	exited    chan struct{}
	waitErr   error
}

// CommandOption configures a Cmd before it is started.
type CommandOption func(*exec.Cmd)

// WithStderr forwards the stderr of the process to w instead of os.Stderr.
func WithStderr(w io.Writer) CommandOption {
	return func(c *exec.Cmd) {
		c.Stderr = w
	}
}

// Command starts name with args and connects to its stdin and stdout.
func Command(ctx context.Context, name string, args []string, opts ...CommandOption) (*Cmd, error) {
	c := exec.CommandContext(ctx, name, args...)
	c.Stderr = os.Stderr
	for _, o := range opts {
		o(c)
	}
	stdin, err := c.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	// Wait closes pipes made by StdoutPipe as soon as the process exits,
	// which would drop output not read yet. An os.Pipe stays readable until
	// drained.
	stdout, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	c.Stdout = w
	if err := c.Start(); err != nil {
		stdout.Close()
		w.Close()
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	w.Close()
	cmd := &Cmd{
		cmd:      c,
		stdin:    stdin,
		stdout:   stdout,
		exitCode: -1,
		exited:   make(chan struct{}),
	}
	go cmd.wait()
	return cmd, nil
}

func (c *Cmd) wait() {
	defer close(c.exited)
	c.waitErr = c.cmd.Wait()
	if c.cmd.ProcessState != nil {
		c.exitCode = c.cmd.ProcessState.ExitCode()
	}
}

func (c *Cmd) Read(b []byte) (int, error)  { return c.stdout.Read(b) }
func (c *Cmd) Write(b []byte) (int, error) { return c.stdin.Write(b) }
func (c *Cmd) Flush() error                { return nil }

func (c *Cmd) CloseWrite() error {
	if err := c.stdin.Close(); err != nil && !isAlreadyClosed(err) {
		return err
	}
	return nil
}

// Close closes the input of the process and waits for it to exit, killing it
// after a grace period. A non-zero exit status is returned as an error.
func (c *Cmd) Close() error {
	c.closeOnce.Do(func() {
		_ = c.CloseWrite()
		select {
		case <-c.exited:
		case <-time.After(killGrace):
			_ = c.cmd.Process.Kill()
			<-c.exited
		}
		_ = c.stdout.Close()
		var exitErr *exec.ExitError
		if c.waitErr != nil && !errors.As(c.waitErr, &exitErr) {
			c.closeErr = c.waitErr
			return
		}
		if c.exitCode != 0 {
			c.closeErr = fmt.Errorf("%s exited with status %d", c.cmd.Path, c.exitCode)
		}
	})
	return c.closeErr
}

// ExitCode returns the exit status of the process once Close returned.
func (c *Cmd) ExitCode() int {
	select {
	case <-c.exited:
		return c.exitCode
	default:
		return -1
	}
}

func isAlreadyClosed(err error) bool {
	return errors.Is(err, os.ErrClosed)
}

// SSHOptions describe how the agent is invoked on a remote host.
type SSHOptions struct {
	// Program is the ssh client, "ssh" when empty.
	Program string
	// Cipher is passed to ssh with -c when set.
	Cipher string
	// Extra options are passed to ssh before the host.
	Extra []string
	// Sudo runs the remote command through sudo.
	Sudo bool
}

// SSH returns the program and arguments that run remote on host. The remote
// arguments are quoted for the shell of the remote user.
func SSH(host string, o SSHOptions, remote []string) (string, []string) {
	program := o.Program
	if program == "" {
		program = "ssh"
	}
	var args []string
	if o.Cipher != "" {
		args = append(args, "-c", o.Cipher)
	}
	args = append(args, o.Extra...)
	args = append(args, host)
	if o.Sudo {
		args = append(args, "sudo")
	}
	for _, a := range remote {
		args = append(args, shellQuote(a))
	}
	return program, args
}

func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, unsafeShellRune) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func unsafeShellRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./:=@,+%", r)
}
