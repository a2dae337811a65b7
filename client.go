package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"mergetab/logger"
)

// Client relays the plugin's stdio channel to the daemon socket
type Client struct {
	stateDir   string
	socketPath string
}

func NewClient(stateDir string) *Client {
	return &Client{
		stateDir:   stateDir,
		socketPath: socketPath(stateDir),
	}
}

func (c *Client) Connect() error {
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		io.Copy(conn, os.Stdin)
		conn.Close()
	}()

	io.Copy(os.Stdout, conn)
	return nil
}

func (c *Client) EnsureDaemonRunning() error {
	if running, pid := isDaemonRunning(c.stateDir); running {
		logger.Debug("daemon already running with PID %d", pid)
		return nil
	}
	return c.startDaemon()
}

// startDaemon re-executes this binary with the daemon subcommand. The config
// reaches it through the inherited environment and flags.
func (c *Client) startDaemon() error {
	logger.Debug("starting daemon...")

	args := []string{os.Args[0], "daemon", "--state-dir", c.stateDir}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	if logLevel != "" {
		args = append(args, "--log-level", logLevel)
	}

	_, err := os.StartProcess(os.Args[0], args, &os.ProcAttr{
		Env:   os.Environ(),
		Files: []*os.File{nil, nil, nil},
	})
	if err != nil {
		return err
	}
	return c.waitForDaemon()
}

func (c *Client) waitForDaemon() error {
	for range 50 {
		if running, _ := isDaemonRunning(c.stateDir); running {
			if _, err := os.Stat(c.socketPath); err == nil {
				logger.Debug("daemon started successfully")
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon failed to start within timeout")
}
