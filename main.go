package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mergetab/logger"
)

var rootCmd = &cobra.Command{
	Use:   "mergetab",
	Short: "Three-way merge conflict resolution for Neovim",
	Long: `mergetab tracks the blocks of a three-way merge between the current and
incoming versions of a file and the merge result. Run without a subcommand it
relays stdio to the background daemon, starting it when needed.`,
	SilenceUsage: true,
	RunE:         runClient,
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Serve Neovim merge sessions over the unix socket",
	RunE:  runDaemon,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a conflicted file without an editor",
	Long: `Resolve merges the current and incoming versions of a file starting from the
base and writes the result. Sides are read from files or from the index stages
of a conflicted path in a git repository.`,
	RunE: runResolve,
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List the conflicted paths of a repository",
	RunE:  runConflicts,
}

var (
	configPath string
	logLevel   string
	stateDir   string

	conflictsRepo string

	resolveFlags struct {
		current  string
		incoming string
		base     string
		repo     string
		path     string
		strategy string
		out      string
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "Directory for the socket, pid file and log")

	f := resolveCmd.Flags()
	f.StringVar(&resolveFlags.current, "current", "", "File holding the current (ours) version")
	f.StringVar(&resolveFlags.incoming, "incoming", "", "File holding the incoming (theirs) version")
	f.StringVar(&resolveFlags.base, "base", "", "File holding the common ancestor")
	f.StringVar(&resolveFlags.repo, "repo", "", "Read the sides of --path from this repository's index")
	f.StringVar(&resolveFlags.path, "path", "", "Conflicted path inside --repo")
	f.StringVar(&resolveFlags.strategy, "strategy", string(strategyCombination), "current, incoming, combination or ai")
	f.StringVarP(&resolveFlags.out, "out", "o", "", "Write the result here instead of stdout")

	conflictsCmd.Flags().StringVar(&conflictsRepo, "repo", ".", "Path to the git repository")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(conflictsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the config, applies flag overrides and resolves the state
// directory
func setup() (Config, string, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return config, "", err
	}
	if logLevel != "" {
		config.LogLevel = logLevel
	}
	if stateDir != "" {
		config.StateDirectory = stateDir
	}
	dir, err := config.stateDir()
	if err != nil {
		return config, "", err
	}
	return config, dir, nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	config, dir, err := setup()
	if err != nil {
		return err
	}

	ll, err := logger.Open(dir, logger.ParseLogLevel(config.LogLevel))
	if err != nil {
		return err
	}
	defer ll.Close()
	logger.Info("config: %+v", redacted(config))

	daemon, err := NewDaemon(config, dir)
	if err != nil {
		return fmt.Errorf("error creating daemon: %w", err)
	}
	if err := daemon.Start(); err != nil {
		return fmt.Errorf("error starting daemon: %w", err)
	}
	return nil
}

func runClient(cmd *cobra.Command, args []string) error {
	_, dir, err := setup()
	if err != nil {
		return err
	}

	client := NewClient(dir)
	if err := client.EnsureDaemonRunning(); err != nil {
		return fmt.Errorf("error ensuring daemon is running: %w", err)
	}
	if err := client.Connect(); err != nil {
		return fmt.Errorf("error connecting to daemon: %w", err)
	}
	return nil
}

// redacted hides the api key before the config is logged
func redacted(c Config) Config {
	if c.Provider.APIKey != "" {
		c.Provider.APIKey = "***"
	}
	return c
}
