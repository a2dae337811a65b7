package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"mergetab/ctx"
	"mergetab/engine"
	"mergetab/types"
)

// configEnv holds the JSON config passed by the Neovim plugin
const configEnv = "MERGETAB_CONFIG"

type ProviderSettings struct {
	Type           string  `json:"type" yaml:"type"` // completion, chat, or empty to disable AI
	URL            string  `json:"url" yaml:"url"`
	APIKey         string  `json:"api_key" yaml:"api_key"`
	APIKeyEnv      string  `json:"api_key_env" yaml:"api_key_env"` // read the key from this variable when api_key is empty
	Model          string  `json:"model" yaml:"model"`
	Temperature    float64 `json:"temperature" yaml:"temperature"`
	MaxTokens      int     `json:"max_tokens" yaml:"max_tokens"`
	CompletionPath string  `json:"completion_path" yaml:"completion_path"`
	Streaming      bool    `json:"streaming" yaml:"streaming"`
	Compress       bool    `json:"compress" yaml:"compress"`
	TimeoutMs      int     `json:"timeout_ms" yaml:"timeout_ms"`
}

type Config struct {
	NsID                   int              `json:"ns_id" yaml:"ns_id"`
	LogLevel               string           `json:"log_level" yaml:"log_level"` // trace, debug, info, warn, error
	StateDirectory         string           `json:"state_directory" yaml:"state_directory"`
	AutoApplyNonConflict   bool             `json:"auto_apply_non_conflict" yaml:"auto_apply_non_conflict"`
	ContextLines           int              `json:"context_lines" yaml:"context_lines"`
	MaxContextTokens       int              `json:"max_context_tokens" yaml:"max_context_tokens"`
	DebugImmediateShutdown bool             `json:"debug_immediate_shutdown" yaml:"debug_immediate_shutdown"`
	MetricsURL             string           `json:"metrics_url" yaml:"metrics_url"`
	Provider               ProviderSettings `json:"provider" yaml:"provider"`
}

func defaultConfig() Config {
	return Config{
		LogLevel:         "info",
		ContextLines:     20,
		MaxContextTokens: 1024,
		Provider: ProviderSettings{
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0.2,
			MaxTokens:   1024,
			TimeoutMs:   30000,
		},
	}
}

// loadConfig layers the JSON environment config and then the YAML file at
// path over the defaults. Either source may be absent.
func loadConfig(path string) (Config, error) {
	config := defaultConfig()

	if raw := os.Getenv(configEnv); raw != "" {
		if err := json.Unmarshal([]byte(raw), &config); err != nil {
			return config, fmt.Errorf("invalid %s: %w", configEnv, err)
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return config, fmt.Errorf("invalid config %s: %w", path, err)
		}
	}

	if config.Provider.APIKey == "" && config.Provider.APIKeyEnv != "" {
		config.Provider.APIKey = os.Getenv(config.Provider.APIKeyEnv)
	}
	if config.Provider.Type != "" {
		switch types.ProviderType(config.Provider.Type) {
		case types.ProviderTypeCompletion, types.ProviderTypeChat:
		default:
			return config, fmt.Errorf("unknown provider type %q", config.Provider.Type)
		}
	}
	return config, nil
}

func (c Config) engineConfig() engine.EngineConfig {
	return engine.EngineConfig{
		AutoApplyNonConflict: c.AutoApplyNonConflict,
		ContextLines:         c.ContextLines,
		ResolveTimeout:       time.Duration(c.Provider.TimeoutMs) * time.Millisecond,
		GatherTimeout:        ctx.GatherTimeout,
	}
}

func (c Config) gathererConfig() ctx.Config {
	return ctx.Config{
		ContextLines: c.ContextLines,
		MaxTokens:    c.MaxContextTokens,
	}
}

func (c Config) providerConfig() *types.ProviderConfig {
	return &types.ProviderConfig{
		ProviderURL:         c.Provider.URL,
		APIKey:              c.Provider.APIKey,
		ProviderModel:       c.Provider.Model,
		ProviderTemperature: c.Provider.Temperature,
		ProviderMaxTokens:   c.Provider.MaxTokens,
		CompletionPath:      c.Provider.CompletionPath,
		CompletionTimeout:   c.Provider.TimeoutMs,
		Streaming:           c.Provider.Streaming,
		Compress:            c.Provider.Compress,
	}
}

// stateDir is where the socket, pid file and log live. It defaults to the
// directory of the executable.
func (c Config) stateDir() (string, error) {
	if c.StateDirectory != "" {
		return expandHome(c.StateDirectory), nil
	}
	execPath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("error getting executable path: %w", err)
	}
	return filepath.Dir(execPath), nil
}

func expandHome(path string) string {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}

func socketPath(dir string) string { return filepath.Join(dir, "mergetab.sock") }

func pidPath(dir string) string { return filepath.Join(dir, "mergetab.pid") }

func isDaemonRunning(dir string) (bool, int) {
	data, err := os.ReadFile(pidPath(dir))
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, 0
	}

	// Check if process is still running
	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0
	}

	// On Unix, Signal(0) checks if process exists
	err = process.Signal(syscall.Signal(0))
	return err == nil, pid
}
