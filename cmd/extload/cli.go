package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"
)

// ExitError carries the process exit code for a failed run.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Config is the parsed command line.
type Config struct {
	ManifestPath string
	BaseURL      string
	Root         string
	Extension    string
	Activator    string
	MaxParallel  int
	ReadyTimeout time.Duration
	LogLevel     string
	LogFormat    string
}

// Parse processes command-line arguments. It returns the Config, whether
// the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*Config, bool, error) {
	flagSet := flag.NewFlagSet("extload", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
extload - fetch, activate and register plugins described by an HCL manifest.

Usage:
  extload [options] [MANIFEST]

Options:
`)
		flagSet.PrintDefaults()
	}

	manifestFlag := flagSet.String("manifest", "", "Path to the plugin manifest.")
	baseURLFlag := flagSet.String("base-url", "", "Base URL relative plugin locations are resolved against.")
	rootFlag := flagSet.String("root", ".", "Directory relative plugin locations are read from when no base URL is set.")
	extensionFlag := flagSet.String("extension", "", "Default extension for derived plugin locations.")
	activatorFlag := flagSet.String("activator", "process", "Activation strategy. Options: 'process' or 'symbol'.")
	parallelFlag := flagSet.Int("max-parallel", 32, "Maximum number of concurrent transfers.")
	readyFlag := flagSet.Duration("ready-timeout", 5*time.Second, "How long a plugin process may take to signal readiness.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	path := *manifestFlag
	if path == "" && flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	if path == "" {
		flagSet.Usage()
		return nil, true, nil
	}

	activator := strings.ToLower(*activatorFlag)
	if activator != "process" && activator != "symbol" {
		return nil, false, &ExitError{Code: 2, Message: "invalid activator: must be 'process' or 'symbol'"}
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	if *parallelFlag < 1 {
		return nil, false, &ExitError{Code: 2, Message: "invalid max-parallel: must be at least 1"}
	}

	return &Config{
		ManifestPath: path,
		BaseURL:      *baseURLFlag,
		Root:         *rootFlag,
		Extension:    *extensionFlag,
		Activator:    activator,
		MaxParallel:  *parallelFlag,
		ReadyTimeout: *readyFlag,
		LogLevel:     logLevel,
		LogFormat:    logFormat,
	}, false, nil
}
