// Command extload loads the plugins listed in an HCL manifest, registers
// them and prints what they provide.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/snowmerak/extload/lib/activation"
	"github.com/snowmerak/extload/lib/ctxlog"
	"github.com/snowmerak/extload/lib/manifest"
	"github.com/snowmerak/extload/lib/namespace"
	"github.com/snowmerak/extload/lib/queue"
	"github.com/snowmerak/extload/lib/registry"
	"github.com/snowmerak/extload/lib/transport"
	"github.com/snowmerak/extload/lib/unit"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Stderr, os.Args[1:])
	stop()

	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, outW, errW io.Writer, args []string) error {
	cfg, shouldExit, err := Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat, errW)
	ctx = ctxlog.WithLogger(ctx, logger)

	cfgs, err := manifest.Load(cfg.ManifestPath)
	if err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}

	env := unit.Env{
		Namespace:        namespace.New(),
		Registry:         registry.New(),
		Activator:        newActivator(cfg, errW),
		Transport:        transport.NewRouter(cfg.BaseURL, cfg.Root),
		DefaultExtension: cfg.Extension,
		Logger:           logger,
	}
	defer releaseAll(env.Namespace, logger)

	units, err := unit.NewBatch(cfgs, env)
	if err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}

	driver := queue.New(
		queue.WithMaxParallel(cfg.MaxParallel),
		queue.WithLogger(logger),
	)
	for _, u := range units {
		if err := driver.AddFile(u); err != nil {
			return &ExitError{Code: 2, Message: err.Error()}
		}
	}

	summary := driver.Start(ctx)
	printSummary(outW, env.Registry, summary)

	if n := len(summary.Failed); n > 0 {
		return &ExitError{Code: 1, Message: fmt.Sprintf("%d of %d plugins failed", n, len(units))}
	}
	if ctx.Err() != nil {
		return &ExitError{Code: 130, Message: "interrupted"}
	}
	return nil
}

func newActivator(cfg *Config, stderr io.Writer) activation.Activator {
	if cfg.Activator == "symbol" {
		return &activation.SymbolActivator{}
	}
	return &activation.ProcessActivator{ReadyTimeout: cfg.ReadyTimeout, Stderr: stderr}
}

func printSummary(w io.Writer, reg *registry.Registry, summary queue.Summary) {
	for _, name := range reg.Names() {
		entry, _ := reg.Lookup(name)
		fmt.Fprintf(w, "registered\t%s\t(from %s)\n", name, entry.Key)
	}

	failed := make([]string, 0, len(summary.Failed))
	for key := range summary.Failed {
		failed = append(failed, key)
	}
	sort.Strings(failed)
	for _, key := range failed {
		fmt.Fprintf(w, "failed\t%s\t%v\n", key, summary.Failed[key])
	}
	for _, key := range summary.Destroyed {
		fmt.Fprintf(w, "cancelled\t%s\n", key)
	}
}

// releaseAll closes every activated value still bound in ns.
func releaseAll(ns *namespace.Namespace, logger *slog.Logger) {
	for _, key := range ns.Keys() {
		v, ok := ns.Release(key)
		if !ok {
			continue
		}
		if c, ok := v.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Warn("Failed to close plugin.", "key", key, "error", err)
			}
		}
	}
}
