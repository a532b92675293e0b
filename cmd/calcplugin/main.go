// Command calcplugin is a sample extension for the process activator. It
// serves calculate and echo over stdin/stdout.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/snowmerak/extload/lib/remote"
)

func main() {
	module := remote.NewModule(os.Stdin, os.Stdout)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("plugin", "calcplugin")
	module.SetLogger(logger)

	module.Handle("calculate", handleCalculate)
	module.Handle("echo", func(ctx context.Context, payload []byte) ([]byte, error) {
		return payload, nil
	})
	module.OnRegister(func(key, token string) error {
		logger.Info("Registered.", "key", key, "token", token)
		return nil
	})

	if err := module.Listen(context.Background()); err != nil {
		logger.Error("Listen failed.", "error", err)
		os.Exit(1)
	}
}
