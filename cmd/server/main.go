package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	intrnl "roomchat/internal"
	"roomchat/internal/app"
)

func main() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	showVersion := fs.Bool("version", false, "print the version and exit")
	cfg, err := app.ParseServerConfig(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *showVersion {
		fmt.Println(intrnl.Version)
		return
	}

	logger := app.NewLogger(cfg.LogLevel)
	handle, err := app.RunServer(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("server start failed", "err", err)
		os.Exit(1)
	}

	exitCode := <-gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"roomchat": func(ctx context.Context) error {
			return handle.Stop(ctx)
		},
	})
	if exitCode != 0 {
		logger.Warn("shutdown finished with errors", "exit_code", exitCode)
		os.Exit(exitCode)
	}
	logger.Info("server stopped")
}
