package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"roomchat/internal/app"
)

const (
	modeServer = "server"
	modeClient = "client"
	modeLocal  = "local"
)

// roomchat [server|client|local] [flags] [ROOM]
func main() {
	mode, args := parseMode(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch mode {
	case modeServer:
		err = runServerMode(ctx, args)
	case modeLocal:
		err = runLocalMode(ctx, args)
	default:
		err = runClientMode(args)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "roomchat: %v\n", err)
		os.Exit(1)
	}
}

func runServerMode(ctx context.Context, args []string) error {
	cfg, err := app.ParseServerConfig(flag.NewFlagSet("roomchat server", flag.ExitOnError), args)
	if err != nil {
		return err
	}
	handle, err := app.RunServer(ctx, cfg, app.NewLogger(cfg.LogLevel))
	if err != nil {
		return err
	}
	return handle.Wait()
}

func runClientMode(args []string) error {
	cfg, err := app.ParseClientConfig(flag.NewFlagSet("roomchat client", flag.ExitOnError), args)
	if err != nil {
		return err
	}
	return app.RunClient(cfg)
}

// runLocalMode starts a private server on loopback and attaches the client to it.
func runLocalMode(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("roomchat local", flag.ExitOnError)
	username := fs.String("user", os.Getenv("ROOMCHAT_USER"), "username to join with")
	serverCfg, err := app.ParseServerConfig(fs, args)
	if err != nil {
		return err
	}
	if serverCfg.Addr == ":8080" {
		serverCfg.Addr = "127.0.0.1:0"
	}
	// server logs would draw over the TUI
	serverCfg.LogLevel = "error"

	handle, err := app.RunServer(ctx, serverCfg, app.NewLogger(serverCfg.LogLevel))
	if err != nil {
		return err
	}
	defer stopServer(handle)

	if err := waitForServer(handle.Addr(), 5*time.Second); err != nil {
		return err
	}

	clientCfg := app.ClientConfig{
		ServerURL: buildWebsocketURL(handle.Addr(), serverCfg.Path),
		Username:  *username,
	}
	if fs.NArg() > 0 {
		clientCfg.RoomKey = fs.Arg(0)
	}
	return app.RunClient(clientCfg)
}

func waitForServer(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server did not become ready: %w", err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func buildWebsocketURL(addr, path string) string {
	path = app.NormalizeJoinPath(path)
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Sprintf("ws://%s%s", addr, path)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(host, port), path)
}

func parseMode(args []string) (string, []string) {
	if len(args) == 0 {
		return modeClient, args
	}
	switch strings.ToLower(args[0]) {
	case modeServer, modeClient, modeLocal:
		return strings.ToLower(args[0]), args[1:]
	}
	return modeClient, args
}

func stopServer(handle *app.ServerHandle) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = handle.Stop(shutdownCtx)
}
