// Copyright 2025 Joseph Cumines
//
// MCP server for Windows desktop automation - JSON-RPC 2.0 over stdio or HTTP

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/WindowsUseSDK/internal/cli"
	"github.com/joeycumines/WindowsUseSDK/internal/config"
	"github.com/joeycumines/WindowsUseSDK/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "windows-use-mcp",
		Short:         "Serve Windows desktop automation tools over MCP",
		Version:       server.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := run(ctx, cmd); err != nil {
				fmt.Fprintf(os.Stderr, "windows-use-mcp: %v\n", err)
				return err
			}
			return nil
		},
	}
	config.AddFlags(cmd)
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command) error {
	loader, err := config.NewLoader(cmd)
	if err != nil {
		return err
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := cli.NewLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	desk, err := cli.OpenDesktop(cfg, log)
	if err != nil {
		return err
	}
	rt, err := cli.NewRuntime(cfg, desk, log)
	if err != nil {
		_ = desk.Close()
		return err
	}
	defer func() {
		if err := rt.Server.Shutdown(); err != nil {
			log.Warn("shutdown", zap.Error(err))
		}
	}()

	tr := rt.Transport(cfg, log)
	log.Info("starting MCP server",
		zap.String("version", server.Version),
		zap.String("transport", string(cfg.Transport)),
		zap.String("backend", string(cfg.Backend)),
		zap.String("session_id", rt.Server.SessionID()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopClose := context.AfterFunc(ctx, func() { _ = tr.Close() })
	defer stopClose()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return tr.Serve(ctx, rt.Server.HandleMessage)
	})
	if loader.ConfigFile() != "" {
		current := cfg
		g.Go(func() error {
			return loader.Watch(ctx, log.Named("config"), func(next *config.Config) {
				rt.Apply(current, next, log)
				current = next
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server shutdown complete")
	return nil
}
