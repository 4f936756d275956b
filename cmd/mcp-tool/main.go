// Copyright 2025 Joseph Cumines
//
// Command line client for the desktop automation tools, without an MCP peer

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/WindowsUseSDK/internal/cli"
	"github.com/joeycumines/WindowsUseSDK/internal/config"
	"github.com/joeycumines/WindowsUseSDK/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// errToolFailed is returned when any invoked tool reports an error.
var errToolFailed = errors.New("tool call failed")

func main() {
	if err := newCommand(os.Stdin, os.Stdout).Execute(); err != nil {
		if !errors.Is(err, errToolFailed) {
			fmt.Fprintf(os.Stderr, "mcp-tool: %v\n", err)
		}
		os.Exit(1)
	}
}

func newCommand(stdin io.Reader, stdout io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "mcp-tool",
		Short:         "Invoke desktop automation tools directly",
		Version:       server.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the tools and their input schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServer(cmd, func(ctx context.Context, s *server.MCPServer) error {
				enc := json.NewEncoder(stdout)
				for _, t := range s.Tools() {
					if err := enc.Encode(map[string]any{
						"name":        t.Name,
						"description": t.Description,
						"inputSchema": t.InputSchema,
					}); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	call := &cobra.Command{
		Use:   "call TOOL [ARGUMENTS_JSON]",
		Short: "Invoke one tool and print its result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv := server.ToolInvocation{Name: args[0]}
			if len(args) == 2 {
				inv.Arguments = json.RawMessage(args[1])
			}
			return withServer(cmd, func(ctx context.Context, s *server.MCPServer) error {
				return invoke(ctx, s, inv, stdout)
			})
		},
	}

	run := &cobra.Command{
		Use:   "run",
		Short: `Invoke tools read from stdin, one {"name":...,"arguments":{...}} per line`,
		Long: "Invoke tools read from stdin, one JSON object per line, against a single " +
			"desktop session, printing one result per line. Stops at the first failure " +
			"unless --keep-going is set.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keepGoing, _ := cmd.Flags().GetBool("keep-going")
			return withServer(cmd, func(ctx context.Context, s *server.MCPServer) error {
				return script(ctx, s, stdin, stdout, keepGoing)
			})
		},
	}
	run.Flags().Bool("keep-going", false, "continue after a failed call")

	for _, c := range []*cobra.Command{list, call, run} {
		config.AddFlags(c)
		root.AddCommand(c)
	}
	return root
}

// withServer builds a server from the command's configuration, runs fn and
// shuts the server down.
func withServer(cmd *cobra.Command, fn func(ctx context.Context, s *server.MCPServer) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := cli.NewLogger(cfg.Debug)
	if err != nil {
		return err
	}
	if !cfg.Debug {
		log = log.WithOptions(zap.IncreaseLevel(zap.WarnLevel))
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
	defer func() { _ = rt.Server.Shutdown() }()
	return fn(ctx, rt.Server)
}

func invoke(ctx context.Context, s *server.MCPServer, inv server.ToolInvocation, w io.Writer) error {
	res := s.Invoke(ctx, inv)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		return err
	}
	if res.IsError {
		return errToolFailed
	}
	return nil
}

func script(ctx context.Context, s *server.MCPServer, r io.Reader, w io.Writer, keepGoing bool) error {
	var failed bool
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var inv server.ToolInvocation
		if err := json.Unmarshal(sc.Bytes(), &inv); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		err := invoke(ctx, s, inv, w)
		switch {
		case errors.Is(err, errToolFailed):
			failed = true
			if !keepGoing {
				return err
			}
		case err != nil:
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if failed {
		return errToolFailed
	}
	return nil
}
