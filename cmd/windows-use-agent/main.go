// Copyright 2025 Joseph Cumines
//
// Desktop agent - serves a desktop backend over gRPC to windows-use-mcp

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/WindowsUseSDK/internal/cli"
	"github.com/joeycumines/WindowsUseSDK/internal/desktop/remote"
	"github.com/joeycumines/WindowsUseSDK/internal/desktop/sim"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/reflection"
)

type options struct {
	address  string
	profile  string
	certFile string
	keyFile  string
	debug    bool
}

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "windows-use-agent",
		Short:         "Serve the simulated desktop over gRPC",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := run(ctx, opts); err != nil {
				fmt.Fprintf(os.Stderr, "windows-use-agent: %v\n", err)
				return err
			}
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&opts.address, "listen", "localhost:50051", "gRPC listen address")
	fs.StringVar(&opts.profile, "sim-profile", "", "YAML profile for the simulated desktop (default: built in)")
	fs.StringVar(&opts.certFile, "tls-cert-file", "", "TLS certificate")
	fs.StringVar(&opts.keyFile, "tls-key-file", "", "TLS private key")
	fs.BoolVar(&opts.debug, "debug", false, "development logging")
	return cmd
}

func run(ctx context.Context, opts options) error {
	log, err := cli.NewLogger(opts.debug)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	var profile *sim.Profile
	if opts.profile != "" {
		if profile, err = sim.LoadProfile(opts.profile); err != nil {
			return fmt.Errorf("failed to load sim profile: %w", err)
		}
	}
	desk, err := sim.New(profile, sim.WithLogger(log.Named("sim")))
	if err != nil {
		return err
	}
	defer desk.Close()

	var serverOpts []grpc.ServerOption
	if opts.certFile != "" || opts.keyFile != "" {
		creds, err := credentials.NewServerTLSFromFile(opts.certFile, opts.keyFile)
		if err != nil {
			return fmt.Errorf("failed to load TLS credentials: %w", err)
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
	}
	serverOpts = append(serverOpts, grpc.ChainUnaryInterceptor(remote.UnaryServerLogger(log.Named("grpc"))))

	gs := grpc.NewServer(serverOpts...)
	svc := remote.NewServer(desk, remote.WithServerLogger(log))
	svc.Register(gs)
	reflection.Register(gs)
	defer svc.Close()

	ln, err := net.Listen("tcp", opts.address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	log.Info("desktop agent listening", zap.String("address", ln.Addr().String()))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return gs.Serve(ln) })
	g.Go(func() error {
		<-ctx.Done()
		gs.GracefulStop()
		return nil
	})
	return g.Wait()
}
