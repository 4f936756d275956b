// Copyright 2025 Joseph Cumines
//
// Process bootstrap shared by the command line tools

// Package cli wires a loaded configuration into a running MCP server: the
// logger, the desktop backend, and the server with its registry, audit log
// and metrics.
package cli

import (
	"fmt"
	"os"

	"github.com/joeycumines/WindowsUseSDK/internal/config"
	"github.com/joeycumines/WindowsUseSDK/internal/desktop"
	"github.com/joeycumines/WindowsUseSDK/internal/desktop/remote"
	"github.com/joeycumines/WindowsUseSDK/internal/desktop/sim"
	"github.com/joeycumines/WindowsUseSDK/internal/registry"
	"github.com/joeycumines/WindowsUseSDK/internal/server"
	"github.com/joeycumines/WindowsUseSDK/internal/transport"
	"github.com/joeycumines/WindowsUseSDK/internal/wait"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a JSON logger on stderr, or a console logger at debug
// level when debug is set. Stdout belongs to the stdio transport.
func NewLogger(debug bool) (*zap.Logger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// OpenDesktop opens the backend cfg selects. The caller closes it.
func OpenDesktop(cfg *config.Config, log *zap.Logger) (desktop.Desktop, error) {
	switch cfg.Backend {
	case config.BackendSim:
		var profile *sim.Profile
		if cfg.SimProfile != "" {
			var err error
			if profile, err = sim.LoadProfile(cfg.SimProfile); err != nil {
				return nil, fmt.Errorf("failed to load sim profile: %w", err)
			}
		}
		d, err := sim.New(profile, sim.WithLogger(log.Named("sim")))
		if err != nil {
			return nil, fmt.Errorf("failed to start simulated desktop: %w", err)
		}
		log.Info("using simulated desktop", zap.String("profile", cfg.SimProfile))
		return d, nil

	case config.BackendRemote:
		c, err := remote.Dial(remote.DialConfig{
			Address:  cfg.ServerAddr,
			CertFile: cfg.ServerCertFile,
			TLS:      cfg.ServerTLS,
		}, remote.WithOperationPollInterval(cfg.PollInterval))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to desktop agent: %w", err)
		}
		log.Info("using desktop agent", zap.String("address", cfg.ServerAddr), zap.Bool("tls", cfg.ServerTLS))
		return c, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// Runtime is a server built from a configuration.
type Runtime struct {
	Server  *server.MCPServer
	Metrics *transport.Metrics
}

// NewRuntime builds the MCP server over desk. The server owns desk once this
// returns successfully.
func NewRuntime(cfg *config.Config, desk desktop.Desktop, log *zap.Logger) (*Runtime, error) {
	audit, err := server.NewAuditLogger(cfg.AuditLogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	regCfg := registry.DefaultConfig()
	regCfg.Grace = cfg.StubGrace
	metrics := transport.NewMetrics()

	s := server.NewMCPServer(desk,
		server.WithLogger(log),
		server.WithAuditLogger(audit),
		server.WithMetrics(metrics),
		server.WithRequestTimeout(cfg.RequestTimeout),
		server.WithRegistry(registry.New(desk,
			registry.WithLogger(log.Named("registry")),
			registry.WithConfig(regCfg),
		)),
		server.WithWaitEngine(wait.NewEngine(cfg.PollInterval, log.Named("wait"))),
	)
	return &Runtime{Server: s, Metrics: metrics}, nil
}

// Apply updates the settings that can change while running. Everything else
// needs a restart, which is logged.
func (r *Runtime) Apply(prev, next *config.Config, log *zap.Logger) {
	r.Server.SetRequestTimeout(next.RequestTimeout)
	r.Server.SetPollInterval(next.PollInterval)
	log.Info("applied configuration",
		zap.Duration("request_timeout", next.RequestTimeout),
		zap.Duration("poll_interval", next.PollInterval))

	restart := *next
	restart.RequestTimeout = prev.RequestTimeout
	restart.PollInterval = prev.PollInterval
	if restart != *prev {
		log.Warn("some configuration changes take effect after a restart")
	}
}

// Transport returns the transport cfg selects.
func (r *Runtime) Transport(cfg *config.Config, log *zap.Logger) transport.Transport {
	if cfg.Transport == config.TransportHTTP {
		return transport.NewHTTPTransport(&transport.HTTPTransportConfig{
			Metrics:      r.Metrics,
			Logger:       log.Named("http"),
			Address:      cfg.HTTPAddress,
			SocketPath:   cfg.HTTPSocketPath,
			CORSOrigin:   cfg.CORSOrigin,
			APIKey:       cfg.APIKey,
			TLSCertFile:  cfg.TLSCertFile,
			TLSKeyFile:   cfg.TLSKeyFile,
			RateLimit:    cfg.RateLimit,
			RateBurst:    cfg.RateBurst,
			ReadTimeout:  cfg.HTTPReadTimeout,
			WriteTimeout: cfg.HTTPWriteTimeout,
		})
	}
	return transport.NewStdioTransport(os.Stdin, os.Stdout, log.Named("stdio"))
}
