package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/extpipe/internal/extension"
	"github.com/danmuck/extpipe/internal/logging"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "extctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath  string
		pipeName    string
		clientID    string
		adminListen string
		logLevel    string
	)
	flagSet := pflag.NewFlagSet("extctl", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	flagSet.StringVar(&pipeName, "pipe", "", "host pipe name (default "+defaultPipeName+")")
	flagSet.StringVar(&clientID, "id", "", "client id announced to the host")
	flagSet.StringVar(&adminListen, "admin", "", "admin HTTP listen address; empty disables it")
	flagSet.StringVar(&logLevel, "log-level", "", "log level override")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg := defaultAppConfig()
	if configPath != "" {
		loaded, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if flagSet.Changed("pipe") {
		cfg.Pipe.PipeName = strings.TrimSpace(pipeName)
	}
	if flagSet.Changed("id") {
		cfg.Pipe.ClientID = strings.TrimSpace(clientID)
	}
	if flagSet.Changed("admin") {
		cfg.AdminListen = strings.TrimSpace(adminListen)
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	logger := logging.ConfigureRuntime("extctl")
	if cfg.LogLevel != "" {
		level, ok := logging.ParseLevel(cfg.LogLevel)
		if !ok {
			return fmt.Errorf("unknown log level %q", cfg.LogLevel)
		}
		logger = logger.Level(level)
	}
	cfg.Pipe.Logger = logger

	host, err := extension.New(&helloExtension{log: logger}, extension.Config{
		Pipe: cfg.Pipe,
		Args: flagSet.Args(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.AdminListen != "" {
		adminCtx, cancelAdmin := context.WithCancel(ctx)
		defer cancelAdmin()
		router := newAdminRouter(host, logger)
		go func() {
			if err := serveAdmin(adminCtx, cfg.AdminListen, router, logger); err != nil {
				logger.Error().Err(err).Msg("admin server failed")
			}
		}()
	}

	logger.Info().Str("pipe", cfg.Pipe.PipeName).Str("client_id", cfg.Pipe.ClientID).Msg("extension starting")
	return host.Run(ctx)
}
