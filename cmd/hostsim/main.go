// Command hostsim serves the host side of the extension pipe for manual
// testing of extensions.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/extpipe/internal/hostsim"
	"github.com/danmuck/extpipe/internal/logging"
	"github.com/danmuck/extpipe/internal/pipe"
	"github.com/danmuck/extpipe/internal/protocol/schema"
	"github.com/danmuck/extpipe/internal/protocol/session"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "hostsim: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		pipeName string
		invoke   string
		activate bool
	)
	flagSet := pflag.NewFlagSet("hostsim", pflag.ContinueOnError)
	flagSet.StringVar(&pipeName, "pipe", "extensionPipe", "pipe name to serve")
	flagSet.StringVar(&invoke, "invoke", "", "argument passed to every announced single-string command")
	flagSet.BoolVar(&activate, "activate", false, "send activate after the extension's first package exchange")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logger := logging.ConfigureRuntime("hostsim")
	ln, err := pipe.Listen(pipeName)
	if err != nil {
		return fmt.Errorf("listen %s: %w", pipe.PipePath(pipeName), err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("pipe", pipe.PipePath(pipeName)).Msg("host listening")
	s := &sessionScript{log: logger, invoke: invoke, activate: activate}
	return hostsim.Serve(ctx, ln, logger, s.handle)
}

type sessionScript struct {
	log      zerolog.Logger
	invoke   string
	activate bool
}

func (s *sessionScript) handle(ctx context.Context, p *hostsim.Peer) error {
	id, err := p.Handshake()
	if err != nil {
		return err
	}
	log := s.log.With().Str("client_id", id).Logger()
	log.Info().Msg("extension connected")

	// activate goes out only between exchanges. Sent earlier it would be
	// read as the reply to the extension's first package header.
	activatePending := s.activate
	for {
		line, err := p.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Info().Msg("extension disconnected")
				return nil
			}
			return err
		}
		switch {
		case strings.HasPrefix(line, "STOP:"):
			log.Info().Str("line", line).Msg("extension stopped")
			return nil
		case session.Classify(line) == session.LinePackage:
			if err := s.acceptPackage(p, line, log); err != nil {
				return err
			}
			if activatePending {
				activatePending = false
				if err := p.WriteLine("activate"); err != nil {
					return err
				}
			}
		default:
			log.Info().Str("line", line).Msg("message")
		}
	}
}

func (s *sessionScript) acceptPackage(p *hostsim.Peer, line string, log zerolog.Logger) error {
	hdr, err := session.ParsePackageHeader(line)
	if err != nil {
		log.Warn().Err(err).Str("line", line).Msg("bad package header")
		return nil
	}
	env, err := p.AcceptBody(hdr)
	if err != nil {
		return err
	}
	log.Info().Str("package_id", env.PackageID).Int("size", env.PackageSize).Msg("package received")
	if env.PackageID != schema.KindAddon || s.invoke == "" {
		return nil
	}

	var addon schema.AddonPackage
	if err := json.Unmarshal(env.PackageData, &addon); err != nil {
		log.Warn().Err(err).Msg("addon undecodable")
		return nil
	}
	cmd, err := schema.DecodeCommandAddon(addon)
	if err != nil {
		log.Warn().Err(err).Msg("addon rejected")
		return nil
	}
	if len(cmd.CommandArgTypes) != 1 || cmd.CommandArgTypes[0] != "string" {
		return nil
	}
	arg, err := json.Marshal(s.invoke)
	if err != nil {
		return err
	}
	body, err := json.Marshal(schema.CommandPackage{CommandID: cmd.CommandID, CommandArgs: []json.RawMessage{arg}})
	if err != nil {
		return err
	}
	log.Info().Str("command_id", cmd.CommandID).Msg("invoking command")
	return p.PushPackage(schema.KindCommand, body)
}
