// Package extension runs one extension process against the host: it owns the
// pipe client, the command registry and the message/package pump.
package extension

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/danmuck/extpipe/internal/commands"
	"github.com/danmuck/extpipe/internal/pipe"
	"github.com/danmuck/extpipe/internal/protocol/schema"
	"github.com/danmuck/extpipe/internal/protocol/session"
	"github.com/rs/zerolog"
)

// KeywordActivate asks a running extension to activate again.
const KeywordActivate = "activate"

var ErrSessionLost = errors.New("extension: host session lost")

// Extension is implemented by extension authors.
type Extension interface {
	Activate(ctx context.Context, ec *Context) error
	Deactivate()
}

// Context is handed to Activate.
type Context struct {
	ClientID string
	Args     []string
	Commands *commands.Registry
	Client   *pipe.Client
}

// PackageHandler receives packages that are not commands.
type PackageHandler func(ctx context.Context, pkg pipe.Package)

type Config struct {
	Pipe pipe.Config
	Args []string
	// OnPackage is optional.
	OnPackage PackageHandler
}

// Host drives one Extension.
type Host struct {
	ext       Extension
	client    *pipe.Client
	ectx      *Context
	onPackage PackageHandler
	log       zerolog.Logger

	activations atomic.Int32
	stopOnce    sync.Once
}

func New(ext Extension, cfg Config) (*Host, error) {
	if ext == nil {
		return nil, errors.New("extension: extension is nil")
	}
	client, err := pipe.New(cfg.Pipe)
	if err != nil {
		return nil, err
	}
	log := cfg.Pipe.Logger.With().Str("client_id", cfg.Pipe.ClientID).Logger()
	return &Host{
		ext:    ext,
		client: client,
		ectx: &Context{
			ClientID: cfg.Pipe.ClientID,
			Args:     cfg.Args,
			Commands: commands.NewRegistry(client, log),
			Client:   client,
		},
		onPackage: cfg.OnPackage,
		log:       log,
	}, nil
}

func (h *Host) Client() *pipe.Client {
	return h.client
}

func (h *Host) Context() *Context {
	return h.ectx
}

// Activations counts successful Activate calls.
func (h *Host) Activations() int {
	return int(h.activations.Load())
}

// Activate connects to the host and activates the extension.
func (h *Host) Activate(ctx context.Context) error {
	if err := h.client.Initialize(ctx); err != nil {
		return err
	}
	return h.activate(ctx)
}

func (h *Host) activate(ctx context.Context) error {
	if err := h.ext.Activate(ctx, h.ectx); err != nil {
		return fmt.Errorf("extension: activate: %w", err)
	}
	n := h.activations.Add(1)
	h.log.Info().Int32("activation", n).Msg("extension activated")
	return nil
}

// Stop tears the session down with ExitOK and deactivates the extension.
func (h *Host) Stop() {
	h.stopOnce.Do(func() {
		h.client.Stop(pipe.ExitOK)
		h.ext.Deactivate()
		h.log.Info().Msg("extension stopped")
	})
}

// Run activates the extension and pumps host traffic until the session ends
// or ctx is canceled. A session lost with a non-zero exit code is reported as
// ErrSessionLost.
func (h *Host) Run(ctx context.Context) error {
	if err := h.Activate(ctx); err != nil {
		h.Stop()
		return err
	}
	defer h.Stop()

	messages, packages := h.client.Messages(), h.client.Packages()
	for messages != nil || packages != nil {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			h.OnMessage(ctx, msg)
		case pkg, ok := <-packages:
			if !ok {
				packages = nil
				continue
			}
			h.OnPackageReceived(ctx, pkg)
		}
	}
	<-h.client.Done()
	if code := h.client.ExitCode(); code != pipe.ExitOK {
		return fmt.Errorf("%w: exit code %d", ErrSessionLost, code)
	}
	return nil
}

// OnMessage handles one control message from the host.
func (h *Host) OnMessage(ctx context.Context, msg string) {
	if !session.Is(msg, KeywordActivate) {
		h.log.Debug().Str("message", msg).Msg("message ignored")
		return
	}
	if err := h.activate(ctx); err != nil {
		h.log.Error().Err(err).Msg("activation failed")
	}
}

// OnPackageReceived dispatches command packages to the registry and hands
// every other kind to the configured package handler.
func (h *Host) OnPackageReceived(ctx context.Context, pkg pipe.Package) {
	switch pkg.PackageID {
	case schema.KindCommand:
		if err := h.ectx.Commands.DispatchPackage(ctx, pkg.Data); err != nil {
			h.log.Warn().Err(err).Msg("command package not handled")
		}
	default:
		if h.onPackage == nil {
			h.log.Debug().Str("package_id", pkg.PackageID).Msg("package ignored")
			return
		}
		h.onPackage(ctx, pkg)
	}
}
