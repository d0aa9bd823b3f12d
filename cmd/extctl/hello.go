package main

import (
	"context"
	"fmt"

	"github.com/danmuck/extpipe/internal/commands"
	"github.com/danmuck/extpipe/internal/extension"
	"github.com/rs/zerolog"
)

const helloCommandID = "extctl.hello"

// helloExtension registers one command that greets back over the control
// channel.
type helloExtension struct {
	log        zerolog.Logger
	registered bool
}

func (e *helloExtension) Activate(ctx context.Context, ec *extension.Context) error {
	if e.registered {
		return nil
	}
	client := ec.Client
	err := ec.Commands.RegisterHandler(ctx, helloCommandID, "Say Hello", commands.Func1(func(ctx context.Context, name string) error {
		e.log.Info().Str("name", name).Msg("hello")
		return client.SendString(fmt.Sprintf("hello, %s", name))
	}))
	if err != nil {
		return err
	}
	e.registered = true
	return nil
}

func (e *helloExtension) Deactivate() {
	e.log.Info().Msg("hello extension deactivated")
}
