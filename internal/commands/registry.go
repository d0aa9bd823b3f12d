package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/extpipe/internal/observability"
	"github.com/danmuck/extpipe/internal/protocol/schema"
	"github.com/rs/zerolog"
)

var (
	ErrUnknownCommand = errors.New("commands: unknown command")
	ErrCommandExists  = errors.New("commands: command already registered")
	ErrInvalidCommand = errors.New("commands: invalid command metadata")
	ErrNilHandler     = errors.New("commands: handler is nil")
	ErrArgCount       = errors.New("commands: argument count mismatch")
	ErrArgType        = errors.New("commands: argument type mismatch")
	ErrHandlerPanic   = errors.New("commands: handler panicked")
)

// Dispatch results recorded in metrics.
const (
	ResultOK      = "ok"
	ResultUnknown = "unknown"
	ResultBadArgs = "bad_args"
	ResultFailed  = "failed"
)

// Announcer delivers addon packages to the host. *pipe.Client satisfies it.
type Announcer interface {
	SendPackage(ctx context.Context, kind string, payload any) error
}

// Command is the recorded metadata for one registered handler.
type Command struct {
	ID       string
	Title    string
	ArgTypes []string
}

type entry struct {
	meta    Command
	handler Handler
}

// Registry stores command handlers by id.
type Registry struct {
	announcer Announcer
	log       zerolog.Logger

	mu    sync.RWMutex
	items map[string]entry
}

// NewRegistry creates an empty registry. A nil announcer registers locally
// without telling the host.
func NewRegistry(announcer Announcer, logger zerolog.Logger) *Registry {
	return &Registry{
		announcer: announcer,
		log:       logger,
		items:     make(map[string]entry),
	}
}

// RegisterHandler announces the command to the host and records h. The
// handler is only recorded once the host confirmed the announcement.
func (r *Registry) RegisterHandler(ctx context.Context, id, title string, h Handler) error {
	id = strings.TrimSpace(id)
	title = strings.TrimSpace(title)
	if id == "" || title == "" {
		return fmt.Errorf("%w: id and title are required", ErrInvalidCommand)
	}
	if h == nil {
		return ErrNilHandler
	}
	meta := Command{ID: id, Title: title, ArgTypes: typeNames(h.ArgTypes())}

	r.mu.RLock()
	_, exists := r.items[id]
	r.mu.RUnlock()
	if exists {
		return fmt.Errorf("%w: %s", ErrCommandExists, id)
	}

	if r.announcer != nil {
		addon, err := schema.NewCommandAddon(schema.CommandAddon{
			CommandID:       meta.ID,
			CommandName:     meta.Title,
			CommandArgTypes: meta.ArgTypes,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		if err := r.announcer.SendPackage(ctx, schema.KindAddon, addon); err != nil {
			return fmt.Errorf("commands: announce %s: %w", id, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; ok {
		return fmt.Errorf("%w: %s", ErrCommandExists, id)
	}
	r.items[id] = entry{meta: meta, handler: h}
	r.log.Info().Str("command_id", id).Strs("arg_types", meta.ArgTypes).Msg("command registered")
	return nil
}

// Resolve returns command metadata by id.
func (r *Registry) Resolve(id string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.items[id]
	return e.meta, ok
}

// List returns deterministic metadata ordering by id.
func (r *Registry) List() []Command {
	r.mu.RLock()
	list := make([]Command, 0, len(r.items))
	for _, e := range r.items {
		list = append(list, e.meta)
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list
}

// Dispatch decodes args against the handler's recorded types and invokes
// it. Unknown ids yield ErrUnknownCommand; handler panics are returned as
// ErrHandlerPanic.
func (r *Registry) Dispatch(ctx context.Context, id string, args []json.RawMessage) (err error) {
	r.mu.RLock()
	e, ok := r.items[id]
	r.mu.RUnlock()
	if !ok {
		observability.RecordDispatch("", ResultUnknown)
		r.log.Warn().Str("command_id", id).Msg("unknown command")
		return fmt.Errorf("%w: %s", ErrUnknownCommand, id)
	}

	values, err := decodeArgs(e.handler.ArgTypes(), args)
	if err != nil {
		observability.RecordDispatch(id, ResultBadArgs)
		r.log.Warn().Err(err).Str("command_id", id).Msg("command rejected")
		return err
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %s: %v", ErrHandlerPanic, id, rec)
		}
		result := ResultOK
		if err != nil {
			result = ResultFailed
			r.log.Error().Err(err).Str("command_id", id).Msg("command failed")
		}
		observability.RecordDispatch(id, result)
	}()
	return e.handler.Invoke(ctx, values)
}

// DispatchPackage decodes a command package body and dispatches it.
func (r *Registry) DispatchPackage(ctx context.Context, data []byte) error {
	cmd, err := schema.DecodeCommand(data)
	if err != nil {
		return err
	}
	return r.Dispatch(ctx, cmd.CommandID, cmd.CommandArgs)
}

func decodeArgs(types []reflect.Type, args []json.RawMessage) ([]any, error) {
	if len(args) != len(types) {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrArgCount, len(types), len(args))
	}
	values := make([]any, len(types))
	for i, t := range types {
		ptr := reflect.New(t)
		dec := json.NewDecoder(bytes.NewReader(args[i]))
		dec.DisallowUnknownFields()
		if err := dec.Decode(ptr.Interface()); err != nil {
			return nil, fmt.Errorf("%w: arg %d want %s: %v", ErrArgType, i, t, err)
		}
		values[i] = ptr.Elem().Interface()
	}
	return values, nil
}
