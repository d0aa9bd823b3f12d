package commands

import (
	"context"
	"reflect"
)

// Handler is a command callback with fixed argument types.
type Handler interface {
	ArgTypes() []reflect.Type
	Invoke(ctx context.Context, args []any) error
}

type funcHandler struct {
	types []reflect.Type
	call  func(ctx context.Context, args []any) error
}

func (h funcHandler) ArgTypes() []reflect.Type {
	return h.types
}

func (h funcHandler) Invoke(ctx context.Context, args []any) error {
	return h.call(ctx, args)
}

// Func0 wraps a command that takes no arguments.
func Func0(fn func(ctx context.Context) error) Handler {
	if fn == nil {
		return nil
	}
	return funcHandler{
		call: func(ctx context.Context, _ []any) error { return fn(ctx) },
	}
}

func Func1[A any](fn func(ctx context.Context, a A) error) Handler {
	if fn == nil {
		return nil
	}
	return funcHandler{
		types: []reflect.Type{typeFor[A]()},
		call: func(ctx context.Context, args []any) error {
			return fn(ctx, arg[A](args[0]))
		},
	}
}

func Func2[A, B any](fn func(ctx context.Context, a A, b B) error) Handler {
	if fn == nil {
		return nil
	}
	return funcHandler{
		types: []reflect.Type{typeFor[A](), typeFor[B]()},
		call: func(ctx context.Context, args []any) error {
			return fn(ctx, arg[A](args[0]), arg[B](args[1]))
		},
	}
}

func Func3[A, B, C any](fn func(ctx context.Context, a A, b B, c C) error) Handler {
	if fn == nil {
		return nil
	}
	return funcHandler{
		types: []reflect.Type{typeFor[A](), typeFor[B](), typeFor[C]()},
		call: func(ctx context.Context, args []any) error {
			return fn(ctx, arg[A](args[0]), arg[B](args[1]), arg[C](args[2]))
		},
	}
}

// arg converts a decoded value, mapping a JSON null interface to A's zero.
func arg[A any](v any) A {
	if v == nil {
		var zero A
		return zero
	}
	return v.(A)
}

func typeNames(types []reflect.Type) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return names
}

// typeFor mirrors reflect.TypeFor (Go 1.22+) for older toolchains.
func typeFor[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
