// Package mediator routes query and command objects to the single handler
// registered for their type, so controllers never reference handlers directly.
package mediator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Dispatch errors.
var (
	ErrNoHandler       = errors.New("no handler registered")
	ErrHandlerMismatch = errors.New("handler response type mismatch")
)

// Handler handles one request type.
type Handler[Req, Resp any] interface {
	Handle(ctx context.Context, req Req) (Resp, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Handle calls f.
func (f HandlerFunc[Req, Resp]) Handle(ctx context.Context, req Req) (Resp, error) {
	return f(ctx, req)
}

// Next invokes the rest of the pipeline.
type Next func(ctx context.Context) (any, error)

// Behavior wraps every dispatch. name is the request type name.
type Behavior func(ctx context.Context, name string, next Next) (any, error)

// Mediator holds the handler table and pipeline behaviours.
type Mediator struct {
	mu        sync.RWMutex
	handlers  map[reflect.Type]any
	behaviors []Behavior
}

// New creates a mediator. Behaviours run outermost first.
func New(behaviors ...Behavior) *Mediator {
	return &Mediator{
		handlers:  make(map[reflect.Type]any),
		behaviors: behaviors,
	}
}

// Register binds h to requests of type Req. Registering the same request
// type twice is a wiring bug and panics.
func Register[Req, Resp any](m *Mediator, h Handler[Req, Resp]) {
	t := reflect.TypeOf((*Req)(nil)).Elem()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.handlers[t]; dup {
		panic(fmt.Sprintf("mediator: handler for %s already registered", t))
	}
	m.handlers[t] = h
}

// Send dispatches req to its handler through the behaviour pipeline.
func Send[Req, Resp any](ctx context.Context, m *Mediator, req Req) (Resp, error) {
	var zero Resp
	t := reflect.TypeOf((*Req)(nil)).Elem()

	m.mu.RLock()
	raw, ok := m.handlers[t]
	m.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("%w for %s", ErrNoHandler, t)
	}
	h, ok := raw.(Handler[Req, Resp])
	if !ok {
		return zero, fmt.Errorf("%w: %s does not return %s", ErrHandlerMismatch, t, reflect.TypeOf((*Resp)(nil)).Elem())
	}

	next := Next(func(ctx context.Context) (any, error) {
		return h.Handle(ctx, req)
	})
	name := t.String()
	for i := len(m.behaviors) - 1; i >= 0; i-- {
		b, inner := m.behaviors[i], next
		next = func(ctx context.Context) (any, error) {
			return b(ctx, name, inner)
		}
	}

	out, err := next(ctx)
	if err != nil {
		return zero, err
	}
	resp, ok := out.(Resp)
	if !ok {
		return zero, fmt.Errorf("%w: behaviour replaced %s response", ErrHandlerMismatch, name)
	}
	return resp, nil
}

type outcomer interface {
	Outcome() string
}

// Logging logs each dispatch with its duration and outcome.
func Logging(logger zerolog.Logger) Behavior {
	return func(ctx context.Context, name string, next Next) (any, error) {
		start := time.Now()
		out, err := next(ctx)
		if err != nil {
			logger.Error().Err(err).Str("request", name).Dur("elapsed", time.Since(start)).Msg("dispatch failed")
			return out, err
		}
		ev := logger.Debug().Str("request", name).Dur("elapsed", time.Since(start))
		if o, ok := out.(outcomer); ok {
			ev = ev.Str("outcome", o.Outcome())
		}
		ev.Msg("dispatched")
		return out, nil
	}
}
