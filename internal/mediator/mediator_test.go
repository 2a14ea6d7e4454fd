package mediator

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/dotpost/internal/result"
)

type echoQuery struct{ Text string }

type countQuery struct{}

func TestSendRoutesByRequestType(t *testing.T) {
	m := New()
	Register[echoQuery, string](m, HandlerFunc[echoQuery, string](func(_ context.Context, q echoQuery) (string, error) {
		return "echo:" + q.Text, nil
	}))
	Register[countQuery, int](m, HandlerFunc[countQuery, int](func(context.Context, countQuery) (int, error) {
		return 7, nil
	}))

	s, err := Send[echoQuery, string](context.Background(), m, echoQuery{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", s)

	n, err := Send[countQuery, int](context.Background(), m, countQuery{})
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestSendWithoutHandler(t *testing.T) {
	_, err := Send[echoQuery, string](context.Background(), New(), echoQuery{})
	assert.ErrorIs(t, err, ErrNoHandler)
}

func TestSendResponseMismatch(t *testing.T) {
	m := New()
	Register[echoQuery, string](m, HandlerFunc[echoQuery, string](func(context.Context, echoQuery) (string, error) {
		return "", nil
	}))
	_, err := Send[echoQuery, int](context.Background(), m, echoQuery{})
	assert.ErrorIs(t, err, ErrHandlerMismatch)
}

func TestRegisterTwicePanics(t *testing.T) {
	m := New()
	h := HandlerFunc[echoQuery, string](func(context.Context, echoQuery) (string, error) { return "", nil })
	Register[echoQuery, string](m, h)
	assert.Panics(t, func() { Register[echoQuery, string](m, h) })
}

func TestBehaviorOrder(t *testing.T) {
	var calls []string
	trace := func(tag string) Behavior {
		return func(ctx context.Context, name string, next Next) (any, error) {
			calls = append(calls, tag+">"+name)
			out, err := next(ctx)
			calls = append(calls, tag+"<")
			return out, err
		}
	}
	m := New(trace("outer"), trace("inner"))
	Register[countQuery, int](m, HandlerFunc[countQuery, int](func(context.Context, countQuery) (int, error) {
		calls = append(calls, "handler")
		return 1, nil
	}))

	_, err := Send[countQuery, int](context.Background(), m, countQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"outer>mediator.countQuery",
		"inner>mediator.countQuery",
		"handler",
		"inner<",
		"outer<",
	}, calls)
}

func TestLoggingBehavior(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	m := New(Logging(logger))
	Register[echoQuery, result.Result[string]](m, HandlerFunc[echoQuery, result.Result[string]](func(context.Context, echoQuery) (result.Result[string], error) {
		return result.NotFound[string]("missing"), nil
	}))
	boom := errors.New("boom")
	Register[countQuery, int](m, HandlerFunc[countQuery, int](func(context.Context, countQuery) (int, error) {
		return 0, boom
	}))

	res, err := Send[echoQuery, result.Result[string]](context.Background(), m, echoQuery{})
	require.NoError(t, err)
	assert.Equal(t, result.KindNotFound, res.Kind)
	assert.Contains(t, buf.String(), `"outcome":"not_found"`)

	_, err = Send[countQuery, int](context.Background(), m, countQuery{})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, buf.String(), "dispatch failed")
}
