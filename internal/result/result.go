// Package result carries the domain outcome of a query or command across
// the handler/controller boundary without using errors for expected cases.
package result

// Kind classifies a Result.
type Kind int

// Result kinds.
const (
	KindSuccess Kind = iota
	KindNotFound
	KindInvalid
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Result is either a successful value or a failure kind with a message.
type Result[T any] struct {
	Kind    Kind
	Value   T
	Message string
}

// Success wraps a value.
func Success[T any](v T) Result[T] {
	return Result[T]{Kind: KindSuccess, Value: v}
}

// NotFound reports a missing entity.
func NotFound[T any](msg string) Result[T] {
	return Result[T]{Kind: KindNotFound, Message: msg}
}

// Invalid reports a validation failure.
func Invalid[T any](msg string) Result[T] {
	return Result[T]{Kind: KindInvalid, Message: msg}
}

// Conflict reports a clash with existing state.
func Conflict[T any](msg string) Result[T] {
	return Result[T]{Kind: KindConflict, Message: msg}
}

// IsSuccess reports whether r holds a value.
func (r Result[T]) IsSuccess() bool {
	return r.Kind == KindSuccess
}

// Outcome names the result kind for logging.
func (r Result[T]) Outcome() string {
	return r.Kind.String()
}
