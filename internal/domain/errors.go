package domain

import (
	"context"
	"errors"
	"fmt"
)

// Error categories. Everything that crosses a component boundary wraps one of these.
var (
	ErrInvalidInput   = fmt.Errorf("invalid input")
	ErrNotFound       = fmt.Errorf("not found")
	ErrDuplicateName  = fmt.Errorf("duplicate name")
	ErrClassification = fmt.Errorf("unrecognized classification")
	ErrToolExecution  = fmt.Errorf("tool execution failed")
	ErrMissingContext = fmt.Errorf("missing user context")
	ErrService        = fmt.Errorf("language model unavailable")
	ErrRateLimit      = fmt.Errorf("rate limit exceeded")
	ErrTimeout        = fmt.Errorf("operation timed out")
)

// Error wraps a category sentinel with the operation that failed and a
// detail message. Detail is written for end users when the category is
// ErrToolExecution or ErrMissingContext.
type Error struct {
	Op     string
	Err    error
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(op string, err error, detail string) *Error {
	return &Error{Op: op, Err: err, Detail: detail}
}

// Kind is the machine-readable error category carried on an Answer.
type Kind string

const (
	KindNone           Kind = ""
	KindInvalidInput   Kind = "InvalidInputError"
	KindNotFound       Kind = "NotFoundError"
	KindDuplicateName  Kind = "DuplicateNameError"
	KindClassification Kind = "ClassificationError"
	KindToolExecution  Kind = "ToolExecutionError"
	KindMissingContext Kind = "MissingContextError"
	KindService        Kind = "ServiceError"
	KindRateLimit      Kind = "RateLimitError"
	KindTimeout        Kind = "TimeoutError"
	KindCanceled       Kind = "CanceledError"
	KindNoMatch        Kind = "NoMatch"
	KindInternal       Kind = "InternalError"
)

var kindMap = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidInput, KindInvalidInput},
	{ErrNotFound, KindNotFound},
	{ErrDuplicateName, KindDuplicateName},
	{ErrClassification, KindClassification},
	{ErrMissingContext, KindMissingContext},
	{ErrToolExecution, KindToolExecution},
	{ErrRateLimit, KindRateLimit},
	{ErrService, KindService},
	{ErrTimeout, KindTimeout},
	{context.DeadlineExceeded, KindTimeout},
	{context.Canceled, KindCanceled},
}

// KindOf maps err to its category. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, m := range kindMap {
		if errors.Is(err, m.err) {
			return m.kind
		}
	}
	return KindInternal
}

// SafeMessage is the user-facing text for a failure of the given kind.
func SafeMessage(k Kind) string {
	switch k {
	case KindInvalidInput:
		return "Please enter a question."
	case KindNotFound:
		return "I couldn't find what you were looking for."
	case KindMissingContext:
		return "I need to know who you are to answer that."
	case KindToolExecution:
		return "Something went wrong while looking that up."
	case KindService:
		return "The assistant is unavailable right now. Try again later."
	case KindRateLimit:
		return "Too many requests. Please slow down and try again."
	case KindTimeout:
		return "That took too long. Please try again."
	case KindCanceled:
		return "The request was canceled."
	case KindNoMatch:
		return NoMatchMessage
	default:
		return "Something went wrong. Try again?"
	}
}

// userFacing reports whether a handler-supplied detail may be shown to users.
func userFacing(k Kind) bool {
	return k == KindToolExecution || k == KindMissingContext
}

// FailureAnswer converts err into a failed Answer with a safe message.
func FailureAnswer(err error, tool string) Answer {
	k := KindOf(err)
	text := SafeMessage(k)
	var de *Error
	if userFacing(k) && errors.As(err, &de) && de.Detail != "" {
		text = de.Detail
	}
	return Answer{Text: text, Success: false, Kind: k, Tool: tool}
}
