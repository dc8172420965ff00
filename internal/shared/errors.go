package shared

import "errors"

// Kind classifies an error so outer layers can translate it without string matching.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidArgument
	KindInvalidTransition
	KindInsufficientStock
	KindConflictRetryable
	KindIntegrity
)

var (
	// ErrNotFound indicates an unknown or inactive warehouse, product or transfer.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument indicates malformed input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidTransition indicates a state machine violation.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrInsufficientStock indicates an operation would drive quantity or available below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflictRetryable indicates a lost write race; the whole operation may be retried.
	ErrConflictRetryable = errors.New("conflicting concurrent write, retry")
	// ErrIntegrity indicates stored state violates an invariant.
	ErrIntegrity = errors.New("data integrity fault")
)

var kindSentinels = []struct {
	kind Kind
	err  error
}{
	{KindNotFound, ErrNotFound},
	{KindInvalidArgument, ErrInvalidArgument},
	{KindInvalidTransition, ErrInvalidTransition},
	{KindInsufficientStock, ErrInsufficientStock},
	{KindConflictRetryable, ErrConflictRetryable},
	{KindIntegrity, ErrIntegrity},
}

// KindOf reports the kind of err, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, s := range kindSentinels {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindUnknown
}

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindInsufficientStock:
		return "insufficient_stock"
	case KindConflictRetryable:
		return "conflict_retryable"
	case KindIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}
