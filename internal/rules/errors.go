package rules

import "errors"

// Validation errors. Returned wrapped with the offending key or value.
var (
	ErrMissingKey         = errors.New("missing required key")
	ErrNotAnObject        = errors.New("expected an object")
	ErrNotAList           = errors.New("expected a list")
	ErrInvalidCombinator  = errors.New("invalid rule predicate")
	ErrUnknownField       = errors.New("unknown condition field")
	ErrInvalidPredicate   = errors.New("invalid predicate for field")
	ErrInvalidValue       = errors.New("invalid condition value")
	ErrUnknownAction      = errors.New("unknown action")
	ErrInvalidActionValue = errors.New("invalid action value")
	ErrInvalidDocument    = errors.New("rules document must be an object or a list of objects")
)
