package query

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownOption = errors.New("unknown option")
	ErrBadNumber     = errors.New("bad numeric value")
	ErrBadDate       = errors.New("bad date value")
	ErrBadValue      = errors.New("bad value")
)

// OptionError reports the token that made a query unparseable.
type OptionError struct {
	Key   string
	Value string
	Err   error
}

func (e *OptionError) Error() string {
	if errors.Is(e.Err, ErrUnknownOption) {
		return fmt.Sprintf("%v: %q", e.Err, e.Key)
	}
	return fmt.Sprintf("%v for %q: %q", e.Err, e.Key, e.Value)
}

func (e *OptionError) Unwrap() error {
	return e.Err
}

func unknownOption(tok Token) error {
	return &OptionError{Key: tok.Key, Value: tok.Value, Err: ErrUnknownOption}
}

func badValue(tok Token, err error) error {
	return &OptionError{Key: tok.Key, Value: tok.Value, Err: err}
}
