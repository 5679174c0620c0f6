package scanner

import (
	"errors"
	"fmt"
)

// Source is an external decoder. It delivers each decoded text to onDecode
// and decoder faults to onError until Unsubscribe returns. Callbacks may be
// invoked from a goroutine owned by the source.
type Source interface {
	Subscribe(onDecode func(code string), onError func(err error)) error
	Unsubscribe() error
}

var (
	ErrAlreadySubscribed = errors.New("decode source already subscribed")
)

// DecodeError is a fault reported by a decode source. Scanning continues
// after one.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error from %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
