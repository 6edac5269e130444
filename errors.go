package rtcdoc

import (
	"errors"
)

var (
	ErrConversion      = errors.New("rtcdoc: value conversion failed")
	ErrApply           = errors.New("rtcdoc: the engine rejected the update")
	ErrDeserialization = errors.New("rtcdoc: malformed change or snapshot")
	ErrNoSuchKey       = errors.New("rtcdoc: no such key")
	ErrNotText         = errors.New("rtcdoc: not a text field")
	ErrNotCounter      = errors.New("rtcdoc: not a counter field")
)

// classError puts a cause under one of the sentinels above, so that
// errors.Is matches both the class and the underlying engine or value
// error.
type classError struct {
	class error
	cause error
}

func (e *classError) Error() string {
	return e.class.Error() + ": " + e.cause.Error()
}

func (e *classError) Unwrap() []error {
	return []error{e.class, e.cause}
}

func classify(class, cause error) error {
	if cause == nil {
		return nil
	}
	return &classError{class: class, cause: cause}
}
