package unit

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingKey is wrapped by ConfigurationError when the key is empty.
	ErrMissingKey = errors.New("key is required")
	// ErrInvalidTransition is returned when an operation is called in the wrong state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrAlreadyProcessed is returned by Process on a Complete or Errored unit.
	ErrAlreadyProcessed = errors.New("unit already processed")
	// ErrDestroyed is returned by operations on a destroyed unit.
	ErrDestroyed = errors.New("unit destroyed")
	// ErrNotRegistrant is wrapped by ActivationError when the bound value
	// does not implement registry.Registrant.
	ErrNotRegistrant = errors.New("value does not implement Register")
)

// ConfigurationError reports an invalid unit configuration. No unit is queued.
type ConfigurationError struct {
	Key   string
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("invalid configuration: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid configuration for %q: %s: %v", e.Key, e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TransferError reports a transport failure for a unit.
type TransferError struct {
	Key string
	URL string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %q from %s: %v", e.Key, e.URL, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// ActivationError reports a failure materializing or registering a unit.
type ActivationError struct {
	Key string
	Err error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("activate %q: %v", e.Key, e.Err)
}

func (e *ActivationError) Unwrap() error { return e.Err }

// NamespaceCollisionError reports that the namespace slot for Key already
// holds an unrelated value. It is a distinct kind of activation error.
type NamespaceCollisionError struct {
	Key string
	Err error
}

func (e *NamespaceCollisionError) Error() string {
	return fmt.Sprintf("activate %q: namespace collision: %v", e.Key, e.Err)
}

func (e *NamespaceCollisionError) Unwrap() error { return e.Err }

// KeyOf returns the unit key carried by err, if any.
func KeyOf(err error) (string, bool) {
	var (
		ce *ConfigurationError
		te *TransferError
		ae *ActivationError
		ne *NamespaceCollisionError
	)
	switch {
	case errors.As(err, &te):
		return te.Key, true
	case errors.As(err, &ne):
		return ne.Key, true
	case errors.As(err, &ae):
		return ae.Key, true
	case errors.As(err, &ce):
		return ce.Key, ce.Key != ""
	}
	return "", false
}
