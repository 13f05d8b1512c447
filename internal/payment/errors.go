package payment

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindNetwork  ErrorKind = "network"
	KindProtocol ErrorKind = "protocol"
	KindDeclined ErrorKind = "declined"
	KindNotFound ErrorKind = "not_found"
)

// ProviderError is the only error shape an adapter returns for a failed
// provider interaction. Raw transport errors are wrapped, never returned.
type ProviderError struct {
	Provider Method
	Kind     ErrorKind
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s error: %s: %v", e.Provider, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s error: %s", e.Provider, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Transient reports whether the call may succeed if repeated.
func (e *ProviderError) Transient() bool {
	return e.Kind == KindNetwork
}

// ConfigurationError means a required provider setting is absent. It fails
// the call that needed it, not the process.
type ConfigurationError struct {
	Provider Method
	Setting  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s is not configured: %s is missing", e.Provider, e.Setting)
}

func IsNotFound(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == KindNotFound
}

func IsDeclined(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == KindDeclined
}

func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
