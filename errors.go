package container

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ========================================
// Core Error Values (Sentinel Errors)
// ========================================

var (
	// Service resolution errors.
	ErrServiceNotFound         = errors.New("service not found")
	ErrNotConfigured           = errors.New("no configuration registered for service")
	ErrAmbiguousImplementation = errors.New("multiple implementations found and none selected")
	ErrDontUse                 = errors.New("service is marked not for use")

	// Lifecycle errors.
	ErrDisposed      = errors.New("container has been disposed")
	ErrCloneDisposed = errors.New("cloned container has been disposed")

	// Contract errors.
	ErrEmptyContract     = errors.New("contract name cannot be empty")
	ErrDuplicateContract = errors.New("duplicate contract on active stack")
	ErrUnknownUnion      = errors.New("union contract has no registered members")

	// Constructor/registration errors.
	ErrNilConstructor          = errors.New("constructor cannot be nil")
	ErrConstructorNotFunc      = errors.New("constructor must be a function")
	ErrNoPublicConstructor     = errors.New("no public ctors for type")
	ErrManyPublicCtors         = errors.New("many public ctors for type")
	ErrCannotConstructDelegate = errors.New("cannot construct a delegate type directly")

	// Per-request/scope errors.
	ErrPerRequestViaResolve = errors.New("service is per-request and cannot be resolved through the shared cache")
	ErrBuildUpNilTarget     = errors.New("build up target cannot be nil")
	ErrBuildUpNotPointer    = errors.New("build up target must be a pointer to a struct")
)

// ========================================
// Typed Errors for Rich Context
// ========================================

// CircularDependencyError describes a dependency cycle as a chain of types.
// resolveCore does not return it: a cycle found there is reported as a
// "cyclic dependency ..." message on the resulting service.
type CircularDependencyError struct {
	ServiceType reflect.Type
	Chain       []reflect.Type
}

func (e *CircularDependencyError) Error() string {
	if len(e.Chain) == 0 {
		return fmt.Sprintf("circular dependency detected for service: %s", formatType(e.ServiceType))
	}

	chain := make([]string, 0, len(e.Chain)+1)
	for _, t := range e.Chain {
		chain = append(chain, formatType(t))
	}
	chain = append(chain, formatType(e.ServiceType))

	return fmt.Sprintf("circular dependency detected: %s", strings.Join(chain, " -> "))
}

// ResolutionError wraps a failure encountered resolving one named service,
// preserving the contract stack active at the point of failure.
type ResolutionError struct {
	ServiceType reflect.Type
	Contracts   []string
	Cause       error
}

func (e *ResolutionError) Error() string {
	if len(e.Contracts) > 0 {
		return fmt.Sprintf("unable to resolve %s%v: %v", formatType(e.ServiceType), e.Contracts, e.Cause)
	}
	return fmt.Sprintf("unable to resolve %s: %v", formatType(e.ServiceType), e.Cause)
}

func (e *ResolutionError) Unwrap() error { return e.Cause }

// ConfigurationException reports a structural problem with the frozen
// ConfigurationRegistry itself, as opposed to a runtime resolution failure.
type ConfigurationException struct {
	ServiceType reflect.Type
	Message     string
}

func (e *ConfigurationException) Error() string {
	if e.ServiceType != nil {
		return fmt.Sprintf("configuration error for %s: %s", formatType(e.ServiceType), e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// ConstructorError wraps an error returned by a constructor. Instantiation
// does not produce it: a constructor's error is recorded as the service's
// error message, and a constructor panic is not recovered.
type ConstructorError struct {
	ServiceType reflect.Type
	Cause       error
}

func (e *ConstructorError) Error() string {
	return fmt.Sprintf("constructor for %s failed: %v", formatType(e.ServiceType), e.Cause)
}

func (e *ConstructorError) Unwrap() error { return e.Cause }

// ValidationError indicates a service or its configuration failed a
// structural check, e.g. an InstanceFilter rejected every candidate.
type ValidationError struct {
	ServiceType reflect.Type
	Message     string
}

func (e *ValidationError) Error() string {
	if e.ServiceType != nil {
		return fmt.Sprintf("%s: %s", formatType(e.ServiceType), e.Message)
	}
	return e.Message
}

// DependencyError records that a dependency failed, without re-describing
// the underlying cause. ServiceBuilder does not use it: a failed dependency
// is propagated as the child's error message with StatusDependencyError.
type DependencyError struct {
	ServiceType    reflect.Type
	DependencyType reflect.Type
	Cause          error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: dependency %s failed: %v", formatType(e.ServiceType), formatType(e.DependencyType), e.Cause)
}

func (e *DependencyError) Unwrap() error { return e.Cause }

// ========================================
// Error Analysis Functions
// ========================================

// IsNotFound reports whether err indicates a service had no matching
// configuration or candidate implementation.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrServiceNotFound) || errors.Is(err, ErrNotConfigured) {
		return true
	}

	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		return IsNotFound(resErr.Cause)
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return strings.Contains(valErr.Message, "no implementations for")
	}
	return false
}

// IsCircularDependency reports whether err is or wraps a
// CircularDependencyError.
func IsCircularDependency(err error) bool {
	if err == nil {
		return false
	}
	var circErr *CircularDependencyError
	return errors.As(err, &circErr)
}

// IsDisposed reports whether err indicates use of a disposed container.
func IsDisposed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDisposed) || errors.Is(err, ErrCloneDisposed) {
		return true
	}
	return strings.Contains(err.Error(), "disposed")
}

// IsAmbiguous reports whether err indicates more than one candidate
// implementation satisfied a non-enumerable request.
func IsAmbiguous(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAmbiguousImplementation) {
		return true
	}

	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		return IsAmbiguous(resErr.Cause)
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return strings.Contains(valErr.Message, "many implementations for")
	}
	return false
}

// classifyContractError rewrites a contracts.New failure into this
// package's sentinel errors, preserving the underlying message so the
// construction log and ResolutionError text stay unchanged.
func classifyContractError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "cannot be empty"):
		return ErrEmptyContract
	case strings.Contains(msg, "duplicates found"):
		return fmt.Errorf("%w: %s", ErrDuplicateContract, msg)
	default:
		return err
	}
}

// IsConfigurationError reports whether err is a ConfigurationException.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationException
	return errors.As(err, &cfgErr)
}

// IsTimeout reports whether err is a context deadline/cancellation
// surfaced from a constructor or Dispose call.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// ========================================
// Type Formatting
// ========================================

func formatType(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
