package registry

import (
	"errors"
	"fmt"
)

// Common registry errors that can be checked with errors.Is().
var (
	// ErrNotFoundServer is returned when routing finds no registered server
	// for the requested capability.
	ErrNotFoundServer = errors.New("no server found for capability")

	// ErrInvalidServerKind is returned when a registration payload names an
	// unknown capability.
	ErrInvalidServerKind = errors.New("invalid server kind")

	// ErrServerExists is returned when registering an id that is already
	// present in the healthy set.
	ErrServerExists = errors.New("server already registered")

	// ErrUnknownServer is returned when unregistering an id that is not
	// registered in any group.
	ErrUnknownServer = errors.New("unknown server id")
)

// NotFoundServerError is returned by Next when the group for the requested
// capability is empty or has no healthy member.
type NotFoundServerError struct {
	// Capability is the capability that had no server.
	Capability Capability
}

// Error implements the error interface.
func (e *NotFoundServerError) Error() string {
	return fmt.Sprintf("no server found for capability %q", e.Capability.String())
}

// Is implements error matching for errors.Is().
func (e *NotFoundServerError) Is(target error) bool {
	return target == ErrNotFoundServer
}

// InvalidServerKindError is returned when a capability string cannot be
// parsed (bad registration payload).
type InvalidServerKindError struct {
	// Kind is the offending capability string.
	Kind string
}

// Error implements the error interface.
func (e *InvalidServerKindError) Error() string {
	return fmt.Sprintf("invalid server kind %q", e.Kind)
}

// Is implements error matching for errors.Is().
func (e *InvalidServerKindError) Is(target error) bool {
	return target == ErrInvalidServerKind
}

// ServerExistsError is returned when a registration collides with an id
// already in the healthy set. Duplicate registration is an error, never
// silently idempotent.
type ServerExistsError struct {
	// ID is the colliding server id.
	ID string
}

// Error implements the error interface.
func (e *ServerExistsError) Error() string {
	return fmt.Sprintf("server %q is already registered", e.ID)
}

// Is implements error matching for errors.Is().
func (e *ServerExistsError) Is(target error) bool {
	return target == ErrServerExists
}

// UnknownServerError is returned when unregistering an id that no group
// contains.
type UnknownServerError struct {
	// ID is the unknown server id.
	ID string
}

// Error implements the error interface.
func (e *UnknownServerError) Error() string {
	return fmt.Sprintf("server %q is not registered", e.ID)
}

// Is implements error matching for errors.Is().
func (e *UnknownServerError) Is(target error) bool {
	return target == ErrUnknownServer
}
