package store

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyInFlight is returned by EnqueueJob when the tenant already
	// has a queued or running job. The request is rejected, never queued.
	ErrAlreadyInFlight = errors.New("provisioning job already in flight for tenant")

	// ErrPortTaken is returned by AssignPort when another caller committed
	// the same (server, port) pair first. Callers retry with the next candidate.
	ErrPortTaken = errors.New("port already assigned")

	// ErrDuplicateDomain is returned when a tenant with the same domain exists.
	ErrDuplicateDomain = errors.New("domain already registered")
)

// ResourceExhaustedError signals that a shared resource ran out. This is
// operator-actionable, not tenant-caused; the pipeline treats it as
// retryable after intervention.
type ResourceExhaustedError struct {
	Resource string
	ServerID uuid.UUID
}

func (e *ResourceExhaustedError) Error() string {
	if e.ServerID == uuid.Nil {
		return fmt.Sprintf("resource exhausted: %s", e.Resource)
	}
	return fmt.Sprintf("resource exhausted: %s on server %s", e.Resource, e.ServerID)
}

// IsResourceExhausted reports whether err is a ResourceExhaustedError.
func IsResourceExhausted(err error) bool {
	var re *ResourceExhaustedError
	return errors.As(err, &re)
}

// uniqueViolation is the Postgres error code for unique constraint violations.
const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation, optionally on the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if string(pqErr.Code) != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
