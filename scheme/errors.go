/*
errors.go - Centralized error types for the scheme model and its collaborators

PURPOSE:
  All error types in one place for consistency and discoverability.
  The evaluation engine itself never returns errors (malformed config is
  downgraded to warnings); these errors come from lifecycle transitions,
  persistence, proration and the remote evaluator.

ERROR CATEGORIES:
  1. Lookup errors - scheme, advisor, quota or payroll run missing
  2. Lifecycle errors - edits outside draft, invalid transitions
  3. Input errors - malformed periods or scheme definitions
  4. Transport errors - remote evaluator unreachable

USAGE:
  if errors.Is(err, scheme.ErrSchemeNotDraft) {
      // 409 Conflict
  }

SEE ALSO:
  - lifecycle.go: Produces TransitionError
  - remote/client.go: Produces RemoteError
  - api/handlers.go: Maps errors to HTTP status codes
*/
package scheme

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSchemeNotFound is returned when a referenced scheme doesn't exist.
	ErrSchemeNotFound = errors.New("scheme not found")

	// ErrAdvisorNotFound is returned when a referenced advisor doesn't exist.
	ErrAdvisorNotFound = errors.New("advisor not found")

	// ErrQuotaNotFound is returned when no quota was distributed to an
	// advisor for the requested period.
	ErrQuotaNotFound = errors.New("quota not found")

	// ErrIncidentNotFound is returned when condoning an unknown incident.
	ErrIncidentNotFound = errors.New("incident not found")

	// ErrRunNotFound is returned for unknown payroll run IDs.
	ErrRunNotFound = errors.New("payroll run not found")

	// ErrQuotaExists is returned when a quota is distributed twice for the
	// same advisor and period. Distributed quotas are immutable.
	ErrQuotaExists = errors.New("quota already distributed")

	// ErrSchemeNotDraft is returned when an edit is attempted on an
	// approved or archived scheme.
	ErrSchemeNotDraft = errors.New("scheme is not in draft")

	// ErrInvalidTransition is returned for lifecycle moves the state
	// machine doesn't allow (e.g. archived -> approved).
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrInvalidPeriod is returned when a year/month is malformed.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrInvalidRequest is returned for malformed evaluation requests
	// (negative counts, missing scheme ID).
	ErrInvalidRequest = errors.New("invalid evaluation request")

	// ErrInvalidScheme is returned when a scheme definition can't be parsed.
	ErrInvalidScheme = errors.New("invalid scheme definition")

	// ErrTenureAfterPeriod is returned when an advisor's tenure starts
	// after the period being prorated.
	ErrTenureAfterPeriod = errors.New("tenure starts after period end")

	// ErrRemoteUnavailable is returned when the remote evaluator can't
	// be reached or answers with a non-success status.
	ErrRemoteUnavailable = errors.New("remote evaluator unavailable")

	// ErrRemoteNotConfigured is returned by a remote evaluator with no URL.
	ErrRemoteNotConfigured = errors.New("remote evaluator not configured")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TransitionError provides details about a refused lifecycle move.
type TransitionError struct {
	SchemeID SchemeID
	From     Status
	To       Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("scheme %s: cannot move from %s to %s", e.SchemeID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// RemoteError describes a failed remote evaluation.
type RemoteError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote evaluation at %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("remote evaluation at %s failed with status %d", e.URL, e.StatusCode)
}

func (e *RemoteError) Unwrap() error {
	return ErrRemoteUnavailable
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSchemeNotFound) ||
		errors.Is(err, ErrAdvisorNotFound) ||
		errors.Is(err, ErrQuotaNotFound) ||
		errors.Is(err, ErrIncidentNotFound) ||
		errors.Is(err, ErrRunNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidScheme) ||
		errors.Is(err, ErrTenureAfterPeriod)
}

// IsConflict returns true if the error is a lifecycle conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSchemeNotDraft) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrQuotaExists)
}
