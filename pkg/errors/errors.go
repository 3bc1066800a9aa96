// Package errors holds the error vocabulary of the redora client: sentinel
// conditions the LeadService can report, lead operation errors with codes,
// and the suggested action shown to the user for each code.
//
// Callers compare with errors.Is or the IsX helpers; wrapping with %w keeps
// the sentinel reachable.
package errors

import "errors"

var (
	// ErrNotFound: the lead id is unknown to the server.
	ErrNotFound = errors.New("not found")

	// ErrConflict: the lead's status changed on the server concurrently.
	ErrConflict = errors.New("conflict")

	// ErrValidation: a bad filter, status or request.
	ErrValidation = errors.New("validation error")

	// ErrUnauthorized: missing or rejected API token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden: the token is valid but the tenant may not do this.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState: the lead is not in a category the operation accepts.
	ErrInvalidState = errors.New("invalid state")

	// ErrUnavailable: the LeadService could not be reached or timed out.
	ErrUnavailable = errors.New("service unavailable")
)

func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool     { return errors.Is(err, ErrConflict) }
func IsValidation(err error) bool   { return errors.Is(err, ErrValidation) }
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }
func IsForbidden(err error) bool    { return errors.Is(err, ErrForbidden) }
func IsInvalidState(err error) bool { return errors.Is(err, ErrInvalidState) }
func IsUnavailable(err error) bool  { return errors.Is(err, ErrUnavailable) }

// Process exit codes for the CLI. Scripts can tell a bad invocation from an
// unreachable backend without parsing messages.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitAuth        = 3
	ExitNotFound    = 4
	ExitUnavailable = 5
)

var exitCodes = []struct {
	sentinel error
	code     int
}{
	{ErrValidation, ExitUsage},
	{ErrInvalidState, ExitUsage},
	{ErrUnauthorized, ExitAuth},
	{ErrForbidden, ExitAuth},
	{ErrNotFound, ExitNotFound},
	{ErrUnavailable, ExitUnavailable},
}

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	for _, e := range exitCodes {
		if errors.Is(err, e.sentinel) {
			return e.code
		}
	}
	return ExitFailure
}
