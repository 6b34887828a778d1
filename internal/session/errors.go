package session

import (
	"errors"
	"fmt"
)

// Domain errors for the session package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, session.ErrNotRegistered) {
//	    // prompt the user to register first
//	}
var (
	// ErrNotRegistered is returned when login is attempted without a
	// persisted application credential.
	ErrNotRegistered = errors.New("session: not registered")

	// ErrRegistration is returned when the registration call fails
	// (appliance unreachable or rejected the request). Registration must
	// not be retried automatically; approval is solicited physically on
	// the appliance.
	ErrRegistration = errors.New("session: registration failed")

	// ErrRegistrationDenied is returned when the user rejected the
	// approval request on the appliance. Terminal for this registration.
	ErrRegistrationDenied = errors.New("session: registration denied")

	// ErrRegistrationTimeout is returned when the approval request
	// expired unanswered. Terminal for this registration.
	ErrRegistrationTimeout = errors.New("session: registration timed out")

	// ErrLogin is returned when the challenge-response login fails.
	ErrLogin = errors.New("session: login failed")

	// ErrAuthRequired is returned when the appliance reports the session
	// as expired or invalid. Recoverable by logging in again.
	ErrAuthRequired = errors.New("session: authentication required")

	// ErrDeprecated is returned when the appliance reports the called
	// feature no longer exists on this firmware. Not retryable.
	ErrDeprecated = errors.New("session: feature deprecated on appliance")
)

// InsufficientRightsError reports a privileged call rejected for lack of a
// specific capability. The session stays valid; the cached permission for
// the capability is downgraded and a background refresh is scheduled.
type InsufficientRightsError struct {
	Capability string
}

func (e *InsufficientRightsError) Error() string {
	return fmt.Sprintf("session: insufficient rights (missing %q)", e.Capability)
}
