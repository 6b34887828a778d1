package reboot

import "errors"

// Domain errors for the reboot package.
var (
	// ErrInvalidSchedule is returned when a schedule fails validation.
	ErrInvalidSchedule = errors.New("reboot: invalid schedule")

	// ErrNoSchedule is returned when no schedule has been stored yet.
	ErrNoSchedule = errors.New("reboot: no schedule configured")
)
