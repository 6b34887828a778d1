// Package reboot implements scheduled appliance reboots.
//
// The schedule is a single persisted record: enabled flag, time of day and
// a weekday mask. A background scheduler computes the next firing time
// from it and issues the reboot call through the session gateway when it
// arrives. Edits through the API take effect immediately; the scheduler
// recomputes on every change rather than polling the store.
package reboot
