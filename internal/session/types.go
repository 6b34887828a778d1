package session

// Credential is the long-lived application token issued by the appliance
// during registration, plus the tracking identifier used while polling for
// physical approval.
//
// The token is an opaque secret: it is persisted to disk by the Store,
// used as the HMAC key for login proofs, and never logged.
type Credential struct {
	AppToken string `json:"app_token"`
	TrackID  int    `json:"track_id"`
}

// RegistrationState is the appliance-reported status of a registration
// approval request.
type RegistrationState string

// Registration states. Granted, Denied and Timeout are terminal: polling
// must stop once one of them is observed, and only a fresh registration
// can leave them.
const (
	RegistrationUnknown RegistrationState = "unknown"
	RegistrationPending RegistrationState = "pending"
	RegistrationTimeout RegistrationState = "timeout"
	RegistrationGranted RegistrationState = "granted"
	RegistrationDenied  RegistrationState = "denied"
)

// Terminal reports whether no further polling can change the state.
func (s RegistrationState) Terminal() bool {
	switch s {
	case RegistrationGranted, RegistrationDenied, RegistrationTimeout:
		return true
	default:
		return false
	}
}

// PermissionSet maps capability names to whether this application holds
// them. Instances are immutable once published: refresh and patch paths
// both build a new map and swap the pointer, so concurrent readers never
// observe a half-updated set.
type PermissionSet map[string]bool

// Granted reports whether the named capability is held.
// Unknown capabilities are treated as not granted.
func (p PermissionSet) Granted(capability string) bool {
	return p[capability]
}

// clone returns a shallow copy of the set.
func (p PermissionSet) clone() PermissionSet {
	out := make(PermissionSet, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
