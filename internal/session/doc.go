// Package session manages the trust-establishment handshake with the
// appliance and the lifetime of the resulting session.
//
// The appliance requires a multi-step handshake before any privileged call:
// the application registers once and receives a long-lived token, the user
// approves the request physically on the appliance, and every process
// lifetime thereafter opens a session by answering an HMAC-SHA1 challenge
// with that token. The Manager drives all of it and exposes Dispatch, the
// single gateway every privileged call in the dashboard goes through.
//
// State ownership:
//   - Credential (app token): persisted by Store, loaded at startup
//   - Challenge: memory only, rotated by the appliance on each login
//   - Session token: memory only, gone on restart, atomically swapped
//   - PermissionSet: memory only, replaced wholesale on login/refresh,
//     point-downgraded when the appliance denies a capability
package session
