// Package appliance is the HTTP client for the router/NAS appliance API.
//
// The appliance exposes a local JSON-over-HTTP API where every response is
// wrapped in a {success, result | error_code, msg} envelope. This package
// owns the wire details: URL construction, the session header, the request
// timeout, and normalising transport or parse failures into the same
// envelope so the rest of the codebase reasons about one Result shape.
//
// Session state lives above this package, in internal/session; the client
// only attaches whatever token it is handed for a given call.
package appliance
