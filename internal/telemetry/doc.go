// Package telemetry turns the appliance's pull-only connection status into
// a push feed for dashboard clients.
//
// A single Broadcaster owns one poll loop shared by every subscriber. The
// loop exists only while there is at least one subscriber and an
// authenticated session; either condition dropping stops it, and both
// returning starts it again. Each tick fetches the connection status once,
// serialises it once, and fans the same frame out to every subscriber
// without blocking on any of them.
//
// Subscriber liveness is handled by a periodic sweep on its own goroutine,
// running whenever subscribers exist regardless of session state: each
// sweep pings every subscriber and evicts the ones that failed to answer
// the previous ping, so a silently dead peer costs at most two sweep
// intervals, and clients waiting out a login still get pinged before their
// read deadline.
package telemetry
