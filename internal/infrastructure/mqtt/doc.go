// Package mqtt provides the optional MQTT publisher for status republish.
//
// When enabled, each connection-status tick from the telemetry feed is
// mirrored to the broker so other home-automation systems can consume the
// appliance state without polling the dashboard API. The client is
// publish-only; it never subscribes.
package mqtt
