// Package metrics declares the Prometheus collectors used across Box Panel.
package metrics
