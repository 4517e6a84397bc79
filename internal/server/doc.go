// Package server provides the HTTP and WebSocket surface: the read API,
// scene admin endpoints, the subscriber stream, and health/metrics probes.
package server
