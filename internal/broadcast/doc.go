// Package broadcast implements the downstream fan-out hub using the actor pattern.
//
// The Hub owns the set of live subscriber connections, pushes scenes frames to
// one or all of them, and forwards recognized feedback frames for persistence.
// Uses single goroutine + command channel (no mutexes). Per-connection write
// goroutines handle slow clients gracefully.
package broadcast
