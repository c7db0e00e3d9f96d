// Package broadcast implements the viewer registry and the fan-out relay.
//
// Registry is a mutex-guarded set of viewers keyed by connection ID. Broadcaster takes a
// snapshot of the registry and writes a fragment to each viewer in turn, outside the lock,
// evicting any viewer whose write fails. Viewer writes are bounded by the connection's own
// write deadline, so one stuck peer delays a broadcast by at most that deadline.
package broadcast
