// Package audit buffers audit events and relays them to a Sink off the
// request path.
//
// The Engine decides which events exist; this package only stamps, buffers
// and delivers them. A full buffer either drops (DropIfFull) or blocks the
// emitter until its context ends.
package audit
