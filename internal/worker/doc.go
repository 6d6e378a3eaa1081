// Package worker wires the quote engine together and owns its lifecycle.
//
// State machine:
//
//	NotStarted -> Starting -> Running -> Stopping -> Stopped
//	                  |                                  |
//	                  +-- connect failed -> NotStarted    +-- Start -> Starting
//
// Start and Stop are idempotent and serialised. The worker is constructed by
// the process's composition root and passed to whatever needs it.
package worker
