// Package server accepts framed JSON connections and dispatches their
// requests against the storage singleton.
//
// Every connection is served by its own goroutine. A connection answers
// requests until it subscribes; from then on the observer registry owns its
// outbound side and the server only reads to notice the disconnect.
package server
