// Package observer tracks subscribed connections and pushes notification
// frames to them.
//
// Each subscriber owns a buffered outbound queue drained by its own writer
// goroutine, which is the only writer of that connection once it is
// registered. A subscriber whose write fails, times out, or whose queue is
// full is removed without affecting delivery to the others.
package observer
