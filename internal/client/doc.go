// Package client talks to a corpstore server: one-shot requests, request
// normalization for hand-written JSON files, and a reconnecting
// subscription loop.
package client
