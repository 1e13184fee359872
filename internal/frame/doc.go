// Package frame implements the length-prefixed transport used on every
// connection: a 4-byte big-endian payload length followed by the payload.
// It knows nothing about the payload encoding.
package frame
