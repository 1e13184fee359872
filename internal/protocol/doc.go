// Package protocol defines the JSON messages carried inside frames:
// requests, the uniform response envelope, and pushed notifications.
// Decode validates a request before any action runs.
package protocol
