// Package storage provides the relay's minimal persistence layer.
//
// It currently supports:
//   - Device last-seen timestamps with an expiration horizon (liveness)
//   - Audit log appends (operator commands)
package storage
