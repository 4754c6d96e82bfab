// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package kvstore

// Keyspace builds namespaced keys for the ephemeral store.
type Keyspace struct {
	prefix string
}

// NewKeyspace returns a Keyspace that prepends prefix to every key.
func NewKeyspace(prefix string) Keyspace {
	return Keyspace{prefix: prefix}
}

// MagicLink is the key of the record for a magic-link token.
func (k Keyspace) MagicLink(token string) string {
	return k.prefix + "magiclink:" + token
}

// EmailIndex is the key of the set of active tokens for an email.
func (k Keyspace) EmailIndex(email string) string {
	return k.prefix + "email:" + email
}

// LoginStatus is the key of the polling status for an email.
func (k Keyspace) LoginStatus(email string) string {
	return k.prefix + "status:" + email
}

// Handoff is the key of a cross-device handoff request.
func (k Keyspace) Handoff(requestID string) string {
	return k.prefix + "qr:" + requestID
}

// HandoffStatus is the key of the polling status for a handoff request.
func (k Keyspace) HandoffStatus(requestID string) string {
	return k.prefix + "qrstatus:" + requestID
}
