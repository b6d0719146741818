// Package auth provides the capability tokens gating privileged entry points.
//
// The on-chain system restricted who may call which function with caller
// checks; here the same restriction is an unforgeable capability minted once
// at wiring time. Components are constructed with the capability they trust
// and compare it against the one presented on each privileged call, so only
// the collaborator holding the ledger capability can invoke the recording
// and fund-movement operations.
package auth

import "github.com/google/uuid"

// Capability is an opaque, comparable token. The zero value never matches a
// minted capability.
type Capability struct {
	id string
}

// NewCapability mints a fresh capability.
func NewCapability() Capability {
	return Capability{id: uuid.New().String()}
}

// Matches reports whether both capabilities are the same minted token.
func (c Capability) Matches(other Capability) bool {
	return c.id != "" && c.id == other.id
}
