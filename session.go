// Copyright 2026 The NFCForge Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tagcore

import (
	"github.com/nfcforge/go-tagcore/internal/syncutil"
)

// AuthState is the authentication session state.
type AuthState int

const (
	// StateUnauthenticated means no credential check has succeeded.
	StateUnauthenticated AuthState = iota
	// StateAuthenticated means a credential check succeeded for the
	// session's current scope.
	StateAuthenticated
)

// AuthScope identifies what an authentication unlocked: a MIFARE
// sector or a DESFire application.
type AuthScope struct {
	Sector      int
	Application uint32
}

// SectorScope builds the scope for a MIFARE sector authentication.
func SectorScope(sector int) AuthScope {
	return AuthScope{Sector: sector, Application: 0}
}

// AppScope builds the scope for a DESFire application authentication.
func AppScope(aid uint32) AuthScope {
	return AuthScope{Sector: -1, Application: aid}
}

// AuthSession is a two-state machine tracking whether a key or
// credential check against the physical tag has succeeded, and for
// which scope. The state is tag-handle-scoped: releasing the tag
// discards it. Moving to a different scope requires an explicit pass
// through Unauthenticated again; handlers never silently reuse a grant
// across scopes.
type AuthSession struct {
	mu    syncutil.RWMutex
	scope AuthScope
	state AuthState
}

// NewAuthSession returns a session in the Unauthenticated state.
func NewAuthSession() *AuthSession {
	return &AuthSession{state: StateUnauthenticated}
}

// State returns the current state.
func (s *AuthSession) State() AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Grant records a successful credential check for the given scope.
func (s *AuthSession) Grant(scope AuthScope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateAuthenticated
	s.scope = scope
}

// Granted reports whether the session is authenticated for exactly the
// given scope.
func (s *AuthSession) Granted(scope AuthScope) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateAuthenticated && s.scope == scope
}

// Scope returns the authenticated scope, if any.
func (s *AuthSession) Scope() (AuthScope, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateAuthenticated {
		return AuthScope{}, false
	}
	return s.scope, true
}

// Reset returns the session to Unauthenticated. Called on tag release
// and on any failed credential check.
func (s *AuthSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateUnauthenticated
	s.scope = AuthScope{}
}
