// Copyright 2025 Ewout Prangsma
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
//
// Author Ewout Prangsma
//
package bus

import (
	"sync"

	"github.com/pkg/errors"
)

// Claims is a set of resources that can each be held by one user at a time.
type Claims[K comparable] struct {
	kind  string
	mutex sync.Mutex
	held  map[K]struct{}
}

// NewClaims returns an empty set for resources of the given kind.
func NewClaims[K comparable](kind string) *Claims[K] {
	return &Claims[K]{
		kind: kind,
		held: make(map[K]struct{}),
	}
}

// Claim the given resource.
// Call the returned function to give it back.
func (c *Claims[K]) Claim(key K) (func(), error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if _, found := c.held[key]; found {
		return nil, errors.Wrapf(InUseError, "%s %v", c.kind, key)
	}
	c.held[key] = struct{}{}
	claimsHeld.WithLabelValues(c.kind).Inc()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mutex.Lock()
			delete(c.held, key)
			c.mutex.Unlock()
			claimsHeld.WithLabelValues(c.kind).Dec()
		})
	}, nil
}

// Held returns true when the given resource is claimed.
func (c *Claims[K]) Held(key K) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, found := c.held[key]
	return found
}
