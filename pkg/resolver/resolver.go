// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

// Package resolver decides which statements of a container belong to the
// local execution context, by matching probe targets against glob patterns.
package resolver

import (
	"fmt"
	"os"

	"github.com/gobwas/glob"
)

// Resolver accepts a target if it matches one of its patterns. Statements
// without a target belong everywhere, and a Resolver without patterns
// accepts every target.
type Resolver struct {
	patterns []string
	globs    []glob.Glob
}

// New compiles patterns. Patterns use shell glob syntax with '.' as the
// separator, so "vm*" matches "vm1" but "*" does not cross "a.b".
func New(patterns ...string) (*Resolver, error) {
	r := &Resolver{}
	for _, p := range patterns {
		g, err := glob.Compile(p, '.')
		if err != nil {
			return nil, fmt.Errorf("invalid target pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, p)
		r.globs = append(r.globs, g)
	}
	return r, nil
}

// Hostname returns a Resolver accepting the name of the local host.
func Hostname() (*Resolver, error) {
	name, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to get hostname: %w", err)
	}
	return New(glob.QuoteMeta(name))
}

// Belongs implements tracespec.Resolver.
func (r *Resolver) Belongs(target string) bool {
	if target == "" || len(r.globs) == 0 {
		return true
	}
	for _, g := range r.globs {
		if g.Match(target) {
			return true
		}
	}
	return false
}

// Patterns returns the patterns r was built from.
func (r *Resolver) Patterns() []string {
	return r.patterns
}
