// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package option

import (
	"github.com/cilium/tracespec/pkg/resolver"
)

// Resolver builds the target resolver selected by the decode flags.
func (c *config) Resolver() (*resolver.Resolver, error) {
	if c.MatchHostname {
		r, err := resolver.Hostname()
		if err != nil {
			return nil, err
		}
		if len(c.Targets) == 0 {
			return r, nil
		}
		return resolver.New(append(r.Patterns(), c.Targets...)...)
	}
	return resolver.New(c.Targets...)
}
