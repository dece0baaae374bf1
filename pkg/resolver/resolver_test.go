// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package resolver

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cilium/tracespec/pkg/tracespec"
)

var _ tracespec.Resolver = (*Resolver)(nil)

func TestBelongs(t *testing.T) {
	r, err := New("vm[0-9]", "host-*")
	require.NoError(t, err)

	tests := []struct {
		target string
		want   bool
	}{
		{"vm0", true},
		{"vm7", true},
		{"vm10", false},
		{"host-a", true},
		{"host-a.example", false},
		{"other", false},
		{"", true},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, r.Belongs(test.target), test.target)
	}
	assert.Equal(t, []string{"vm[0-9]", "host-*"}, r.Patterns())
}

func TestNoPatterns(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	assert.True(t, r.Belongs("anything"))
}

func TestInvalidPattern(t *testing.T) {
	_, err := New("vm[0-")
	require.Error(t, err)
}

func TestHostname(t *testing.T) {
	name, err := os.Hostname()
	require.NoError(t, err)

	r, err := Hostname()
	require.NoError(t, err)
	assert.True(t, r.Belongs(name))
	assert.False(t, r.Belongs(name+"-other"))
}
