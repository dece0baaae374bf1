// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package tracespec

import (
	"fmt"
	"slices"
)

// decodeState is the position of a decoder in the container read path.
// States are entered strictly in order; only statement resolution repeats.
type decodeState uint8

const (
	stateStart decodeState = iota
	stateRootRead
	stateActionListWalked
	stateStatementResolved
	stateOptionsApplied
	stateDone
)

var decodeTransitions = map[decodeState][]decodeState{
	stateStart:             {stateRootRead},
	stateRootRead:          {stateActionListWalked},
	stateActionListWalked:  {stateStatementResolved, stateOptionsApplied},
	stateStatementResolved: {stateStatementResolved, stateOptionsApplied},
	stateOptionsApplied:    {stateDone},
}

func (s decodeState) String() string {
	switch s {
	case stateStart:
		return "START"
	case stateRootRead:
		return "ROOT_READ"
	case stateActionListWalked:
		return "ACTIONLIST_WALKED"
	case stateStatementResolved:
		return "STATEMENT_RESOLVED"
	case stateOptionsApplied:
		return "OPTIONS_APPLIED"
	case stateDone:
		return "DONE"
	}
	return fmt.Sprintf("decodeState(%d)", uint8(s))
}

func (s decodeState) canEnter(next decodeState) bool {
	return slices.Contains(decodeTransitions[s], next)
}
