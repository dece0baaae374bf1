// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package program

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ownedList(owners ...uint64) (*ActionList, []ActionRef) {
	l := NewActionList()
	refs := make([]ActionRef, 0, len(owners))
	for i, o := range owners {
		refs = append(refs, l.Append(Action{Kind: ActDIFExpr, Arg: uint64(i), UArg: o}))
	}
	return l, refs
}

func TestActionListAppend(t *testing.T) {
	l, refs := ownedList(1, 1, 2)
	require.Equal(t, 3, l.Len())
	assert.Equal(t, refs, l.Refs())
	assert.Equal(t, refs[0], l.Head())
	assert.Equal(t, refs[2], l.Tail())
	assert.Equal(t, refs[1], l.Next(refs[0]))
	assert.Equal(t, refs[0], l.Prev(refs[1]))
	assert.Equal(t, NoAction, l.Next(refs[2]))
	assert.Equal(t, NoAction, l.Prev(refs[0]))
	assert.Nil(t, l.Get(NoAction))
	assert.Nil(t, l.Get(ActionRef(42)))
	assert.Equal(t, uint64(2), l.Get(refs[2]).UArg)
}

func TestActionListRange(t *testing.T) {
	l, refs := ownedList(1, 2, 3, 4)

	var seen []uint64
	err := l.Range(refs[1], refs[2], func(_ ActionRef, a *Action) bool {
		seen = append(seen, a.UArg)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3}, seen)

	// backwards ranges are broken
	err = l.Range(refs[2], refs[1], func(ActionRef, *Action) bool { return true })
	require.ErrorIs(t, err, ErrBrokenRange)

	err = l.Range(refs[0], ActionRef(99), func(ActionRef, *Action) bool { return true })
	require.ErrorIs(t, err, ErrBrokenRange)
}

func TestActionListRemoveRunMiddle(t *testing.T) {
	l, refs := ownedList(0, 1, 1, 2)

	n, err := l.RemoveRun(refs[1], refs[2])
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, []ActionRef{refs[0], refs[3]}, l.Refs())
	assert.Equal(t, refs[3], l.Next(refs[0]))
	assert.Equal(t, refs[0], l.Prev(refs[3]))
	assert.False(t, l.Contains(refs[1]))
	assert.False(t, l.Contains(refs[2]))

	// removed refs are not reused
	ref := l.Append(Action{})
	assert.NotContains(t, []ActionRef{refs[1], refs[2]}, ref)
	assert.Equal(t, ref, l.Next(refs[3]))
}

func TestActionListRemoveRunEnds(t *testing.T) {
	l, refs := ownedList(0, 1, 2)

	_, err := l.RemoveRun(refs[0], refs[0])
	require.NoError(t, err)
	assert.Equal(t, refs[1], l.Head())
	assert.Equal(t, NoAction, l.Prev(refs[1]))

	_, err = l.RemoveRun(refs[2], refs[2])
	require.NoError(t, err)
	assert.Equal(t, refs[1], l.Tail())
	assert.Equal(t, NoAction, l.Next(refs[1]))

	_, err = l.RemoveRun(refs[1], refs[1])
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, NoAction, l.Head())
	assert.Equal(t, NoAction, l.Tail())
	assert.Empty(t, l.Refs())

	_, err = l.RemoveRun(refs[1], refs[1])
	require.ErrorIs(t, err, ErrBrokenRange)
}

func TestActionListFindOwnerRun(t *testing.T) {
	l, refs := ownedList(5, 7, 7, 7, 9, 7)

	first, last, ok := l.FindOwnerRun(7)
	require.True(t, ok)
	assert.Equal(t, refs[1], first)
	assert.Equal(t, refs[3], last)

	_, _, ok = l.FindOwnerRun(8)
	assert.False(t, ok)

	// once the first run is gone, the next one is found
	_, err := l.RemoveRun(first, last)
	require.NoError(t, err)
	first, last, ok = l.FindOwnerRun(7)
	require.True(t, ok)
	assert.Equal(t, refs[5], first)
	assert.Equal(t, refs[5], last)
}

func TestActionKind(t *testing.T) {
	assert.True(t, ActAggCount.IsAggregation())
	assert.False(t, ActAggregation.IsAggregation())
	assert.False(t, ActPrintf.IsAggregation())

	k, err := ParseActionKind(ActPrintf.String())
	require.NoError(t, err)
	assert.Equal(t, ActPrintf, k)

	_, err = ParseActionKind("nope")
	require.Error(t, err)
	assert.Equal(t, "action(0x4242)", ActionKind(0x4242).String())
	k, err = ParseActionKind("action(0x4242)")
	require.NoError(t, err)
	assert.Equal(t, ActionKind(0x4242), k)
}
