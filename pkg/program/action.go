// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package program

import (
	"errors"
	"fmt"
)

// ActionKind is the kind of an action.
type ActionKind uint16

const (
	ActNone            ActionKind = 0
	ActDIFExpr         ActionKind = 1
	ActExit            ActionKind = 2
	ActPrintf          ActionKind = 3
	ActPrinta          ActionKind = 4
	ActLibAct          ActionKind = 5
	ActTraceMem        ActionKind = 6
	ActTraceMemDynSize ActionKind = 7
	ActPrintM          ActionKind = 8

	ActProc      ActionKind = 0x0100
	ActUStack    ActionKind = ActProc + 1
	ActJStack    ActionKind = ActProc + 2
	ActUSym      ActionKind = ActProc + 3
	ActUMod      ActionKind = ActProc + 4
	ActUAddr     ActionKind = ActProc + 5
	ActStop      ActionKind = 0x0200 + 1
	ActRaise     ActionKind = 0x0200 + 2
	ActSystem    ActionKind = 0x0200 + 3
	ActFreopen   ActionKind = 0x0200 + 4
	ActStack     ActionKind = 0x0300 + 1
	ActSym       ActionKind = 0x0300 + 2
	ActMod       ActionKind = 0x0300 + 3
	ActSpeculate ActionKind = 0x0500 + 1
	ActCommit    ActionKind = 0x0500 + 2
	ActDiscard   ActionKind = 0x0500 + 3

	ActAggregation ActionKind = 0x0700
	ActAggCount    ActionKind = ActAggregation + 1
	ActAggMin      ActionKind = ActAggregation + 2
	ActAggMax      ActionKind = ActAggregation + 3
	ActAggAvg      ActionKind = ActAggregation + 4
	ActAggSum      ActionKind = ActAggregation + 5
	ActAggStddev   ActionKind = ActAggregation + 6
	ActAggQuantize ActionKind = ActAggregation + 7
	ActAggLQuant   ActionKind = ActAggregation + 8
	ActAggLLQuant  ActionKind = ActAggregation + 9
)

var actionKindNames = map[ActionKind]string{
	ActNone:            "none",
	ActDIFExpr:         "difexpr",
	ActExit:            "exit",
	ActPrintf:          "printf",
	ActPrinta:          "printa",
	ActLibAct:          "libact",
	ActTraceMem:        "tracemem",
	ActTraceMemDynSize: "tracemem-dynsize",
	ActPrintM:          "printm",
	ActProc:            "proc",
	ActUStack:          "ustack",
	ActJStack:          "jstack",
	ActUSym:            "usym",
	ActUMod:            "umod",
	ActUAddr:           "uaddr",
	ActStop:            "stop",
	ActRaise:           "raise",
	ActSystem:          "system",
	ActFreopen:         "freopen",
	ActStack:           "stack",
	ActSym:             "sym",
	ActMod:             "mod",
	ActSpeculate:       "speculate",
	ActCommit:          "commit",
	ActDiscard:         "discard",
	ActAggCount:        "count",
	ActAggMin:          "min",
	ActAggMax:          "max",
	ActAggAvg:          "avg",
	ActAggSum:          "sum",
	ActAggStddev:       "stddev",
	ActAggQuantize:     "quantize",
	ActAggLQuant:       "lquantize",
	ActAggLLQuant:      "llquantize",
}

func (k ActionKind) String() string {
	if s, ok := actionKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("action(%#x)", uint16(k))
}

// ParseActionKind is the inverse of ActionKind.String.
func ParseActionKind(s string) (ActionKind, error) {
	for k, name := range actionKindNames {
		if name == s {
			return k, nil
		}
	}
	var raw uint16
	if _, err := fmt.Sscanf(s, "action(%v)", &raw); err == nil {
		return ActionKind(raw), nil
	}
	return ActNone, fmt.Errorf("unknown action kind %q", s)
}

// IsAggregation returns true for the aggregating action kinds.
func (k ActionKind) IsAggregation() bool {
	return k&0xff00 == ActAggregation && k != ActAggregation
}

// Action is one effect executed when the predicate of its statement holds.
//
// UArg is an opaque owner tag. When a program goes through a container it
// holds the handle of the statement record that emitted the action.
type Action struct {
	DIFO   *DIFO
	Kind   ActionKind
	NTuple uint32
	Arg    uint64
	UArg   uint64
}

// ActionRef refers to an action of an ActionList. NoAction is the nil
// reference.
type ActionRef uint32

const NoAction ActionRef = 0

var ErrBrokenRange = errors.New("action range is not contiguous")

type actionNode struct {
	act        Action
	prev, next ActionRef
	removed    bool
}

// ActionList is the program-global list of actions. Statements borrow
// contiguous runs of it.
//
// Nodes live in an arena indexed by ActionRef. Removed slots are never
// reused, so a ref stays valid (and Contains reports false) for the lifetime
// of the list. Any required synchronization needs to happen on the caller.
type ActionList struct {
	nodes      []*actionNode
	head, tail ActionRef
	n          int
}

func NewActionList() *ActionList {
	return &ActionList{}
}

func (l *ActionList) node(ref ActionRef) *actionNode {
	if ref == NoAction || int(ref) > len(l.nodes) {
		return nil
	}
	nd := l.nodes[ref-1]
	if nd.removed {
		return nil
	}
	return nd
}

// Append adds a copy of a at the tail of the list.
func (l *ActionList) Append(a Action) ActionRef {
	ref := ActionRef(len(l.nodes) + 1)
	l.nodes = append(l.nodes, &actionNode{act: a, prev: l.tail})
	if tail := l.node(l.tail); tail != nil {
		tail.next = ref
	} else {
		l.head = ref
	}
	l.tail = ref
	l.n++
	return ref
}

// Get returns the action for ref, or nil if ref is not in the list.
func (l *ActionList) Get(ref ActionRef) *Action {
	if nd := l.node(ref); nd != nil {
		return &nd.act
	}
	return nil
}

func (l *ActionList) Contains(ref ActionRef) bool {
	return l.node(ref) != nil
}

func (l *ActionList) Next(ref ActionRef) ActionRef {
	if nd := l.node(ref); nd != nil {
		return nd.next
	}
	return NoAction
}

func (l *ActionList) Prev(ref ActionRef) ActionRef {
	if nd := l.node(ref); nd != nil {
		return nd.prev
	}
	return NoAction
}

func (l *ActionList) Head() ActionRef { return l.head }
func (l *ActionList) Tail() ActionRef { return l.tail }
func (l *ActionList) Len() int        { return l.n }

// Refs returns the refs of all actions in list order.
func (l *ActionList) Refs() []ActionRef {
	refs := make([]ActionRef, 0, l.n)
	for ref := l.head; ref != NoAction; ref = l.node(ref).next {
		refs = append(refs, ref)
	}
	return refs
}

// Range calls fn for every action of the run [first, last], in order, until
// fn returns false. It fails with ErrBrokenRange if last cannot be reached
// from first.
func (l *ActionList) Range(first, last ActionRef, fn func(ActionRef, *Action) bool) error {
	if l.node(first) == nil || l.node(last) == nil {
		return fmt.Errorf("%w: [%d, %d] not in list", ErrBrokenRange, first, last)
	}
	for ref := first; ref != NoAction; {
		nd := l.node(ref)
		if !fn(ref, &nd.act) {
			return nil
		}
		if ref == last {
			return nil
		}
		ref = nd.next
	}
	return fmt.Errorf("%w: %d not reachable from %d", ErrBrokenRange, last, first)
}

// RemoveRun unlinks the run [first, last] and relinks its predecessor to its
// successor. It returns the number of removed actions.
func (l *ActionList) RemoveRun(first, last ActionRef) (int, error) {
	var run []*actionNode
	err := l.Range(first, last, func(ref ActionRef, _ *Action) bool {
		run = append(run, l.nodes[ref-1])
		return true
	})
	if err != nil {
		return 0, err
	}

	prev, next := run[0].prev, run[len(run)-1].next
	if p := l.node(prev); p != nil {
		p.next = next
	} else {
		l.head = next
	}
	if n := l.node(next); n != nil {
		n.prev = prev
	} else {
		l.tail = prev
	}

	for _, nd := range run {
		nd.removed = true
		nd.prev, nd.next = NoAction, NoAction
	}
	l.n -= len(run)
	return len(run), nil
}

// FindOwnerRun finds the first contiguous run of actions whose owner tag
// (UArg) equals owner.
func (l *ActionList) FindOwnerRun(owner uint64) (first, last ActionRef, ok bool) {
	for ref := l.head; ref != NoAction; ref = l.node(ref).next {
		if l.node(ref).act.UArg != owner {
			continue
		}
		first, last = ref, ref
		for next := l.node(ref).next; next != NoAction && l.node(next).act.UArg == owner; next = l.node(next).next {
			last = next
		}
		return first, last, true
	}
	return NoAction, NoAction, false
}
