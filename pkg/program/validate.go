// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package program

import (
	"fmt"

	"github.com/cilium/tracespec/pkg/strutils"
	"go.uber.org/multierr"
)

// Validate checks the structural invariants a program must satisfy before it
// can be written to a container. All violations are reported.
func (p *Program) Validate() error {
	var err error

	if p.Actions == nil {
		return fmt.Errorf("program has no action list")
	}

	// owner statement of every action covered so far
	owners := make(map[ActionRef]int)
	for i, st := range p.Statements {
		err = multierr.Append(err, p.validateStatement(i, st, owners))
	}

	if p.Options != nil {
		for _, opt := range p.Options.Enabled() {
			err = multierr.Append(err, validateOption(opt))
		}
	}
	return err
}

func (p *Program) validateStatement(i int, st *Statement, owners map[ActionRef]int) error {
	if st == nil {
		return fmt.Errorf("statement %d: nil statement", i)
	}
	if st.ECB == nil {
		return fmt.Errorf("statement %d: no ECB description", i)
	}

	err := validateProbe(i, &st.ECB.Probe)

	switch {
	case st.FirstAction == NoAction && st.LastAction != NoAction:
		err = multierr.Append(err, fmt.Errorf("statement %d: last action without first action", i))
	case st.FirstAction != NoAction && st.LastAction == NoAction:
		err = multierr.Append(err, fmt.Errorf("statement %d: first action without last action", i))
	case st.FirstAction != NoAction:
		rerr := p.Actions.Range(st.FirstAction, st.LastAction, func(ref ActionRef, _ *Action) bool {
			if other, ok := owners[ref]; ok {
				err = multierr.Append(err, fmt.Errorf("statement %d: action %d already belongs to statement %d", i, ref, other))
				return false
			}
			owners[ref] = i
			return true
		})
		if rerr != nil {
			err = multierr.Append(err, fmt.Errorf("statement %d: %w", i, rerr))
		}
	}

	if ref := st.ECB.Action; ref != NoAction {
		if _, ok := owners[ref]; !ok {
			err = multierr.Append(err, fmt.Errorf("statement %d: ECB action %d does not belong to this or an earlier statement", i, ref))
		}
	}

	if st.AggData != nil {
		if st.AggData.Name == "" {
			err = multierr.Append(err, fmt.Errorf("statement %d: aggregation identifier without a name", i))
		} else if cerr := strutils.CheckCString(st.AggData.Name); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("statement %d: aggregation identifier: %w", i, cerr))
		}
	}
	return err
}

func validateProbe(i int, pd *ProbeDesc) error {
	var err error
	for _, f := range []struct {
		field string
		val   string
		max   int
	}{
		{"target", pd.Target, TargetNameLen},
		{"provider", pd.Provider, ProvNameLen},
		{"module", pd.Module, ModNameLen},
		{"function", pd.Function, FuncNameLen},
		{"name", pd.Name, NameLen},
	} {
		if len(f.val) >= f.max {
			err = multierr.Append(err, fmt.Errorf("statement %d: probe %s %q longer than %d bytes", i, f.field, f.val, f.max-1))
		}
		if cerr := strutils.CheckCString(f.val); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("statement %d: probe %s: %w", i, f.field, cerr))
		}
	}
	return err
}

func validateOption(opt *Option) error {
	if len(opt.Name) >= MaxOptionNameLen {
		return fmt.Errorf("option %q: name longer than %d bytes", opt.Name, MaxOptionNameLen-1)
	}
	if err := strutils.CheckCString(opt.Name); err != nil {
		return fmt.Errorf("option name: %w", err)
	}
	if v, ok := opt.Value.(StringValue); ok {
		if len(v) >= MaxStringValueLen {
			return fmt.Errorf("option %q: value %q longer than %d bytes", opt.Name, string(v), MaxStringValueLen-1)
		}
		if err := strutils.CheckCString(string(v)); err != nil {
			return fmt.Errorf("option %q: value: %w", opt.Name, err)
		}
	}
	return nil
}
