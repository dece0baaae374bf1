// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package program

import (
	"fmt"
	"strings"
)

// Stability is the stability level of a name or data attribute.
type Stability uint8

const (
	StabilityInternal Stability = iota
	StabilityPrivate
	StabilityObsolete
	StabilityExternal
	StabilityUnstable
	StabilityEvolving
	StabilityStable
	StabilityStandard
)

var stabilityNames = [...]string{
	"Internal", "Private", "Obsolete", "External",
	"Unstable", "Evolving", "Stable", "Standard",
}

func (s Stability) String() string {
	if int(s) < len(stabilityNames) {
		return stabilityNames[s]
	}
	return fmt.Sprintf("Stability(%d)", uint8(s))
}

// ParseStability is the inverse of Stability.String for known levels.
func ParseStability(s string) (Stability, error) {
	for i, name := range stabilityNames {
		if strings.EqualFold(name, s) {
			return Stability(i), nil
		}
	}
	return StabilityInternal, fmt.Errorf("unknown stability %q", s)
}

// DepClass is the dependency class of an attribute.
type DepClass uint8

const (
	ClassUnknown DepClass = iota
	ClassCPU
	ClassPlatform
	ClassGroup
	ClassISA
	ClassCommon
)

var classNames = [...]string{"Unknown", "CPU", "Platform", "Group", "ISA", "Common"}

func (c DepClass) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("DepClass(%d)", uint8(c))
}

// ParseDepClass is the inverse of DepClass.String for known classes.
func ParseDepClass(s string) (DepClass, error) {
	for i, name := range classNames {
		if strings.EqualFold(name, s) {
			return DepClass(i), nil
		}
	}
	return ClassUnknown, fmt.Errorf("unknown dependency class %q", s)
}

// Attribute describes the stability of a probe description or statement.
type Attribute struct {
	Name  Stability
	Data  Stability
	Class DepClass
}

func (a Attribute) String() string {
	return fmt.Sprintf("%s/%s/%s", a.Name, a.Data, a.Class)
}
