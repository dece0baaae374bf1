// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package program

import (
	"fmt"
)

const (
	// MaxOptionNameLen bounds option names, including the terminating NUL.
	MaxOptionNameLen = 64
	// MaxStringValueLen bounds string option values, including the
	// terminating NUL.
	MaxStringValueLen = 8
)

// OptionClass selects one of the three option tables.
type OptionClass uint8

const (
	CompileTimeOption OptionClass = iota
	RuntimeOption
	DynamicRuntimeOption

	numOptionClasses
)

func (c OptionClass) String() string {
	switch c {
	case CompileTimeOption:
		return "compile-time"
	case RuntimeOption:
		return "runtime"
	case DynamicRuntimeOption:
		return "dynamic-runtime"
	}
	return fmt.Sprintf("OptionClass(%d)", uint8(c))
}

// OptionValue is the class specific value of an option. It is either a
// ScalarValue or a StringValue.
type OptionValue interface {
	isOptionValue()
}

type ScalarValue uint64

type StringValue string

func (ScalarValue) isOptionValue() {}
func (StringValue) isOptionValue() {}

// Option is one entry of an option table.
type Option struct {
	Name  string
	Class OptionClass
	Set   bool
	Arg   string
	Value OptionValue
}

// Compile-time flags.
const (
	cDIFV   = 0x0001
	cEmpty  = 0x0002
	cZDefs  = 0x0004
	cCPP    = 0x0010
	cKNoDef = 0x0020
	cUNoDef = 0x0040
	cPSpec  = 0x0080
	cETags  = 0x0100
	cArgRef = 0x0200
	cDefArg = 0x0800
	cNoLibs = 0x1000

	aPerCPU = 0x0001
	dStrip  = 0x0001
)

// Runtime option identifiers.
const (
	optBufSize = iota
	optBufPolicy
	optDynVarSize
	optAggSize
	optSpecSize
	optNSpec
	optStrSize
	optCleanRate
	optCPU
	optBufResize
	optGrabAnon
	optFlowIndent
	optQuiet
	optStackFrames
	optUStackFrames
	optAggRate
	optSwitchRate
	optStatusRate
	optDestructive
	optStackIndent
	optRawBytes
	optJStackFrames
	optJStackStrSize
	optAggSortKey
	optAggSortRev
	optAggSortPos
	optAggSortKeyPos
	optTemporal
	optAggHist
	optAggPack
	optAggZoom
	_ // zone, not carried in containers
	optOFormat
	optDDTraceArg
)

type optionDef struct {
	name  string
	value OptionValue
}

var optionDefs = [numOptionClasses][]optionDef{
	CompileTimeOption: {
		{"aggpercpu", ScalarValue(aPerCPU)},
		{"amin", ScalarValue(0)},
		{"argref", ScalarValue(cArgRef)},
		{"core", ScalarValue(0)},
		{"cpp", ScalarValue(cCPP)},
		{"cpphdrs", ScalarValue(0)},
		{"cpppath", ScalarValue(0)},
		{"ctypes", ScalarValue(0)},
		{"defaultargs", ScalarValue(cDefArg)},
		{"dtypes", ScalarValue(0)},
		{"debug", ScalarValue(0)},
		{"define", StringValue("-D")},
		{"droptags", ScalarValue(0)},
		{"empty", ScalarValue(cEmpty)},
		{"encoding", ScalarValue(0)},
		{"errtags", ScalarValue(cETags)},
		{"evaltime", ScalarValue(0)},
		{"incdir", StringValue("-I")},
		{"iregs", ScalarValue(0)},
		{"kdefs", ScalarValue(cKNoDef)},
		{"knodefs", ScalarValue(cKNoDef)},
		{"late", ScalarValue(0)},
		{"lazyload", ScalarValue(0)},
		{"ldpath", ScalarValue(0)},
		{"libdir", ScalarValue(0)},
		{"linkmode", ScalarValue(0)},
		{"linktype", ScalarValue(0)},
		{"nolibs", ScalarValue(cNoLibs)},
		{"objcopypath", ScalarValue(0)},
		{"pgmax", ScalarValue(0)},
		{"pspec", ScalarValue(cPSpec)},
		{"setenv", ScalarValue(1)},
		{"stdc", ScalarValue(0)},
		{"strip", ScalarValue(dStrip)},
		{"syslibdir", ScalarValue(0)},
		{"tree", ScalarValue(0)},
		{"tregs", ScalarValue(0)},
		{"udefs", ScalarValue(cUNoDef)},
		{"undef", StringValue("-U")},
		{"unodefs", ScalarValue(cUNoDef)},
		{"unsetenv", ScalarValue(0)},
		{"verbose", ScalarValue(cDIFV)},
		{"version", ScalarValue(0)},
		{"zdefs", ScalarValue(cZDefs)},
	},
	RuntimeOption: {
		{"aggsize", ScalarValue(optAggSize)},
		{"bufsize", ScalarValue(optBufSize)},
		{"bufpolicy", ScalarValue(optBufPolicy)},
		{"bufresize", ScalarValue(optBufResize)},
		{"cleanrate", ScalarValue(optCleanRate)},
		{"cpu", ScalarValue(optCPU)},
		{"destructive", ScalarValue(optDestructive)},
		{"dynvarsize", ScalarValue(optDynVarSize)},
		{"grabanon", ScalarValue(optGrabAnon)},
		{"jstackframes", ScalarValue(optJStackFrames)},
		{"ddtracearg", ScalarValue(optDDTraceArg)},
		{"jstackstrsize", ScalarValue(optJStackStrSize)},
		{"nspec", ScalarValue(optNSpec)},
		{"specsize", ScalarValue(optSpecSize)},
		{"stackframes", ScalarValue(optStackFrames)},
		{"statusrate", ScalarValue(optStatusRate)},
		{"strsize", ScalarValue(optStrSize)},
		{"ustackframes", ScalarValue(optUStackFrames)},
		{"temporal", ScalarValue(optTemporal)},
	},
	DynamicRuntimeOption: {
		{"agghist", ScalarValue(optAggHist)},
		{"aggpack", ScalarValue(optAggPack)},
		{"aggrate", ScalarValue(optAggRate)},
		{"aggsortkey", ScalarValue(optAggSortKey)},
		{"aggsortkeypos", ScalarValue(optAggSortKeyPos)},
		{"aggsortpos", ScalarValue(optAggSortPos)},
		{"aggsortrev", ScalarValue(optAggSortRev)},
		{"aggzoom", ScalarValue(optAggZoom)},
		{"flowindent", ScalarValue(optFlowIndent)},
		{"oformat", ScalarValue(optOFormat)},
		{"quiet", ScalarValue(optQuiet)},
		{"rawbytes", ScalarValue(optRawBytes)},
		{"stackindent", ScalarValue(optStackIndent)},
		{"switchrate", ScalarValue(optSwitchRate)},
	},
}

// OptionSet holds the compile-time, runtime and dynamic-runtime option
// tables of a program. Only set options travel through a container.
type OptionSet struct {
	tables [numOptionClasses][]*Option
	byName map[string]*Option
}

// NewOptionSet returns an option set with every known option unset.
func NewOptionSet() *OptionSet {
	s := &OptionSet{byName: make(map[string]*Option)}
	for class, defs := range optionDefs {
		for _, def := range defs {
			opt := &Option{
				Name:  def.name,
				Class: OptionClass(class),
				Value: def.value,
			}
			s.tables[class] = append(s.tables[class], opt)
			s.byName[def.name] = opt
		}
	}
	return s
}

// Lookup returns the option called name.
func (s *OptionSet) Lookup(name string) (*Option, bool) {
	opt, ok := s.byName[name]
	return opt, ok
}

// SetOption marks the option called name as set with the given argument.
func (s *OptionSet) SetOption(name, arg string) error {
	opt, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("unknown option %q", name)
	}
	opt.Set = true
	opt.Arg = arg
	return nil
}

// Table returns the options of one class, in table order.
func (s *OptionSet) Table(class OptionClass) []*Option {
	if class >= numOptionClasses {
		return nil
	}
	return s.tables[class]
}

// Enabled returns the set options: compile-time first, then runtime, then
// dynamic-runtime, each in table order.
func (s *OptionSet) Enabled() []*Option {
	var ret []*Option
	for _, table := range s.tables {
		for _, opt := range table {
			if opt.Set {
				ret = append(ret, opt)
			}
		}
	}
	return ret
}
