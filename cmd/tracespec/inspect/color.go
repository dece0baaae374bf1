// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package inspect

import (
	"fmt"

	"github.com/fatih/color"
)

// ColorMode selects when output is colored.
type ColorMode string

const (
	Always ColorMode = "always"
	Never  ColorMode = "never"
	Auto   ColorMode = "auto"
)

func ParseColorMode(s string) (ColorMode, error) {
	switch m := ColorMode(s); m {
	case Always, Never, Auto:
		return m, nil
	}
	return "", fmt.Errorf("invalid color mode %q, expected always, never or auto", s)
}

type colorer struct {
	colors []*color.Color
	record *color.Color
	other  *color.Color
	header *color.Color
}

func newColorer(when ColorMode) *colorer {
	record := color.New(color.FgCyan)
	other := color.New(color.FgYellow)
	header := color.New(color.Bold)

	c := &colorer{
		record: record,
		other:  other,
		header: header,
		colors: []*color.Color{record, other, header},
	}
	for _, v := range c.colors {
		switch {
		case when == Always:
			v.EnableColor()
		case when == Never:
			v.DisableColor()
		// NoColor is global and set dynamically
		case color.NoColor:
			v.DisableColor()
		default:
			v.EnableColor()
		}
	}
	return c
}
