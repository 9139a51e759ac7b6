// Package ui draws the viewer's overlays: the status HUD, the timeline, the
// perf panel and the raygui settings panel. Readouts are described by
// metadata so panels can be extended without new drawing code.
package ui

import rl "github.com/gen2brain/raylib-go/raylib"

// WidgetType specifies how a field should be rendered.
type WidgetType int

const (
	WidgetText WidgetType = iota // Plain text with format string
	WidgetBar                    // Progress bar [0, 1]
	WidgetSwatch                 // Color preview square
	WidgetSection                // Section header
	WidgetSpacer                 // Vertical spacing
)

// FieldDescriptor defines how to display a single readout.
type FieldDescriptor struct {
	Label       string
	Widget      WidgetType
	Format      string             // Printf format for numeric text
	Visible     func(any) bool     // nil = always visible
	Getter      func(any) float32  // numeric value
	TextGetter  func(any) string   // text value, preferred over Getter
	ColorGetter func(any) rl.Color // swatch color
}

// SectionDescriptor groups fields under a header.
type SectionDescriptor struct {
	Title   string
	Fields  []FieldDescriptor
	Visible func(any) bool
}

// Theme holds UI styling constants.
type Theme struct {
	PanelBg        rl.Color
	PanelBorder    rl.Color
	SectionHeader  rl.Color
	LabelColor     rl.Color
	ValueColor     rl.Color
	BarBg          rl.Color
	BarFill        rl.Color
	Marker         rl.Color
	Padding        int32
	LineHeight     int32
	LabelWidth     int32
	BarHeight      int32
	FontSize       int32
	HeaderFontSize int32
}

// DefaultTheme returns the default UI theme.
func DefaultTheme() Theme {
	return Theme{
		PanelBg:        rl.Color{R: 20, G: 25, B: 30, A: 220},
		PanelBorder:    rl.Color{R: 60, G: 70, B: 80, A: 255},
		SectionHeader:  rl.Yellow,
		LabelColor:     rl.LightGray,
		ValueColor:     rl.RayWhite,
		BarBg:          rl.Color{R: 40, G: 40, B: 40, A: 255},
		BarFill:        rl.Color{R: 100, G: 150, B: 200, A: 255},
		Marker:         rl.Orange,
		Padding:        10,
		LineHeight:     16,
		LabelWidth:     70,
		BarHeight:      12,
		FontSize:       12,
		HeaderFontSize: 14,
	}
}
