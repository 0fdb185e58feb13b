package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	Playing  rune // ▶ file currently sounding
	Stopped  rune // · idle entry
	Star     rune // ★ star count marker
	Cursor   rune // > selected row
	Progress rune // ━ elapsed part of the progress bar
	Remain   rune // ─ remaining part of the progress bar
}

func New(palette *Palette) *Theme {
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			Playing:  '▶',
			Stopped:  '·',
			Star:     '★',
			Cursor:   '>',
			Progress: '━',
			Remain:   '─',
		},
	}
}

// Color roles mapped to palette positions (0-1)
const (
	RoleBG      = 0.0
	RoleSurface = 0.1
	RoleMuted   = 0.3
	RoleFG      = 0.6
	RoleAccent  = 0.75
	RolePlaying = 0.85
	RoleBright  = 1.0
)

// Style helpers

func (t *Theme) BG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleBG))
}

func (t *Theme) FG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleFG))
}

func (t *Theme) Muted() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleMuted))
}

func (t *Theme) Accent() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleAccent))
}

func (t *Theme) Playing() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RolePlaying))
}

func (t *Theme) Bright() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleBright))
}

// Color returns lipgloss color for any normalized value 0-1
func (t *Theme) Color(norm float64) lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(norm))
}

// Composite styles used by the list view

func (t *Theme) TitleStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Bright()).Bold(true)
}

func (t *Theme) RowStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.FG())
}

func (t *Theme) SelectedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Accent()).Bold(true)
}

func (t *Theme) PlayingStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Playing()).Bold(true)
}

func (t *Theme) MutedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Muted())
}

func rgbToLipgloss(c RGB) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}
