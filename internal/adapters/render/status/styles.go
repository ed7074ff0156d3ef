package status

import (
	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	title       lipgloss.Style
	header      lipgloss.Style
	account     lipgloss.Style
	detail      lipgloss.Style
	warning     lipgloss.Style
	success     lipgloss.Style
	section     lipgloss.Style
	empty       lipgloss.Style
	counterMeta lipgloss.Style
	kinds       map[domain.ActionKind]lipgloss.Style
	bar         barStyles
}

type barStyles struct {
	bracket   lipgloss.Style
	fill      lipgloss.Style
	empty     lipgloss.Style
	text      lipgloss.Style
	textFaint lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:       lipgloss.NewStyle().Bold(true),
		header:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		account:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		detail:      lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		warning:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		success:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("114")),
		section:     lipgloss.NewStyle().MarginTop(1),
		empty:       lipgloss.NewStyle().Faint(true),
		counterMeta: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		kinds: map[domain.ActionKind]lipgloss.Style{
			domain.ActionBless: lipgloss.NewStyle().Foreground(lipgloss.Color("222")),
			domain.ActionCurse: lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
		},
		bar: barStyles{
			bracket:   lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
			fill:      lipgloss.NewStyle().Foreground(lipgloss.Color("159")),
			empty:     lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
			text:      lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
			textFaint: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		},
	}
}

func (s styles) kind(kind domain.ActionKind) lipgloss.Style {
	if style, ok := s.kinds[kind]; ok {
		return style
	}
	return s.detail
}
