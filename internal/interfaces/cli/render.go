// Package cli renders enginectl's terminal output: styled status/queue
// views and a markdown-rendered config reference.
package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	colorGreen = lipgloss.Color("#5FD787")
	colorRed = lipgloss.Color("#FF5F5F")
	colorYellow = lipgloss.Color("#FFD75F")
	colorCyan = lipgloss.Color("#5FD7D7")
	colorGray = lipgloss.Color("#808080")
)

// Renderer formats gateway status/queue/info payloads for a terminal.
type Renderer struct {
	glamour *glamour.TermRenderer
	width int
}

// NewRenderer builds a renderer for the given terminal width.
func NewRenderer(width int) *Renderer {
	if width <= 0 {
		width = 80
	}
	r, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	return &Renderer{glamour: r, width: width}
}

// RenderMarkdown renders md through glamour, falling back to the raw text
// if no renderer could be constructed for this terminal.
func (r *Renderer) RenderMarkdown(md string) string {
	if r.glamour == nil {
		return md
	}
	out, err := r.glamour.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimSpace(out)
}

// RenderHealth formats the GET /health payload as a boxed status panel.
func (r *Renderer) RenderHealth(h map[string]interface{}) string {
	titleStyle := lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	keyStyle := lipgloss.NewStyle().Foreground(colorGray)

	var lines []string
	lines = append(lines, titleStyle.Render("gateway health"))
	for _, key := range []string{"deployment_mode", "browser_connected", "page_ready", "worker_running", "queue_length"} {
		v, ok := h[key]
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("  %s %v", keyStyle.Render(key+":"), styledValue(key, v)))
	}

	box := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	return box.Render(strings.Join(lines, "\n"))
}

func styledValue(key string, v interface{}) string {
	switch key {
	case "browser_connected", "page_ready", "worker_running":
		if b, ok := v.(bool); ok {
			if b {
				return lipgloss.NewStyle().Foreground(colorGreen).Render("yes")
			}
			return lipgloss.NewStyle().Foreground(colorRed).Render("no")
		}
	case "deployment_mode":
		mode := fmt.Sprintf("%v", v)
		style := lipgloss.NewStyle().Foreground(colorGreen)
		if mode != "normal" {
			style = lipgloss.NewStyle().Foreground(colorRed)
		}
		return style.Render(mode)
	}
	return fmt.Sprintf("%v", v)
}

// RenderQueue formats the GET /v1/queue payload.
func (r *Renderer) RenderQueue(q map[string]interface{}) string {
	nameStyle := lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	return fmt.Sprintf("%s %v", nameStyle.Render("queue_length:"), q["queue_length"])
}
