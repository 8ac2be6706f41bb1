package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

const defaultTheme = "dracula"

var glamourRenderer *glamour.TermRenderer

func init() {
	initRenderer(defaultTheme)
}

func initRenderer(theme string) {
	if theme == "" {
		theme = defaultTheme
	}
	glamourRenderer, _ = glamour.NewTermRenderer(
		glamour.WithStandardStyle(theme),
		glamour.WithWordWrap(0),
	)
}

// taskLine is the markdown source rendered for a task. Custom states are
// escaped so they survive as literal text instead of becoming a checkbox.
func taskLine(state, name string) string {
	switch state {
	case " ":
		return "- [ ] " + name
	case "x", "X":
		return "- [x] " + name
	default:
		return fmt.Sprintf("- \\[%s\\] %s", state, name)
	}
}

// renderTask renders a full task line with its state marker using Glamour
func renderTask(state, name string) string {
	line := taskLine(state, name)

	if glamourRenderer == nil {
		return line
	}

	rendered, err := glamourRenderer.Render(line)
	if err != nil {
		return line
	}

	// Keep as single line
	return strings.TrimSpace(rendered)
}
