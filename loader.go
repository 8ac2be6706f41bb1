package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	// Minimum time before showing the loading screen
	loadingDelay = 200 * time.Millisecond
)

// indexProgressMsg is sent to update loading progress
type indexProgressMsg IndexProgress

// indexCompleteMsg is sent when indexing is complete
type indexCompleteMsg struct{}

// loaderModel handles the loading screen
type loaderModel struct {
	spinner      spinner.Model
	progress     IndexProgress
	windowWidth  int
	windowHeight int
	startTime    time.Time
	showLoader   bool
}

func newLoaderModel() loaderModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return loaderModel{
		spinner:   s,
		startTime: time.Now(),
	}
}

func (m loaderModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		tea.WindowSize(),
	)
}

func (m loaderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if !m.showLoader && time.Since(m.startTime) > loadingDelay {
			m.showLoader = true
		}
		return m, cmd

	case indexProgressMsg:
		m.progress = IndexProgress(msg)
		if !m.showLoader && time.Since(m.startTime) > loadingDelay {
			m.showLoader = true
		}
		return m, nil

	case indexCompleteMsg:
		return m, tea.Quit
	}

	return m, nil
}

func (m loaderModel) View() string {
	if !m.showLoader {
		return ""
	}

	return lipgloss.Place(m.windowWidth, m.windowHeight, lipgloss.Center, lipgloss.Center, progressLine(m.spinner.View(), m.progress, m.windowWidth))
}

// progressLine renders the status shown while the vault is indexed
func progressLine(spin string, progress IndexProgress, width int) string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205"))

	dimStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	countStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("212"))

	b.WriteString(titleStyle.Render("otsync") + " ")
	b.WriteString(spin + " ")

	switch progress.Phase {
	case "scanning":
		b.WriteString("Scanning vault...")
		if progress.PagesFound > 0 {
			b.WriteString(countStyle.Render(fmt.Sprintf(" %d pages", progress.PagesFound)))
		}
	case "indexing":
		b.WriteString("Indexing pages...")
		if progress.PagesDone > 0 && progress.PagesFound > 0 {
			pct := float64(progress.PagesDone) / float64(progress.PagesFound) * 100
			b.WriteString(countStyle.Render(fmt.Sprintf(" %d/%d", progress.PagesDone, progress.PagesFound)))
			b.WriteString(dimStyle.Render(fmt.Sprintf(" (%.0f%%)", pct)))
		}
		if progress.TasksFound > 0 {
			b.WriteString(dimStyle.Render(fmt.Sprintf(" • %d tasks", progress.TasksFound)))
		}
	default:
		b.WriteString("Loading...")
	}

	if progress.CurrentPage != "" {
		page := progress.CurrentPage
		maxLen := max(width-40, 20)
		if len(page) > maxLen {
			page = "..." + page[len(page)-maxLen+3:]
		}
		b.WriteString("\n" + dimStyle.Render(page))
	}

	return b.String()
}

// RunIndexWithLoader indexes the vault, showing a progress screen when the
// pass takes longer than loadingDelay.
func RunIndexWithLoader(indexer *Indexer, vault *Vault) (int, error) {
	var (
		tasks  int
		runErr error
	)
	done := make(chan struct{})
	progress := make(chan IndexProgress, 10)

	go func() {
		defer close(done)
		defer close(progress)

		tasks, runErr = indexer.IndexVault(vault, func(p IndexProgress) {
			select {
			case progress <- p:
			default:
				// Don't block if channel is full
			}
		})
	}()

	// Wait a bit to see if indexing finishes quickly
	select {
	case <-done:
		return tasks, runErr
	case <-time.After(loadingDelay):
		// Continue to show loader
	}

	m := newLoaderModel()
	p := tea.NewProgram(m, tea.WithAltScreen())

	// Forward progress to TUI
	go func() {
		for prog := range progress {
			p.Send(indexProgressMsg(prog))
		}
	}()

	// Monitor for completion
	go func() {
		<-done
		p.Send(indexCompleteMsg{})
	}()

	p.Run()
	<-done

	return tasks, runErr
}
