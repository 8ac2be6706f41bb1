package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	defaultWindowHeight = 24
	defaultWindowWidth  = 80
	minVisibleHeight    = 3
	cursorCharacter     = ">"
)

// pageSyncedMsg is sent after the sync worker re-indexed a page
type pageSyncedMsg struct {
	page string
	err  error
}

// editorFinishedMsg is sent when the external editor closes
type editorFinishedMsg struct {
	err  error
	page string
}

// model is the BubbleTea model
type model struct {
	app     *App
	queries []*Query

	sections    []QuerySection
	tasks       []TaskResult
	taskSection []string
	taskGroup   []string

	cursor       int
	quitting     bool
	err          error
	status       string
	windowHeight int
	windowWidth  int
	aboutOpen    bool
	viewport     viewport.Model

	searching        bool
	searchQuery      string
	searchNavigating bool
	filtered         []int

	watcher   *Watcher
	debouncer *Debouncer
}

func newModel(app *App, queries []*Query, watcher *Watcher) (model, error) {
	m := model{
		app:          app,
		queries:      queries,
		windowHeight: defaultWindowHeight,
		windowWidth:  defaultWindowWidth,
		viewport:     viewport.New(defaultWindowWidth, defaultWindowHeight),
		watcher:      watcher,
		debouncer:    NewDebouncer(watchDebounce),
	}

	if err := m.refresh(); err != nil {
		return m, err
	}

	return m, nil
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{tea.WindowSize()}
	if m.watcher != nil {
		cmds = append(cmds, m.watcher.WatchCmd())
	}
	return tea.Batch(cmds...)
}

// refresh re-runs the queries against the index, keeping the cursor in range
func (m *model) refresh() error {
	sections, err := m.app.Provider.Sections(m.queries)
	if err != nil {
		return err
	}

	m.sections = sections
	m.tasks = nil
	m.taskSection = nil
	m.taskGroup = nil

	for _, s := range sections {
		for _, g := range s.Groups {
			for _, task := range g.Tasks {
				m.tasks = append(m.tasks, task)
				m.taskSection = append(m.taskSection, s.Name)
				m.taskGroup = append(m.taskGroup, g.Name)
			}
		}
	}

	if m.searching && m.searchQuery != "" {
		m.filterBySearch()
	} else {
		m.clampCursor(len(m.tasks))
	}

	return nil
}

func (m *model) filterBySearch() {
	if m.searchQuery == "" {
		m.filtered = nil
		return
	}

	query := strings.ToLower(m.searchQuery)
	var filtered []int

	for i, task := range m.tasks {
		if strings.Contains(strings.ToLower(task.Name), query) ||
			strings.Contains(strings.ToLower(task.Page), query) ||
			strings.Contains(strings.ToLower(m.taskSection[i]), query) ||
			strings.Contains(strings.ToLower(m.taskGroup[i]), query) {
			filtered = append(filtered, i)
		}
	}

	m.filtered = filtered
	m.clampCursor(len(filtered))
}

// activeTasks returns indexes into m.tasks for the rows currently shown
func (m *model) activeTasks() []int {
	if m.searching && m.searchQuery != "" {
		return m.filtered
	}

	all := make([]int, len(m.tasks))
	for i := range all {
		all[i] = i
	}
	return all
}

func (m *model) selected() (TaskResult, bool) {
	rows := m.activeTasks()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return TaskResult{}, false
	}
	return m.tasks[rows[m.cursor]], true
}

func (m *model) clampCursor(length int) {
	m.cursor = max(0, min(m.cursor, length-1))
}

// cycleSelected advances the selected task and its linked copies
func (m *model) cycleSelected() {
	task, ok := m.selected()
	if !ok {
		return
	}

	outcome, err := m.app.CycleTask(task.Page, task.Pos, false)

	switch {
	case outcome != nil && len(outcome.Notices) > 0:
		m.status = strings.Join(outcome.Notices, " • ")
	case outcome != nil && outcome.Result != nil:
		res := outcome.Result
		m.status = fmt.Sprintf("%s@%d [%s] → [%s]", res.Page, res.Pos, res.From, res.To)
		if n := len(res.References); n > 0 {
			m.status += fmt.Sprintf(" (%d linked)", n)
		}
	}

	if err != nil {
		m.status = fmt.Sprintf("cycle failed: %v", err)
	}

	if err := m.refresh(); err != nil {
		m.err = err
	}
}

// openInEditor opens the task's page in $EDITOR at the task's line
func (m *model) openInEditor(task TaskResult) tea.Cmd {
	path, err := m.app.Vault.PagePath(task.Page)
	if err != nil {
		m.status = err.Error()
		return nil
	}

	line := 1
	if text, err := m.app.Vault.ReadPage(task.Page); err == nil && task.Pos <= len(text) {
		line += strings.Count(text[:task.Pos], "\n")
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	c := exec.Command(editor, fmt.Sprintf("+%d", line), path)
	page := task.Page

	return tea.ExecProcess(c, func(err error) tea.Msg {
		return editorFinishedMsg{err: err, page: page}
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowHeight = msg.Height
		m.windowWidth = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height

	case editorFinishedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("editor: %v", msg.err)
		}
		m.app.Syncer.ScheduleFileSync(msg.page)
		return m, nil

	case FileChangeMsg:
		page := msg.Page
		m.debouncer.Trigger(page, func() {
			m.app.Syncer.ScheduleFileSync(page)
		})
		if m.watcher != nil {
			return m, m.watcher.WatchCmd()
		}
		return m, nil

	case pageSyncedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("sync %s: %v", msg.page, msg.err)
		}
		if err := m.refresh(); err != nil {
			m.err = err
		}
		return m, nil

	case tea.KeyMsg:
		m.status = ""

		if m.aboutOpen {
			switch msg.String() {
			case "esc", "ctrl+[", "q", "?":
				m.aboutOpen = false
				return m, nil
			case "ctrl+c":
				m.quitting = true
				return m, tea.Quit
			}
			return m, nil
		}

		if msg.String() == "?" && !(m.searching && !m.searchNavigating) {
			m.aboutOpen = true
			return m, nil
		}

		if m.searching && !m.searchNavigating {
			switch msg.String() {
			case "esc", "ctrl+[":
				m.stopSearch()
				return m, nil

			case "enter":
				if len(m.filtered) > 0 {
					m.searchNavigating = true
				} else if m.searchQuery == "" {
					m.searching = false
				}
				return m, nil

			case "backspace":
				if len(m.searchQuery) > 0 {
					m.searchQuery = m.searchQuery[:len(m.searchQuery)-1]
					m.filterBySearch()
				}
				return m, nil

			case "ctrl+c":
				m.quitting = true
				return m, tea.Quit

			case "up":
				if m.cursor > 0 {
					m.cursor--
				}
				return m, nil

			case "down":
				if m.cursor < len(m.activeTasks())-1 {
					m.cursor++
				}
				return m, nil

			default:
				if len(msg.String()) == 1 {
					m.searchQuery += msg.String()
					m.filterBySearch()
				}
				return m, nil
			}
		}

		switch msg.String() {
		case "q", "ctrl+c":
			if m.searchNavigating && msg.String() == "q" {
				m.stopSearch()
				return m, nil
			}
			m.quitting = true
			return m, tea.Quit

		case "esc", "ctrl+[":
			if m.searching {
				m.stopSearch()
			}

		case "backspace":
			if m.searchNavigating {
				m.searchNavigating = false
			}

		case "/":
			if m.searchNavigating {
				m.stopSearch()
				return m, nil
			}
			m.searching = true
			m.searchQuery = ""
			m.filtered = nil
			m.cursor = 0

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}

		case "down", "j":
			if m.cursor < len(m.activeTasks())-1 {
				m.cursor++
			}

		case "g":
			m.cursor = 0

		case "G":
			m.cursor = max(0, len(m.activeTasks())-1)

		case "enter", " ", "x":
			m.cycleSelected()

		case "e":
			if task, ok := m.selected(); ok {
				return m, m.openInEditor(task)
			}

		case "r":
			if _, err := m.app.Indexer.IndexVault(m.app.Vault, nil); err != nil {
				m.status = fmt.Sprintf("reindex failed: %v", err)
			}
			if err := m.refresh(); err != nil {
				m.err = err
			}
		}
	}

	return m, nil
}

func (m *model) stopSearch() {
	m.searching = false
	m.searchNavigating = false
	m.searchQuery = ""
	m.filtered = nil
	m.cursor = 0
}

// viewLine represents a renderable line with its associated task index
type viewLine struct {
	content   string
	taskIndex int
}

func (m model) renderHelpBar(rightInfo string) string {
	return m.renderFooterRight(rightInfo, true)
}

func (m model) renderFooterRight(rightInfo string, applyInfoStyle bool) string {
	if rightInfo == "" {
		return helpBarStyle.Width(m.windowWidth).Render("")
	}

	rightPart := rightInfo
	if applyInfoStyle {
		rightPart = helpBarInfoStyle.Render(rightInfo)
	}
	spacing := max(0, m.windowWidth-lipgloss.Width(rightPart))

	return helpBarStyle.Width(m.windowWidth).Render(strings.Repeat(" ", spacing) + rightPart)
}

func (m model) renderFooterSplit(left, right string) string {
	if left == "" && right == "" {
		return helpBarStyle.Width(m.windowWidth).Render("")
	}
	spacing := max(0, m.windowWidth-lipgloss.Width(left)-lipgloss.Width(right))
	gap := helpBarStyle.Render(strings.Repeat(" ", spacing))
	return left + gap + right
}

func (m model) buildViewport(lines []viewLine, cursorLineIdx int, contentHeight int) (string, int, int, int) {
	if contentHeight < minVisibleHeight {
		contentHeight = minVisibleHeight
	}

	width := m.windowWidth
	if width <= 0 {
		width = defaultWindowWidth
	}

	vp := m.viewport
	vp.Width = width
	vp.Height = contentHeight

	if len(lines) == 0 {
		vp.SetContent("")
		view := lipgloss.NewStyle().Width(width).Height(contentHeight).Render(vp.View())
		return normalizeViewHeight(view, contentHeight), 0, 0, 0
	}

	contentLines := make([]string, len(lines))
	lineHeights := make([]int, len(lines))
	totalRenderedLines := 0

	for i, line := range lines {
		contentLines[i] = line.content
		height := 1 + strings.Count(line.content, "\n")
		lineHeights[i] = height
		totalRenderedLines += height
	}

	cursorLineIdx = max(0, min(cursorLineIdx, len(lines)-1))

	startLine := 0
	endLine := len(lines)
	startRow := 0

	if totalRenderedLines > contentHeight {
		startLine, endLine = calculateVisibleRange(cursorLineIdx, lineHeights, contentHeight)
		for i := 0; i < startLine; i++ {
			startRow += lineHeights[i]
		}
	}

	vp.SetContent(strings.Join(contentLines, "\n"))
	vp.YOffset = startRow

	view := lipgloss.NewStyle().Width(width).Height(contentHeight).Render(vp.View())
	return normalizeViewHeight(view, contentHeight), startLine, endLine, totalRenderedLines
}

func normalizeViewHeight(view string, height int) string {
	if height <= 0 {
		return ""
	}

	lines := strings.Split(view, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (m model) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err)
	}

	if m.quitting {
		return "Goodbye!\n"
	}

	if m.aboutOpen {
		return m.helpView()
	}

	header := titleStyle.Render(" otsync ")
	if m.app.Profile.Name != "" {
		header += titleNameStyle.Render(m.app.Profile.Name + " ")
	}
	header += countStyle.Render(fmt.Sprintf("%d tasks", len(m.tasks)))
	headerView := headerBarStyle.Width(m.windowWidth).Render(header)

	contentHeight := max(1, m.windowHeight-2)

	searchLine := helpBarKeyStyle.Render("/") + helpBarDescStyle.Render(" search")
	if m.searching {
		searchLine = searchStyle.Render("/") + searchInputStyle.Render(m.searchQuery)
		if !m.searchNavigating {
			searchLine += searchStyle.Render("_")
		}
	}

	footer := func(info string) string {
		if m.status != "" {
			return m.renderFooterSplit(searchLine, statusStyle.Render(m.status))
		}
		if m.searching {
			return m.renderFooterSplit(searchLine, helpBarInfoStyle.Render(info))
		}
		return m.renderHelpBar(info)
	}

	var lines []viewLine
	cursorLineIdx := 0

	switch {
	case len(m.tasks) == 0:
		lines = []viewLine{{content: "No tasks found.", taskIndex: -1}}

	case m.searching && m.searchQuery != "":
		lines, cursorLineIdx = m.searchLines()

	default:
		lines, cursorLineIdx = m.sectionLines()
	}

	viewportView, startLine, endLine, totalRenderedLines := m.buildViewport(lines, cursorLineIdx, contentHeight)

	info := ""
	switch {
	case m.searching && m.searchQuery != "":
		info = fmt.Sprintf("%d matches", len(m.filtered))
	case totalRenderedLines > contentHeight:
		info = fmt.Sprintf("%d-%d of %d", startLine+1, endLine, len(lines))
	}

	return lipgloss.JoinVertical(lipgloss.Left, headerView, viewportView, footer(info))
}

func (m model) renderRow(task TaskResult, selected bool) string {
	line := renderTask(task.State, task.Name)
	if task.Done {
		line = doneStyle.Render(line)
	}
	if task.Deadline != "" {
		line += " " + dueStyle.Render("📅 "+task.Deadline)
	}
	if selected {
		line = selectedStyle.Render(line)
	}
	return line
}

func (m model) cursorMark(i int) string {
	if m.cursor == i {
		return cursorStyle.Render(cursorCharacter)
	}
	return " "
}

func (m model) searchLines() ([]viewLine, int) {
	if len(m.filtered) == 0 {
		return []viewLine{{content: fileStyle.Render("  No matching tasks"), taskIndex: -1}}, 0
	}

	query := strings.ToLower(m.searchQuery)
	lines := make([]viewLine, 0, len(m.filtered))

	for row, idx := range m.filtered {
		task := m.tasks[idx]

		matchInfo := ""
		if !strings.Contains(strings.ToLower(task.Name), query) {
			switch {
			case strings.Contains(strings.ToLower(m.taskSection[idx]), query):
				matchInfo = matchStyle.Render(fmt.Sprintf("→%s ", m.taskSection[idx]))
			case strings.Contains(strings.ToLower(m.taskGroup[idx]), query):
				matchInfo = matchStyle.Render(fmt.Sprintf("→%s ", m.taskGroup[idx]))
			}
		}

		fileInfo := fileStyle.Render(fmt.Sprintf(" (%s@%d)", task.Page, task.Pos))
		lines = append(lines, viewLine{
			content:   m.cursorMark(row) + matchInfo + m.renderRow(task, m.cursor == row) + fileInfo,
			taskIndex: row,
		})
	}

	return lines, m.cursor
}

func (m model) sectionLines() ([]viewLine, int) {
	var lines []viewLine
	taskIndex := 0
	cursorLineIdx := 0

	for _, section := range m.sections {
		if len(section.Tasks) == 0 {
			continue
		}

		if section.Name != "" {
			lines = append(lines, viewLine{
				content:   sectionStyle.Render("# "+section.Name) + countStyle.Render(fmt.Sprintf(" (%d)", len(section.Tasks))),
				taskIndex: -1,
			})
		}

		grouped := section.Query != nil && section.Query.GroupBy != ""
		firstGroup := true

		for _, group := range section.Groups {
			if len(group.Tasks) == 0 {
				continue
			}

			indent := ""
			if grouped && group.Name != "" {
				if !firstGroup {
					lines = append(lines, viewLine{taskIndex: -1})
				}
				lines = append(lines, viewLine{
					content:   groupStyle.Render("  ## "+group.Name) + countStyle.Render(fmt.Sprintf(" (%d)", len(group.Tasks))),
					taskIndex: -1,
				})
				indent = "  "
				firstGroup = false
			}

			for _, task := range group.Tasks {
				fileInfo := fileStyle.Render(fmt.Sprintf(" (%s@%d)", task.Page, task.Pos))
				if grouped && section.Query.GroupBy == "page" {
					fileInfo = fileStyle.Render(fmt.Sprintf(" (@%d)", task.Pos))
				}

				if m.cursor == taskIndex {
					cursorLineIdx = len(lines)
				}

				lines = append(lines, viewLine{
					content:   indent + m.cursorMark(taskIndex) + m.renderRow(task, m.cursor == taskIndex) + fileInfo,
					taskIndex: taskIndex,
				})
				taskIndex++
			}
		}
	}

	return lines, cursorLineIdx
}

func (m model) helpView() string {
	versionLine := fmt.Sprintf("otsync v%s", strings.TrimSpace(version))
	if sha := strings.TrimSpace(buildSHA); sha != "" {
		versionLine += fmt.Sprintf(" (%s)", sha)
	}

	items := [][2]string{
		{"↑/k ↓/j", "move"},
		{"g / G", "top / bottom"},
		{"enter/space/x", "cycle state"},
		{"e", "open in $EDITOR"},
		{"r", "reindex vault"},
		{"/", "search"},
		{"esc", "leave search"},
		{"?", "help"},
		{"q/ctrl+c", "quit"},
	}

	var b strings.Builder
	b.WriteString(aboutStyle.Render(versionLine) + "\n\n")
	for _, item := range items {
		b.WriteString(helpBarKeyStyle.Width(16).Render(item[0]) + helpBarDescStyle.Render(item[1]) + "\n")
	}
	b.WriteString("\n" + fileStyle.Render("esc/q/? to close"))

	return lipgloss.Place(m.windowWidth, m.windowHeight, lipgloss.Center, lipgloss.Center, aboutBoxStyle.Render(b.String()))
}

// calculateVisibleRange returns start/end indices for visible lines
func calculateVisibleRange(cursorLineIdx int, lineHeights []int, visibleHeight int) (startLine, endLine int) {
	totalLines := len(lineHeights)

	if totalLines == 0 {
		return 0, 0
	}

	cursorPos := 0
	totalHeight := 0

	for i, h := range lineHeights {
		if i < cursorLineIdx {
			cursorPos += h
		}
		totalHeight += h
	}

	if totalHeight <= visibleHeight {
		return 0, totalLines
	}

	startRow := max(0, cursorPos-(visibleHeight-1))

	pos := 0

	for i, h := range lineHeights {
		if pos+h > startRow {
			startLine = i
			break
		}
		pos += h
	}

	rendered := 0

	for i := startLine; i < totalLines; i++ {
		if rendered+lineHeights[i] > visibleHeight {
			break
		}

		rendered += lineHeights[i]
		endLine = i + 1
	}

	if cursorLineIdx >= endLine {
		endLine = cursorLineIdx + 1
	}

	return startLine, endLine
}
