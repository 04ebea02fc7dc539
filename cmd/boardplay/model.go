package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tactiboard/engine/internal/api"
	"github.com/tactiboard/engine/internal/handlers"
	v1 "github.com/tactiboard/engine/internal/storage/memory/export/v1"
	"github.com/tactiboard/engine/pkg/core"
)

// idleInterval is the poll interval while nothing plays.
const idleInterval = time.Second

const (
	seekStep   = 1000.0 // ms
	sidebarW   = 34
	statusRows = 2
)

type (
	boardMsg   handlers.BoardView
	libraryMsg []v1.SequenceSummary
	statusMsg  string
	errMsg     struct{ err error }

	// tickMsg carries the poll generation it was scheduled for; ticks from
	// an older generation are dropped so only one poll chain runs.
	tickMsg struct{ gen uint64 }
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("231"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	sidebarStyle  = lipgloss.NewStyle().Padding(0, 1).Width(sidebarW)
)

type model struct {
	client   *api.Client
	interval time.Duration

	view     handlers.BoardView
	library  []v1.SequenceSummary
	selected int

	width, height int
	gen           uint64
	status        string
	err           error
}

func initialModel(client *api.Client, interval time.Duration) model {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return model{client: client, interval: interval, status: "connected"}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetchBoard(), m.fetchLibrary(), m.tick())
}

func (m model) playing() bool {
	return m.view.Playback.Status == core.PlaybackPlaying
}

func (m model) tick() tea.Cmd {
	d := idleInterval
	if m.playing() {
		d = m.interval
	}
	gen := m.gen
	return tea.Tick(d, func(time.Time) tea.Msg { return tickMsg{gen: gen} })
}

// restartPolling supersedes the running poll chain.
func (m *model) restartPolling() tea.Cmd {
	m.gen++
	return m.tick()
}

func (m model) fetchBoard() tea.Cmd {
	return func() tea.Msg {
		view, err := m.client.Board()
		if err != nil {
			return errMsg{err}
		}
		return boardMsg(view)
	}
}

func (m model) fetchLibrary() tea.Cmd {
	return func() tea.Msg {
		lib, err := m.client.Library()
		if err != nil {
			return errMsg{err}
		}
		return libraryMsg(lib)
	}
}

// command dispatches a board command and refreshes the board afterwards.
func (m model) command(cmd string, args ...string) tea.Cmd {
	return func() tea.Msg {
		if _, err := m.client.Command(cmd, args...); err != nil {
			return errMsg{fmt.Errorf("%s: %w", cmd, err)}
		}
		return statusMsg(strings.Trim(strings.ToLower(cmd), ":"))
	}
}

func (m model) current() (v1.SequenceSummary, bool) {
	if m.selected < 0 || m.selected >= len(m.library) {
		return v1.SequenceSummary{}, false
	}
	return m.library[m.selected], true
}

func (m model) copySequence(id string) tea.Cmd {
	return func() tea.Msg {
		seq, err := m.client.Sequence(id)
		if err != nil {
			return errMsg{err}
		}
		data, err := json.MarshalIndent(seq, "", "  ")
		if err != nil {
			return errMsg{err}
		}
		if err := clipboard.WriteAll(string(data)); err != nil {
			return errMsg{fmt.Errorf("copy to clipboard: %w", err)}
		}
		return statusMsg(fmt.Sprintf("copied %s (%d steps)", id, len(seq.Steps)))
	}
}

func (m model) refineFromClipboard(id string) tea.Cmd {
	return func() tea.Msg {
		text, err := clipboard.ReadAll()
		if err != nil {
			return errMsg{fmt.Errorf("read clipboard: %w", err)}
		}
		newID, err := m.client.Refine(id, []byte(text))
		if err != nil {
			return errMsg{fmt.Errorf("refine %s: %w", id, err)}
		}
		return statusMsg("refined as " + newID)
	}
}

func (m model) deleteSequence(id string) tea.Cmd {
	return func() tea.Msg {
		if err := m.client.DeleteSequence(id); err != nil {
			return errMsg{err}
		}
		return statusMsg("deleted " + id)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		return m, tea.Batch(m.fetchBoard(), m.tick())

	case boardMsg:
		wasPlaying := m.playing()
		m.view = handlers.BoardView(msg)
		m.err = nil
		if wasPlaying != m.playing() {
			// switch poll rate
			return m, m.restartPolling()
		}
		return m, nil

	case libraryMsg:
		m.library = msg
		if m.selected >= len(m.library) {
			m.selected = max(len(m.library)-1, 0)
		}
		return m, nil

	case statusMsg:
		m.status = string(msg)
		m.err = nil
		return m, tea.Batch(m.fetchBoard(), m.fetchLibrary(), m.restartPolling())

	case errMsg:
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	st := m.view.Playback
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "j", "down":
		if m.selected < len(m.library)-1 {
			m.selected++
		}
	case "k", "up":
		if m.selected > 0 {
			m.selected--
		}
	case "enter":
		if seq, ok := m.current(); ok {
			return m, m.command(":PLAYBACK:PLAY:", seq.ID)
		}
	case " ":
		switch st.Status {
		case core.PlaybackPlaying:
			return m, m.command(":PLAYBACK:PAUSE:")
		case core.PlaybackPaused:
			return m, m.command(":PLAYBACK:RESUME:")
		}
	case "s":
		return m, m.command(":PLAYBACK:STOP:")
	case "left", "h":
		return m, m.command(":PLAYBACK:SEEK:", formatMillis(max(st.CurrentTime-seekStep, 0)))
	case "right", "l":
		return m, m.command(":PLAYBACK:SEEK:", formatMillis(st.CurrentTime+seekStep))
	case "+", "=":
		return m, m.command(":PLAYBACK:SPEED:", formatSpeed(nextSpeed(st.Speed, true)))
	case "-":
		return m, m.command(":PLAYBACK:SPEED:", formatSpeed(nextSpeed(st.Speed, false)))
	case "u":
		return m, m.command(":BOARD:UNDO:")
	case "r":
		return m, m.command(":BOARD:REDO:")
	case "S":
		return m, m.command(":LIBRARY:SAVE:")
	case "y":
		if seq, ok := m.current(); ok {
			return m, m.copySequence(seq.ID)
		}
	case "e":
		if seq, ok := m.current(); ok {
			return m, m.refineFromClipboard(seq.ID)
		}
	case "d":
		if seq, ok := m.current(); ok {
			return m, m.deleteSequence(seq.ID)
		}
	case "g":
		return m, tea.Batch(m.fetchBoard(), m.fetchLibrary())
	}
	return m, nil
}

// speedSteps are the playback rates cycled by + and -.
var speedSteps = []float64{0.25, 0.5, 1, 1.5, 2, 4}

func nextSpeed(cur float64, up bool) float64 {
	if up {
		for _, s := range speedSteps {
			if s > cur {
				return s
			}
		}
		return speedSteps[len(speedSteps)-1]
	}
	for i := len(speedSteps) - 1; i >= 0; i-- {
		if speedSteps[i] < cur {
			return speedSteps[i]
		}
	}
	return speedSteps[0]
}

func formatMillis(ms float64) string {
	return strconv.FormatFloat(ms, 'f', 0, 64)
}

func formatSpeed(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}

func (m model) View() string {
	if m.width == 0 {
		return "loading..."
	}
	fieldCols := max(m.width-sidebarW-4, 10)
	fieldRows := max(m.height-statusRows-2, 5)

	field := renderField(m.view, fieldCols, fieldRows)
	body := lipgloss.JoinHorizontal(lipgloss.Top, field, m.sidebarView(fieldRows))
	return lipgloss.JoinVertical(lipgloss.Left, body, m.statusView())
}

func (m model) sidebarView(rows int) string {
	lines := []string{titleStyle.Render("Library"), ""}
	if len(m.library) == 0 {
		lines = append(lines, dimStyle.Render("no sequences recorded"))
	}
	for i, seq := range m.library {
		title := seq.Title
		if title == "" {
			title = seq.ID
		}
		line := fmt.Sprintf("%s  %5.1fs", truncate(title, sidebarW-12), seq.TotalDuration/1000)
		if i == m.selected {
			lines = append(lines, selectedStyle.Render("> "+line))
		} else {
			lines = append(lines, "  "+line)
		}
	}
	lines = append(lines, "",
		dimStyle.Render("enter play  space pause"),
		dimStyle.Render("s stop  ←/→ seek  +/- speed"),
		dimStyle.Render("u undo  r redo  S save"),
		dimStyle.Render("y copy  e refine  d delete"),
		dimStyle.Render("g refresh  q quit"),
	)
	if len(lines) > rows {
		lines = lines[:rows]
	}
	return sidebarStyle.Render(strings.Join(lines, "\n"))
}

func (m model) statusView() string {
	st := m.view.Playback
	total := 0.0
	for _, seq := range m.library {
		if seq.ID == st.ActiveSequenceID {
			total = seq.TotalDuration
		}
	}
	line := fmt.Sprintf("%s  %.1fs / %.1fs  x%s  history %d/%d",
		st.Status, st.CurrentTime/1000, total/1000, formatSpeed(st.Speed),
		m.view.HistoryCursor+1, m.view.HistoryLen)
	if m.err != nil {
		return line + "\n" + errStyle.Render(m.err.Error())
	}
	return line + "\n" + dimStyle.Render(m.status)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s + strings.Repeat(" ", n-len(r))
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
