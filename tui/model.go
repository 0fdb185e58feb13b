package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"bookplayer/metadata"
	"bookplayer/player"
	"bookplayer/theme"
)

// frame drives the redraw loop; ~30fps keeps the progress cursor
// smooth without burning a core.
const frameInterval = 33 * time.Millisecond

// countsInterval is how often fresh play counts are requested.
const countsInterval = 2 * time.Second

type Model struct {
	Orch   *player.Orchestrator
	Worker *metadata.Worker
	Theme  *theme.Theme

	cursor   int
	counts   map[string]metadata.FileMetadata
	quitting bool
	width    int
	height   int
	status   string

	// now-playing state, steered by scheduler responses
	playingPath string
	playing     bool

	// adjustedStart anchors the smoothed cursor: each CurrentPlayTime
	// response re-derives it as now minus the reported position, and
	// frames in between interpolate from the wall clock
	adjustedStart  time.Time
	latestDuration time.Duration
	lastCountsReq  time.Time
}

type FrameMsg time.Time

func NewModel(orch *player.Orchestrator, worker *metadata.Worker, th *theme.Theme) Model {
	return Model{
		Orch:   orch,
		Worker: worker,
		Theme:  th,
		counts: map[string]metadata.FileMetadata{},
	}
}

func nextFrame() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return FrameMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return nextFrame()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case tea.KeyMsg:
		return m.handleKey(msg)

	case FrameMsg:
		m.drainResponses()
		m.drainCounts()
		m.maybeRequestCounts()
		return m, nextFrame()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	items := m.Orch.Playlist.Items()

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		m.Orch.Stop()
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(items)-1 {
			m.cursor++
		}

	case "K":
		if m.cursor > 0 {
			m.Orch.Playlist.Move(m.cursor, m.cursor-1)
			m.cursor--
		}

	case "J":
		if m.cursor < len(items)-1 {
			m.Orch.Playlist.Move(m.cursor, m.cursor+1)
			m.cursor++
		}

	case "enter":
		if m.cursor < len(items) {
			m.Orch.Playlist.Move(m.cursor, 0)
			m.cursor = 0
			m.Orch.PlayFileOnTop()
		}

	case "n":
		m.Orch.Next()
		if m.cursor > 0 {
			m.cursor--
		}

	case "s":
		if m.cursor < len(items) {
			m.Worker.Send(metadata.RecordStarEvent{Path: items[m.cursor].Path})
		}

	case " ":
		m.Orch.SetPlayMode(!m.Orch.PlayMode())
		if m.Orch.PlayMode() {
			m.status = "continuous play on"
		} else {
			m.status = "continuous play off"
		}

	case "x", "d":
		if m.cursor < len(items) {
			m.Orch.Playlist.Remove(m.cursor)
			if m.cursor >= m.Orch.Playlist.Len() && m.cursor > 0 {
				m.cursor--
			}
		}

	case "esc":
		m.Orch.Stop()
	}

	return m, nil
}

// drainResponses applies everything the scheduler reported since the
// last frame.
func (m *Model) drainResponses() {
	for {
		resp, ok := m.Orch.TakeResponse()
		if !ok {
			return
		}
		switch r := resp.(type) {
		case player.FilePlayStarted:
			m.playing = true
			m.playingPath = r.Path
			m.adjustedStart = time.Now()
			m.latestDuration = m.Orch.Playlist.DurationOf(r.Path)
			m.Worker.Send(metadata.RecordPlayEvent{Path: r.Path})

		case player.CurrentPlayTime:
			m.adjustedStart = time.Now().Add(-r.Time)

		case player.EndOfFile:
			m.playing = false
			m.Orch.Next()
			if m.cursor > 0 {
				m.cursor--
			}

		case player.FileCancelled:
			m.playing = false
		}
	}
}

func (m *Model) drainCounts() {
	if fresh, ok := m.Worker.TryResult(); ok {
		for p, md := range fresh {
			m.counts[p] = md
		}
	}
}

func (m *Model) maybeRequestCounts() {
	if time.Since(m.lastCountsReq) < countsInterval {
		return
	}
	m.lastCountsReq = time.Now()
	items := m.Orch.Playlist.Items()
	visible := make([]string, 0, len(items))
	for _, it := range items {
		visible = append(visible, it.Path)
	}
	m.Worker.Send(metadata.QueryPlayCounts{Visible: visible})
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	syms := m.Theme.Symbols
	title := m.Theme.TitleStyle()
	row := m.Theme.RowStyle()
	selected := m.Theme.SelectedStyle()
	playing := m.Theme.PlayingStyle()
	dim := m.Theme.MutedStyle()

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(title.Render("bookplayer"))
	out.WriteString("\n\n")

	items := m.Orch.Playlist.Items()
	if len(items) == 0 {
		out.WriteString(dim.Render("  playlist empty"))
		out.WriteString("\n")
	}
	for i, it := range items {
		marker := ' '
		if i == m.cursor {
			marker = syms.Cursor
		}
		state := syms.Stopped
		style := row
		if m.playing && it.Path == m.playingPath {
			state = syms.Playing
			style = playing
		} else if i == m.cursor {
			style = selected
		}

		dur := "--:--"
		if it.Duration != nil {
			dur = formatDuration(*it.Duration)
		}
		line := fmt.Sprintf("%c %c %-40s %8s", marker, state, truncate(it.Name, 40), dur)
		if md, ok := m.counts[it.Path]; ok {
			line += fmt.Sprintf("  %3d plays", md.PlayCount)
			if md.StarCount > 0 {
				line += fmt.Sprintf("  %c%d", syms.Star, md.StarCount)
			}
		}
		out.WriteString(style.Render(line))
		out.WriteString("\n")
	}

	out.WriteString("\n")
	out.WriteString(m.progressView())
	out.WriteString("\n\n")

	mode := "single"
	if m.Orch.PlayMode() {
		mode = "continuous"
	}
	help := fmt.Sprintf("jk:move  enter:play  n:next  s:star  space:mode(%s)  d:remove  esc:stop  q:quit", mode)
	out.WriteString(dim.Render(help))
	if m.status != "" {
		out.WriteString("\n")
		out.WriteString(dim.Render(m.status))
	}

	return out.String()
}

func (m Model) progressView() string {
	dim := m.Theme.MutedStyle()
	if !m.playing {
		return dim.Render("  stopped")
	}

	elapsed := time.Since(m.adjustedStart)
	if elapsed < 0 {
		elapsed = 0
	}
	total := m.latestDuration
	if total > 0 && elapsed > total {
		elapsed = total
	}

	width := 40
	filled := 0
	if total > 0 {
		filled = int(float64(width) * float64(elapsed) / float64(total))
		if filled > width {
			filled = width
		}
	}
	bar := strings.Repeat(string(m.Theme.Symbols.Progress), filled) +
		strings.Repeat(string(m.Theme.Symbols.Remain), width-filled)

	label := formatDuration(elapsed)
	if total > 0 {
		label += " / " + formatDuration(total)
	}
	return m.Theme.PlayingStyle().Render(fmt.Sprintf("  %s %s", bar, label))
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	min := int(d.Minutes())
	sec := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", min, sec)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
