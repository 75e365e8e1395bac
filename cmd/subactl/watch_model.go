package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joshuapare/suballoc/suballoc"
)

// watchKeyMap defines the watch view shortcuts
type watchKeyMap struct {
	Quit  key.Binding
	Pause key.Binding
	Drain key.Binding
	Up    key.Binding
	Down  key.Binding
}

func defaultWatchKeys() watchKeyMap {
	return watchKeyMap{
		Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Pause: key.NewBinding(key.WithKeys("p", " "), key.WithHelp("p", "pause")),
		Drain: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "drain idle")),
		Up:    key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "scroll up")),
		Down:  key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "scroll down")),
	}
}

type tickMsg time.Time

// watchModel renders a live view of one manager.
type watchModel struct {
	mgr      *suballoc.Manager
	keys     watchKeyMap
	interval time.Duration

	ranges viewport.Model
	width  int
	height int

	snap    suballoc.Report
	stats   suballoc.Stats
	paused  bool
	drained int
}

func newWatchModel(m *suballoc.Manager, interval time.Duration) watchModel {
	w := watchModel{
		mgr:      m,
		keys:     defaultWatchKeys(),
		interval: interval,
		ranges:   viewport.New(80, 10),
		width:    80,
		height:   20,
	}
	w.refresh()
	return w
}

func (w watchModel) tick() tea.Cmd {
	return tea.Tick(w.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts the refresh ticker
func (w watchModel) Init() tea.Cmd {
	return w.tick()
}

func (w *watchModel) refresh() {
	w.snap = w.mgr.Snapshot(0)
	w.stats = w.mgr.Stats()
	w.ranges.SetContent(w.rangeLines())
}

func (w watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if !w.paused {
			w.refresh()
		}
		return w, w.tick()

	case tea.WindowSizeMsg:
		w.width, w.height = msg.Width, msg.Height
		w.ranges.Width = max(msg.Width-4, 10)
		// header, map pane, stats and status take 8 lines
		w.ranges.Height = max(msg.Height-8, 3)
		w.ranges.SetContent(w.rangeLines())
		return w, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, w.keys.Quit):
			return w, tea.Quit
		case key.Matches(msg, w.keys.Pause):
			w.paused = !w.paused
			return w, nil
		case key.Matches(msg, w.keys.Drain):
			w.drained += w.mgr.DrainIdle()
			w.refresh()
			return w, nil
		}
	}

	var cmd tea.Cmd
	w.ranges, cmd = w.ranges.Update(msg)
	return w, cmd
}

func (w watchModel) View() string {
	title := fmt.Sprintf("subactl watch: %s  %d bytes, align %d", w.snap.Name, w.snap.Size, w.snap.Align)
	if w.paused {
		title += "  [paused]"
	}

	mapWidth := max(w.width-4, 10)
	st := w.stats
	summary := fmt.Sprintf("used %d / %d (peak %d)  live %d  waiters %d  idle %d\n"+
		"allocs %d  reclaimed %d  waits %d  deferred %d  drained %d",
		w.snap.Used, w.snap.Size, st.PeakInUse, len(w.snap.Ranges), w.snap.Waiters, w.snap.IdleQueued,
		st.Allocs, st.Reclaimed, st.Waits, st.Deferred, st.Drained)

	status := "q quit · p pause · d drain idle · ↑/↓ scroll"
	if w.drained > 0 {
		status += fmt.Sprintf(" · drained %d by hand", w.drained)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render(title),
		paneStyle.Render(w.rangeMap(mapWidth)+"\n"+summary),
		w.ranges.View(),
		statusStyle.Render(status),
	)
}

// rangeMap draws the managed range as cells of size/width bytes: used,
// pending on a fence, or free.
func (w watchModel) rangeMap(width int) string {
	if w.snap.Size == 0 || width <= 0 {
		return ""
	}
	const (
		free = iota
		used
		pending
	)
	cells := make([]int, width)
	per := float64(w.snap.Size) / float64(width)
	for _, r := range w.snap.Ranges {
		state := used
		if r.Fence != nil {
			state = pending
		}
		lo := int(float64(r.Start-w.snap.Base) / per)
		hi := int(float64(r.End-w.snap.Base-1) / per)
		for i := lo; i <= hi && i < width; i++ {
			cells[i] = max(cells[i], state)
		}
	}

	var b strings.Builder
	for _, c := range cells {
		switch c {
		case used:
			b.WriteString(usedCellStyle.Render("█"))
		case pending:
			b.WriteString(pendingCellStyle.Render("▒"))
		default:
			b.WriteString(freeCellStyle.Render("·"))
		}
	}
	return b.String()
}

func (w watchModel) rangeLines() string {
	var b strings.Builder
	for _, r := range w.snap.Ranges {
		fmt.Fprintf(&b, "[0x%010x 0x%010x] %8d", r.Start, r.End, r.Size)
		if r.Fence != nil {
			fmt.Fprintf(&b, "  fence %d#%d", r.Fence.Context, r.Fence.Seqno)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
