// internal/tui/app.go
//
// The status browser. It uses bubbletea, which follows The Elm Architecture:
//
// 1. Model: the latest snapshot of assemblies and their run state
// 2. Update: a function that updates state based on messages
// 3. View: a function that renders state to a string
//
// The left pane lists mirrored assemblies, the right pane shows the tasks of
// the selected assembly's last run and the tail of its logbook. The snapshot
// refreshes on a timer so a running `pynome index` can be watched live.

package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const refreshInterval = 3 * time.Second

var (
	labelStyleDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyleRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStyleSkipped = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	detailTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	paneStyle         = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
)

type snapshotMsg struct {
	rows []Row
	err  error
}

type refreshRequest struct{}

// assemblyItem implements list.Item.
type assemblyItem struct {
	row Row
}

func (i assemblyItem) Title() string       { return i.row.Assembly.ScientificName() }
func (i assemblyItem) Description() string { return i.row.Dir.RootName() + " · " + i.row.Summary() }
func (i assemblyItem) FilterValue() string { return i.row.Assembly.ScientificName() }

// App is the bubbletea model of the status browser.
type App struct {
	load      Loader
	rows      []Row
	list      list.Model
	tasks     table.Model
	width     int
	height    int
	err       error
	statusMsg string
	loaded    bool
}

// NewApp builds the browser around a snapshot loader.
func NewApp(load Loader) *App {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Assemblies"
	l.SetShowHelp(false)
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Task", Width: 20},
			{Title: "Outcome", Width: 28},
			{Title: "Took", Width: 8},
		}),
		table.WithHeight(10),
		table.WithFocused(false),
	)
	return &App{load: load, list: l, tasks: t, statusMsg: "Loading…"}
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return a.fetchSnapshot()
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.list.SetSize(max(20, msg.Width/2-4), max(5, msg.Height-6))
		return a, nil

	case snapshotMsg:
		if msg.err != nil {
			a.err = msg.err
			a.statusMsg = fmt.Sprintf("Refresh failed: %v", msg.err)
			return a, a.scheduleRefresh()
		}
		a.err = nil
		a.loaded = true
		a.rows = msg.rows
		items := make([]list.Item, len(msg.rows))
		for i, row := range msg.rows {
			items[i] = assemblyItem{row: row}
		}
		cmd := a.list.SetItems(items)
		a.syncTasks()
		a.statusMsg = fmt.Sprintf("%d assemblies · updated %s", len(a.rows), time.Now().Format("15:04:05"))
		return a, tea.Batch(cmd, a.scheduleRefresh())

	case refreshRequest:
		return a, a.fetchSnapshot()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if a.list.FilterState() != list.Filtering {
				return a, tea.Quit
			}
		case "r":
			if a.list.FilterState() != list.Filtering {
				a.statusMsg = "Refreshing…"
				return a, a.fetchSnapshot()
			}
		}
	}

	var cmd tea.Cmd
	a.list, cmd = a.list.Update(msg)
	a.syncTasks()
	return a, cmd
}

// View renders the browser.
func (a *App) View() string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("PYNOME STATUS")
	if !a.loaded {
		body := a.statusMsg
		if a.err != nil {
			body = labelStyleFailed.Render(a.err.Error())
		}
		return lipgloss.JoinVertical(lipgloss.Left, header, body)
	}
	if len(a.rows) == 0 {
		note := detailTextStyle.Render("No assemblies mirrored yet. Run `pynome crawl` and `pynome mirror` first.")
		return lipgloss.JoinVertical(lipgloss.Left, header, note, a.footer())
	}

	half := max(30, a.width/2-2)
	left := paneStyle.Width(half).Render(a.list.View())
	right := paneStyle.Width(half).Render(a.renderDetail())
	body := lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, a.footer())
}

func (a *App) footer() string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(a.statusMsg + " · r refresh · / filter · q quit")
}

func (a *App) selected() (Row, bool) {
	item, ok := a.list.SelectedItem().(assemblyItem)
	if !ok {
		return Row{}, false
	}
	return item.row, true
}

func (a *App) syncTasks() {
	row, ok := a.selected()
	if !ok || !row.HasState {
		a.tasks.SetRows(nil)
		return
	}
	rows := make([]table.Row, 0, len(row.State.Tasks))
	for _, run := range row.State.Tasks {
		took := run.FinishedAt.Sub(run.StartedAt).Round(time.Second)
		rows = append(rows, table.Row{run.ID, string(run.Outcome), took.String()})
	}
	a.tasks.SetRows(rows)
}

func (a *App) renderDetail() string {
	row, ok := a.selected()
	if !ok {
		return detailTextStyle.Render("Select an assembly")
	}
	lines := []string{
		lipgloss.NewStyle().Bold(true).Render(row.Assembly.ScientificName()),
		detailTextStyle.Render(row.Dir.Path()),
	}
	if row.HasState {
		lines = append(lines,
			fmt.Sprintf("Run %s · %s", shortID(row.State.RunID), statusLabel(string(row.State.Status))),
			"",
			a.tasks.View(),
		)
		for _, run := range row.State.Tasks {
			if run.Error != "" {
				lines = append(lines, labelStyleFailed.Render(run.ID+": "+run.Error))
			}
		}
	} else {
		lines = append(lines, "", labelStyleSkipped.Render("never indexed"))
	}
	if len(row.Log) > 0 {
		lines = append(lines, "",
			labelStyleRunning.Render(fmt.Sprintf("LOG · last %d of %d", len(row.Log), row.LogTotal)),
			detailTextStyle.Render(strings.Join(row.Log, "\n")),
		)
	}
	return strings.Join(lines, "\n")
}

func statusLabel(status string) string {
	switch status {
	case "complete":
		return labelStyleDone.Render(status)
	case "failed":
		return labelStyleFailed.Render(status)
	case "running":
		return labelStyleRunning.Render(status)
	default:
		return labelStyleSkipped.Render(status)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (a *App) fetchSnapshot() tea.Cmd {
	load := a.load
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		rows, err := load(ctx)
		return snapshotMsg{rows: rows, err: err}
	}
}

func (a *App) scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshRequest{}
	})
}
