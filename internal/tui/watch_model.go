package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/foxseedlab/tasktimer/internal/aggregate"
	"github.com/foxseedlab/tasktimer/internal/timesync"
)

// Controller is what the watch view needs from the sync client.
type Controller interface {
	Watch(ctx context.Context, taskID string, fn func(timesync.Reading)) error
	Start(ctx context.Context, taskID string) error
	Stop(ctx context.Context, taskID string) error
}

type readingMsg timesync.Reading

type tickMsg time.Time

type actionDoneMsg struct {
	label string
	err   error
}

type watchClosedMsg struct{}

// WatchModel shows one task's total and ticks the active part locally
// between readings.
type WatchModel struct {
	taskID   string
	ctrl     Controller
	readings <-chan timesync.Reading

	width   int
	reading *timesync.Reading
	now     time.Time
	status  string
	failed  bool
	busy    bool
}

func NewWatchModel(taskID string, ctrl Controller, readings <-chan timesync.Reading) WatchModel {
	return WatchModel{
		taskID:   taskID,
		ctrl:     ctrl,
		readings: readings,
		now:      time.Now(),
	}
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(waitForReading(m.readings), tick())
}

func waitForReading(ch <-chan timesync.Reading) tea.Cmd {
	return func() tea.Msg {
		r, ok := <-ch
		if !ok {
			return watchClosedMsg{}
		}
		return readingMsg(r)
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m WatchModel) runAction(label string, fn func(context.Context, string) error) tea.Cmd {
	taskID := m.taskID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return actionDoneMsg{label: label, err: fn(ctx, taskID)}
	}
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case readingMsg:
		r := timesync.Reading(msg)
		m.reading = &r
		return m, waitForReading(m.readings)

	case watchClosedMsg:
		return m, tea.Quit

	case tickMsg:
		m.now = time.Time(msg)
		return m, tick()

	case actionDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.label, msg.err)
			m.failed = true
		} else {
			m.status = msg.label + " ok"
			m.failed = false
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "s", "S":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "starting..."
			return m, m.runAction("start", m.ctrl.Start)
		case "x", "X":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "stopping..."
			return m, m.runAction("stop", m.ctrl.Stop)
		case "ctrl+c", "esc", "q":
			return m, tea.Quit
		}
	}
	return m, nil
}

// liveTotal adds the time passed since the reading to its active part.
func (m WatchModel) liveTotal() (total, active int64) {
	t := m.reading.Total
	total, active = t.TotalSeconds, t.ActiveSeconds
	if t.HasActiveSession && m.now.After(m.reading.At) {
		extra := int64(m.now.Sub(m.reading.At) / time.Second)
		total += extra
		active += extra
	}
	return total, active
}

func (m WatchModel) View() string {
	width := m.width
	if width <= 0 {
		width = 48
	}

	header := lipgloss.NewStyle().
		Foreground(lipgloss.Color(ColorAccentBright)).
		Bold(true).
		Render("TASK " + m.taskID)

	var body string
	switch {
	case m.reading == nil:
		body = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondaryText)).Render("loading...")
	case m.reading.Err != nil:
		body = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorWarning)).Render(m.reading.Display())
	default:
		total, active := m.liveTotal()
		clock := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPrimaryText)).Bold(true).
			Render(aggregate.FormatHMS(total))
		lines := []string{clock}
		if m.reading.Total.HasActiveSession {
			lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSuccess)).
				Render("running "+aggregate.FormatHMS(active)))
		} else {
			lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondaryText)).Render("stopped"))
		}
		body = strings.Join(lines, "\n")
	}

	card := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorBorder)).
		Padding(1, 2).
		Width(min(width-2, 46)).
		Render(lipgloss.JoinVertical(lipgloss.Left, header, "", body))

	statusColor := ColorSecondaryText
	if m.failed {
		statusColor = ColorError
	}
	status := lipgloss.NewStyle().Foreground(lipgloss.Color(statusColor)).Render(m.status)
	help := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelpText)).Render("s start • x stop • q quit")

	return lipgloss.JoinVertical(lipgloss.Left, card, status, help)
}

// RunWatchTUI renders the task until the user quits or ctx ends.
func RunWatchTUI(ctx context.Context, taskID string, ctrl Controller) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readings := make(chan timesync.Reading, 1)
	go func() {
		defer close(readings)
		_ = ctrl.Watch(ctx, taskID, func(r timesync.Reading) {
			select {
			case readings <- r:
			case <-ctx.Done():
			}
		})
	}()

	p := tea.NewProgram(NewWatchModel(taskID, ctrl, readings), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

type clientController struct {
	client *timesync.Client
}

// ClientController adapts the sync client to the watch view.
func ClientController(c *timesync.Client) Controller {
	return clientController{client: c}
}

func (c clientController) Watch(ctx context.Context, taskID string, fn func(timesync.Reading)) error {
	return c.client.Watch(ctx, taskID, fn)
}

func (c clientController) Start(ctx context.Context, taskID string) error {
	_, err := c.client.Start(ctx, taskID)
	return err
}

func (c clientController) Stop(ctx context.Context, taskID string) error {
	_, err := c.client.Stop(ctx, taskID)
	return err
}
