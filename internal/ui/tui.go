package ui

// Live discovery view: a scan runs in a background goroutine and feeds
// the model through program messages, so the UI never touches session
// state directly.

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tturner/bacscan/internal/bacclient"
)

type progressMsg bacclient.Progress

type resultMsg struct {
	ids   []uint32
	state bacclient.State
	err   error
}

type scanModel struct {
	budgetSeconds int64
	elapsed       int64
	devices       []bacclient.DeviceRecord

	done   bool
	state  bacclient.State
	ids    []uint32
	err    error
	copied bool

	cancel   context.CancelFunc
	quitting bool
}

func newScanModel(budgetSeconds int64, cancel context.CancelFunc) scanModel {
	return scanModel{budgetSeconds: budgetSeconds, cancel: cancel}
}

func (m scanModel) Init() tea.Cmd {
	return nil
}

func (m scanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		m.elapsed = msg.ElapsedSeconds
		m.devices = msg.Devices
		return m, nil

	case resultMsg:
		m.done = true
		m.ids = msg.ids
		m.state = msg.state
		m.err = msg.err
		if m.quitting {
			return m, tea.Quit
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.done {
				return m, tea.Quit
			}
			// Close the collect window and wait for the session to
			// deliver its final result.
			m.quitting = true
			m.cancel()
			return m, nil
		case "c":
			if m.done && len(m.ids) > 0 {
				m.copied = clipboard.WriteAll(idList(m.ids)) == nil
			}
			return m, nil
		}
	}
	return m, nil
}

func (m scanModel) View() string {
	titleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	metaStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	stateStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	frameStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("8")).
		Padding(0, 1)

	var b strings.Builder
	b.WriteString(titleStyle.Render("BACnet discovery"))
	b.WriteString("\n")

	if m.done {
		b.WriteString(stateStyle.Render(fmt.Sprintf("Finished: %s", m.state)))
		if m.err != nil {
			b.WriteString(metaStyle.Render(fmt.Sprintf("  (%v)", m.err)))
		}
	} else {
		b.WriteString(metaStyle.Render(fmt.Sprintf("Collecting replies: %ds / %ds", m.elapsed, m.budgetSeconds)))
	}
	b.WriteString("\n\n")

	devices := m.devices
	if m.done {
		devices = finalDevices(m.devices, m.ids)
	}
	if len(devices) == 0 {
		b.WriteString(metaStyle.Render("No devices yet"))
		b.WriteString("\n")
	} else {
		b.WriteString(fmt.Sprintf("%-10s %-24s %s\n", "Device", "Address", "MaxAPDU"))
		for _, rec := range devices {
			b.WriteString(fmt.Sprintf("%-10d %-24s %d\n", rec.DeviceID, rec.Address, rec.MaxAPDU))
		}
	}

	b.WriteString("\n")
	if m.done {
		help := "q quit"
		if len(m.ids) > 0 {
			help += "  •  c copy device IDs"
		}
		if m.copied {
			help += "  (copied)"
		}
		b.WriteString(metaStyle.Render(help))
	} else if m.quitting {
		b.WriteString(metaStyle.Render("stopping..."))
	} else {
		b.WriteString(metaStyle.Render("q stop early"))
	}

	return frameStyle.Render(b.String()) + "\n"
}

// finalDevices keeps the last progress snapshot unless the result
// carries devices the snapshot missed.
func finalDevices(snapshot []bacclient.DeviceRecord, ids []uint32) []bacclient.DeviceRecord {
	if len(snapshot) >= len(ids) {
		return snapshot
	}
	devices := make([]bacclient.DeviceRecord, len(ids))
	for i, id := range ids {
		devices[i] = bacclient.DeviceRecord{DeviceID: id}
	}
	return devices
}

func idList(ids []uint32) string {
	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "%d\n", id)
	}
	return b.String()
}

// RunLive drives a discovery session behind the live view. The session
// must not have been started; RunLive owns it until the program exits.
func RunLive(ctx context.Context, cancel context.CancelFunc, sess *bacclient.Session, budgetSeconds int64) ([]uint32, bacclient.State, error) {
	p := tea.NewProgram(newScanModel(budgetSeconds, cancel))

	sess.SetObserver(func(pr bacclient.Progress) {
		p.Send(progressMsg(pr))
	})
	go func() {
		ids, state, err := sess.Run(ctx)
		p.Send(resultMsg{ids: ids, state: state, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		cancel()
		return nil, bacclient.StateRunning, fmt.Errorf("run interface: %w", err)
	}

	m := final.(scanModel)
	if !m.done {
		// The program exited before the session finished (terminal
		// teardown); stop the session and report what we have.
		cancel()
		return nil, bacclient.StateRunning, fmt.Errorf("interface closed before the session finished")
	}
	return m.ids, m.state, m.err
}
