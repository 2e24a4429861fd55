package ui

import (
	"fmt"
	"strings"

	"droidfleet/backend/app/dto"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type devicesLoadedMsg []dto.DeviceListEntry

type queueClearedMsg struct{ code string }

// NewTaskMsg asks the root model to open the task form.
type NewTaskMsg struct{}

type DashboardModel struct {
	Client  *Client
	Table   table.Model
	Devices []dto.DeviceListEntry
	Status  string
	Err     error
}

func NewDashboardModel(c *Client, width, height int) DashboardModel {
	columns := []table.Column{
		{Title: "Code", Width: 24},
		{Title: "Name", Width: 20},
		{Title: "Group", Width: 8},
		{Title: "Online", Width: 8},
		{Title: "Queue", Width: 8},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(max(height-10, 5)),
	)

	st := table.DefaultStyles()
	st.Header = st.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	st.Selected = st.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(st)

	return DashboardModel{Client: c, Table: t}
}

func (m DashboardModel) Init() tea.Cmd {
	return m.refreshCmd()
}

func (m DashboardModel) refreshCmd() tea.Cmd {
	client := m.Client
	return func() tea.Msg {
		devices, err := client.ListDevices()
		if err != nil {
			return errMsg(err)
		}
		return devicesLoadedMsg(devices)
	}
}

func (m DashboardModel) Update(msg tea.Msg) (DashboardModel, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "r":
			m.Status = "refreshing..."
			return m, m.refreshCmd()
		case "n":
			return m, func() tea.Msg { return NewTaskMsg{} }
		case "c":
			if row := m.Table.SelectedRow(); len(row) > 0 {
				code := row[0]
				client := m.Client
				return m, func() tea.Msg {
					if err := client.ClearQueue(code); err != nil {
						return errMsg(err)
					}
					return queueClearedMsg{code: code}
				}
			}
		case "q":
			return m, tea.Quit
		}

	case devicesLoadedMsg:
		m.Err = nil
		m.Status = ""
		m.Devices = msg
		rows := make([]table.Row, 0, len(msg))
		for _, d := range msg {
			state := offlineStyle("offline")
			if d.Online {
				state = onlineStyle("online")
			}
			group := "-"
			if d.GroupID != 0 {
				group = fmt.Sprintf("%d", d.GroupID)
			}
			rows = append(rows, table.Row{d.Code, d.Name, group, state, fmt.Sprintf("%d", d.QueueLength)})
		}
		m.Table.SetRows(rows)

	case queueClearedMsg:
		m.Status = fmt.Sprintf("queue cleared for %s", msg.code)
		return m, m.refreshCmd()

	case errMsg:
		m.Err = msg
	}

	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m DashboardModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("DroidFleet - Devices") + "\n\n")
	b.WriteString(m.Table.View())
	b.WriteString("\n\n")
	b.WriteString(blurredStyle.Render("'r' refresh, 'n' new task, 'c' clear queue, 'q' quit"))
	if m.Status != "" {
		b.WriteString("\n" + statusMessageStyle(m.Status))
	}
	if m.Err != nil {
		b.WriteString("\n" + errorMessageStyle(m.Err.Error()))
	}
	return b.String()
}
