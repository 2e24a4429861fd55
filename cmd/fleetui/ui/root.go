package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

type state int

const (
	stateLogin state = iota
	stateDashboard
	stateTaskForm
)

type RootModel struct {
	State     state
	Client    *Client
	Login     LoginModel
	Dashboard DashboardModel
	TaskForm  TaskFormModel
	Quitting  bool
	width     int
	height    int
}

func NewRootModel(client *Client) RootModel {
	return RootModel{
		State:  stateLogin,
		Client: client,
		Login:  NewLoginModel(client),
	}
}

func (m RootModel) Init() tea.Cmd {
	return m.Login.Init()
}

func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.Dashboard.Table.SetHeight(max(msg.Height-10, 5))

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.Quitting = true
			return m, tea.Quit
		}
	}

	switch m.State {
	case stateLogin:
		if _, ok := msg.(loginDoneMsg); ok {
			m.State = stateDashboard
			m.Dashboard = NewDashboardModel(m.Client, m.width, m.height)
			return m, m.Dashboard.Init()
		}
		m.Login, cmd = m.Login.Update(msg)

	case stateDashboard:
		if _, ok := msg.(NewTaskMsg); ok {
			m.State = stateTaskForm
			m.TaskForm = NewTaskFormModel(m.Client)
			return m, m.TaskForm.Init()
		}
		m.Dashboard, cmd = m.Dashboard.Update(msg)

	case stateTaskForm:
		if _, ok := msg.(BackToDashboardMsg); ok {
			m.State = stateDashboard
			return m, m.Dashboard.Init()
		}
		m.TaskForm, cmd = m.TaskForm.Update(msg)
	}

	return m, cmd
}

func (m RootModel) View() string {
	if m.Quitting {
		return "Bye!\n"
	}
	switch m.State {
	case stateLogin:
		return m.Login.View()
	case stateDashboard:
		return m.Dashboard.View()
	case stateTaskForm:
		return m.TaskForm.View()
	}
	return ""
}
