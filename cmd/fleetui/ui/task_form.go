package ui

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"droidfleet/backend/app/dto"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type taskCreatedMsg struct{ task *TaskView }

// BackToDashboardMsg asks the root model to leave the form.
type BackToDashboardMsg struct{}

const (
	fieldName = iota
	fieldScriptID
	fieldTaskType
	fieldTargetType
	fieldTarget
	fieldPriority
	fieldMaxRetries
	fieldSchedule
	fieldParameters
	fieldCount
)

// TaskFormModel collects one task creation request. The target field is
// overloaded: a group ID for group targets, a comma separated device ID
// list for specific targets, ignored for "all".
type TaskFormModel struct {
	Client   *Client
	Inputs   []textinput.Model
	FocusIdx int
	Created  *TaskView
	Err      error
}

func NewTaskFormModel(c *Client) TaskFormModel {
	inputs := make([]textinput.Model, fieldCount)
	mk := func(idx int, prompt, placeholder string) {
		inputs[idx] = textinput.New()
		inputs[idx].Prompt = prompt
		inputs[idx].Placeholder = placeholder
	}
	mk(fieldName, "Name: ", "restart app on lab devices")
	mk(fieldScriptID, "Script ID: ", "1")
	mk(fieldTaskType, "Type: ", "immediate | scheduled | recurring")
	mk(fieldTargetType, "Target: ", "all | group | specific")
	mk(fieldTarget, "Group ID / device IDs: ", "3  or  1,2,5")
	mk(fieldPriority, "Priority (0-10): ", "0")
	mk(fieldMaxRetries, "Max retries: ", "0")
	mk(fieldSchedule, "Schedule: ", "RFC3339 time or cron expression")
	mk(fieldParameters, "Parameters (JSON): ", `{"loops": 3}`)
	inputs[fieldName].Focus()

	return TaskFormModel{Client: c, Inputs: inputs}
}

func (m TaskFormModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m TaskFormModel) Update(msg tea.Msg) (TaskFormModel, tea.Cmd) {
	cmds := make([]tea.Cmd, len(m.Inputs))

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEsc:
			return m, func() tea.Msg { return BackToDashboardMsg{} }
		case tea.KeyEnter:
			if m.FocusIdx == len(m.Inputs)-1 {
				return m, m.submitCmd()
			}
			m.nextInput()
		case tea.KeyTab, tea.KeyDown:
			m.nextInput()
		case tea.KeyShiftTab, tea.KeyUp:
			m.prevInput()
		}

	case taskCreatedMsg:
		m.Err = nil
		m.Created = msg.task

	case errMsg:
		m.Err = msg
	}

	for i := range m.Inputs {
		m.Inputs[i], cmds[i] = m.Inputs[i].Update(msg)
	}
	return m, tea.Batch(cmds...)
}

func (m *TaskFormModel) nextInput() {
	m.Inputs[m.FocusIdx].Blur()
	m.FocusIdx = (m.FocusIdx + 1) % len(m.Inputs)
	m.Inputs[m.FocusIdx].Focus()
}

func (m *TaskFormModel) prevInput() {
	m.Inputs[m.FocusIdx].Blur()
	m.FocusIdx--
	if m.FocusIdx < 0 {
		m.FocusIdx = len(m.Inputs) - 1
	}
	m.Inputs[m.FocusIdx].Focus()
}

func (m TaskFormModel) buildRequest() (dto.CreateTaskRequest, error) {
	req := dto.CreateTaskRequest{
		Name:       m.Inputs[fieldName].Value(),
		TaskType:   strings.TrimSpace(m.Inputs[fieldTaskType].Value()),
		TargetType: strings.TrimSpace(m.Inputs[fieldTargetType].Value()),
	}

	if v := m.Inputs[fieldScriptID].Value(); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return req, fmt.Errorf("script id: %w", err)
		}
		req.ScriptID = uint(id)
	}

	target := strings.TrimSpace(m.Inputs[fieldTarget].Value())
	switch req.TargetType {
	case "group":
		id, err := strconv.ParseUint(target, 10, 32)
		if err != nil {
			return req, fmt.Errorf("group id: %w", err)
		}
		req.TargetGroupID = uint(id)
	case "specific":
		for _, part := range strings.Split(target, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseUint(part, 10, 32)
			if err != nil {
				return req, fmt.Errorf("device id %q: %w", part, err)
			}
			req.TargetDeviceIDs = append(req.TargetDeviceIDs, uint(id))
		}
	}

	if v := m.Inputs[fieldPriority].Value(); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("priority: %w", err)
		}
		req.Priority = n
	}
	if v := m.Inputs[fieldMaxRetries].Value(); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("max retries: %w", err)
		}
		req.MaxRetries = n
	}

	schedule := strings.TrimSpace(m.Inputs[fieldSchedule].Value())
	switch req.TaskType {
	case "scheduled":
		req.ScheduledTime = schedule
	case "recurring":
		req.CronExpression = schedule
	}

	if v := strings.TrimSpace(m.Inputs[fieldParameters].Value()); v != "" {
		if !json.Valid([]byte(v)) {
			return req, fmt.Errorf("parameters must be valid JSON")
		}
		req.Parameters = json.RawMessage(v)
	}
	return req, nil
}

func (m TaskFormModel) submitCmd() tea.Cmd {
	req, err := m.buildRequest()
	if err != nil {
		return func() tea.Msg { return errMsg(err) }
	}
	client := m.Client
	return func() tea.Msg {
		task, err := client.CreateTask(req)
		if err != nil {
			return errMsg(err)
		}
		return taskCreatedMsg{task: task}
	}
}

func (m TaskFormModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("DroidFleet - New Task") + "\n\n")
	for i := range m.Inputs {
		b.WriteString(m.Inputs[i].View())
		b.WriteRune('\n')
	}
	b.WriteString("\n")
	b.WriteString(blurredStyle.Render("Tab to change fields, Enter on the last field to submit, Esc to go back"))

	if m.Created != nil {
		b.WriteString("\n\n" + statusMessageStyle(fmt.Sprintf(
			"task %d created: %s (%d devices)", m.Created.ID, m.Created.Status, m.Created.TotalDevices)))
	}
	if m.Err != nil {
		b.WriteString("\n\n" + errorMessageStyle(m.Err.Error()))
	}
	return b.String()
}
