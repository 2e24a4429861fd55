package ui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"droidfleet/backend/app/dto"
)

// Client is a thin wrapper over the control-plane REST API. Long polls
// are a device concern; every call here is expected to answer quickly.
type Client struct {
	BaseURL string
	Token   string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) do(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Login authenticates an operator and stores the bearer token on the
// client for all subsequent calls.
func (c *Client) Login(username, password string) error {
	var resp dto.LoginResponse
	err := c.do(http.MethodPost, "/api/login", dto.LoginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return err
	}
	c.Token = resp.Token
	return nil
}

func (c *Client) ListDevices() ([]dto.DeviceListEntry, error) {
	var out []dto.DeviceListEntry
	return out, c.do(http.MethodGet, "/api/devices", nil, &out)
}

func (c *Client) CreateTask(req dto.CreateTaskRequest) (*TaskView, error) {
	var out TaskView
	return &out, c.do(http.MethodPost, "/api/tasks", req, &out)
}

func (c *Client) GetTask(id uint) (*TaskView, error) {
	var out TaskView
	return &out, c.do(http.MethodGet, fmt.Sprintf("/api/tasks/%d", id), nil, &out)
}

func (c *Client) CancelTask(id uint) error {
	return c.do(http.MethodPost, fmt.Sprintf("/api/tasks/%d/cancel", id), nil, nil)
}

func (c *Client) RetryTask(id uint) error {
	return c.do(http.MethodPost, fmt.Sprintf("/api/tasks/%d/retry", id), nil, nil)
}

func (c *Client) ClearQueue(code string) error {
	return c.do(http.MethodPost, fmt.Sprintf("/api/devices/%s/queue/clear", code), nil, nil)
}

// TaskView mirrors the task JSON the server renders.
type TaskView struct {
	ID             uint   `json:"ID"`
	Name           string `json:"Name"`
	Status         string `json:"Status"`
	TotalDevices   int    `json:"TotalDevices"`
	SuccessDevices int    `json:"SuccessDevices"`
	FailedDevices  int    `json:"FailedDevices"`
	FailureReason  string `json:"FailureReason"`
}
