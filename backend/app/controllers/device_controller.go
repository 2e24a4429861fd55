package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"droidfleet/backend/app/dto"
	jwtutil "droidfleet/backend/app/jwt"
	"droidfleet/backend/app/middleware"
	"droidfleet/backend/app/models"
	"droidfleet/backend/app/repo"
	"droidfleet/backend/app/services"
	"droidfleet/backend/global"

	"github.com/google/uuid"
)

type DeviceController struct {
	Devices        *repo.DeviceRepository
	Tracker        *services.HeartbeatService
	Queue          *services.InstructionQueueService
	Signer         *jwtutil.Signer
	MaxPollSeconds int
}

func NewDeviceController(devices *repo.DeviceRepository, tracker *services.HeartbeatService, queue *services.InstructionQueueService, signer *jwtutil.Signer, maxPollSeconds int) *DeviceController {
	if maxPollSeconds <= 0 {
		maxPollSeconds = 60
	}
	return &DeviceController{Devices: devices, Tracker: tracker, Queue: queue, Signer: signer, MaxPollSeconds: maxPollSeconds}
}

// Register upserts the device record and hands back a device token.
func (c *DeviceController) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.DeviceRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		// First boot before the agent has persisted an identity.
		req.Code = uuid.NewString()
	}
	d := models.Device{
		Code:           req.Code,
		Name:           req.Name,
		Brand:          req.Brand,
		Model:          req.Model,
		AndroidVersion: req.AndroidVersion,
		AppVersion:     req.AppVersion,
		GroupID:        req.GroupID,
	}
	if err := c.Devices.Upsert(&d); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	token, err := c.Signer.SignDevice(d.Code)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, dto.DeviceRegisterResponse{DeviceID: d.ID, Code: d.Code, Token: token})
}

// deviceCode resolves the calling device: token claim first, explicit
// value second.
func (c *DeviceController) deviceCode(r *http.Request, explicit string) string {
	if claims := middleware.GetClaims(r.Context()); claims != nil && claims.DeviceCode != "" {
		return claims.DeviceCode
	}
	return explicit
}

func (c *DeviceController) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req dto.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	code := c.deviceCode(r, req.DeviceCode)
	if code == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := c.Tracker.RecordHeartbeat(r.Context(), code, req.Metrics); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Poll is the device long-poll: blocks until instructions arrive or
// the requested timeout (bounded by config) elapses.
func (c *DeviceController) Poll(w http.ResponseWriter, r *http.Request) {
	code := c.deviceCode(r, r.URL.Query().Get("device_code"))
	if code == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	timeout := 30
	if t := r.URL.Query().Get("timeout"); t != "" {
		if n, err := strconv.Atoi(t); err == nil && n > 0 {
			timeout = n
		}
	}
	if timeout > c.MaxPollSeconds {
		timeout = c.MaxPollSeconds
	}
	instructions, err := c.Queue.LongPoll(r.Context(), code, time.Duration(timeout)*time.Second)
	if err != nil {
		writeError(w, err)
		return
	}
	if instructions == nil {
		instructions = []dto.Instruction{}
	}
	writeJSON(w, http.StatusOK, dto.PollResponse{Instructions: instructions})
}

func (c *DeviceController) Metrics(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	metrics, err := c.Tracker.GetMetrics(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

// List returns all registered devices with live online state and
// queue depth for the dashboard.
func (c *DeviceController) List(w http.ResponseWriter, r *http.Request) {
	devices, err := c.Devices.ListAll()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	out := make([]dto.DeviceListEntry, 0, len(devices))
	for _, d := range devices {
		online, err := c.Tracker.IsOnline(r.Context(), d.Code)
		if err != nil {
			global.Logger.Warn().Err(err).Str("device_code", d.Code).Msg("online check failed")
		}
		qlen, err := c.Queue.Length(r.Context(), d.Code)
		if err != nil {
			global.Logger.Warn().Err(err).Str("device_code", d.Code).Msg("queue length failed")
		}
		out = append(out, dto.DeviceListEntry{
			ID:          d.ID,
			Code:        d.Code,
			Name:        d.Name,
			GroupID:     d.GroupID,
			Online:      online,
			QueueLength: qlen,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
