package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"droidfleet/backend/app/dto"
	"droidfleet/backend/app/services"

	"github.com/google/uuid"
)

// QueueController exposes operator-side queue administration: one-off
// instruction sends, cancellation, clearing and inspection.
type QueueController struct {
	Queue *services.InstructionQueueService
}

func NewQueueController(queue *services.InstructionQueueService) *QueueController {
	return &QueueController{Queue: queue}
}

// Enqueue pushes a one-off instruction (ping, collect_log, ...) to a
// single device queue.
func (c *QueueController) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req dto.EnqueueInstructionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceCode == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.Instruction.ID == "" {
		req.Instruction.ID = uuid.NewString()
	}
	if err := c.Queue.Enqueue(r.Context(), req.DeviceCode, req.Instruction, req.Priority); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"instruction_id": req.Instruction.ID})
}

func (c *QueueController) Cancel(w http.ResponseWriter, r *http.Request) {
	deviceCode := r.URL.Query().Get("device_code")
	instructionID := r.PathValue("id")
	if deviceCode == "" || instructionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	found, err := c.Queue.Cancel(r.Context(), deviceCode, instructionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": found})
}

func (c *QueueController) Clear(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	n, err := c.Queue.Clear(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

// Preview returns queued instructions without consuming them.
func (c *QueueController) Preview(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	limit := int64(10)
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.ParseInt(l, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}
	instructions, err := c.Queue.Preview(r.Context(), code, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	length, err := c.Queue.Length(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"length": length, "instructions": instructions})
}

// Status reads one instruction's status record.
func (c *QueueController) Status(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	status, ok, err := c.Queue.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}
