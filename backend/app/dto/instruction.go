package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type InstructionType string

const (
	InstructionExecuteScript InstructionType = "execute_script"
	InstructionStopScript    InstructionType = "stop_script"
	InstructionUpdateStatus  InstructionType = "update_status"
	InstructionCollectLog    InstructionType = "collect_log"
	InstructionRestartApp    InstructionType = "restart_app"
	InstructionUpdateApp     InstructionType = "update_app"
	InstructionPing          InstructionType = "ping"
)

type InstructionStatus string

const (
	StatusPending   InstructionStatus = "pending"
	StatusExecuting InstructionStatus = "executing"
	StatusExpired   InstructionStatus = "expired"
	StatusCancelled InstructionStatus = "cancelled"
	StatusCleared   InstructionStatus = "cleared"
)

const (
	MinTimeoutSeconds     = 1
	MaxTimeoutSeconds     = 3600
	DefaultTimeoutSeconds = 300
	MaxPriority           = 10
)

// Instruction is a single device-directed command. Immutable once
// enqueued; it travels through the store as flat JSON. Unknown fields
// are ignored on decode.
type Instruction struct {
	ID             string          `json:"instruction_id"`
	Type           InstructionType `json:"type"`
	Payload        map[string]any  `json:"payload,omitempty"`
	CreatedAt      int64           `json:"created_at"` // unix seconds
	TimeoutSeconds int             `json:"timeout_seconds"`
	Priority       int             `json:"priority"`
	TaskID         uint            `json:"task_id,omitempty"`
	ScriptID       uint            `json:"script_id,omitempty"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
}

// NewInstruction builds an instruction with a generated ID, current
// timestamp and default timeout.
func NewInstruction(typ InstructionType, payload map[string]any) Instruction {
	return Instruction{
		ID:             uuid.NewString(),
		Type:           typ,
		Payload:        payload,
		CreatedAt:      time.Now().Unix(),
		TimeoutSeconds: DefaultTimeoutSeconds,
	}
}

// IsExpired reports whether the instruction's timeout window has
// passed. Expiry is evaluated lazily at retrieval time.
func (i Instruction) IsExpired() bool {
	return time.Now().Unix() > i.CreatedAt+int64(i.TimeoutSeconds)
}

// Normalize fills generated and defaulted fields in place and checks
// the value constraints. Callers supply their own ID for idempotent
// enqueues.
func (i *Instruction) Normalize() error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.CreatedAt == 0 {
		i.CreatedAt = time.Now().Unix()
	}
	if i.TimeoutSeconds == 0 {
		i.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if i.TimeoutSeconds < MinTimeoutSeconds || i.TimeoutSeconds > MaxTimeoutSeconds {
		return errors.Errorf("timeout_seconds %d out of range [%d,%d]", i.TimeoutSeconds, MinTimeoutSeconds, MaxTimeoutSeconds)
	}
	if i.Priority < 0 || i.Priority > MaxPriority {
		return errors.Errorf("priority %d out of range [0,%d]", i.Priority, MaxPriority)
	}
	return i.validatePayload()
}

// validatePayload checks per-type required fields; open-ended fields
// stay in the generic map.
func (i *Instruction) validatePayload() error {
	switch i.Type {
	case InstructionExecuteScript:
		if i.ScriptID == 0 && !payloadHas(i.Payload, "script_id") {
			return errors.New("execute_script requires a script reference")
		}
	case InstructionStopScript:
		// stopping without a script reference means "stop whatever runs"
	case InstructionUpdateApp:
		if !payloadHas(i.Payload, "url") {
			return errors.New("update_app requires payload url")
		}
	case InstructionUpdateStatus, InstructionCollectLog, InstructionRestartApp, InstructionPing:
	default:
		return errors.Errorf("unknown instruction type %q", i.Type)
	}
	return nil
}

func payloadHas(p map[string]any, field string) bool {
	if p == nil {
		return false
	}
	v, ok := p[field]
	return ok && v != nil
}

// Encode serializes the instruction for transport through the store.
func (i Instruction) Encode() (string, error) {
	b, err := json.Marshal(i)
	if err != nil {
		return "", errors.Wrap(err, "encode instruction")
	}
	return string(b), nil
}

// DecodeInstruction parses a stored instruction. Extra fields are
// ignored; missing optional fields keep their zero values.
func DecodeInstruction(raw string) (Instruction, error) {
	var i Instruction
	if err := json.Unmarshal([]byte(raw), &i); err != nil {
		return Instruction{}, errors.Wrap(err, "decode instruction")
	}
	return i, nil
}
