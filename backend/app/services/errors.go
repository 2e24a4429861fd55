package services

import "github.com/pkg/errors"

// Domain errors. Not-found and validation errors are caller mistakes
// surfaced immediately; anything else coming out of a service is
// transient infrastructure trouble and safe to retry. Business
// failures (no targets, all enqueues failed) are recorded on the task
// instead of being returned.
var (
	ErrDeviceNotFound    = errors.New("device not found")
	ErrTaskNotFound      = errors.New("task not found")
	ErrGroupNotFound     = errors.New("group not found")
	ErrScriptNotFound    = errors.New("script not found")
	ErrInvalidTransition = errors.New("invalid task status transition")
	ErrValidation        = errors.New("validation failed")
)
