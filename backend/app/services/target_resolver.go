package services

import (
	"droidfleet/backend/app/models"

	"github.com/pkg/errors"
)

// DeviceSource lists registry devices for target expansion.
type DeviceSource interface {
	ListAll() ([]models.Device, error)
	ListByGroup(groupID uint) ([]models.Device, error)
	FindByIDs(ids []uint) ([]models.Device, error)
}

// TargetResolver expands a task's abstract target into concrete
// devices. It does not filter by online status: offline devices still
// receive queued work for when they return; whoever wants online-only
// fan-out filters afterwards.
type TargetResolver struct {
	devices DeviceSource
}

func NewTargetResolver(devices DeviceSource) *TargetResolver {
	return &TargetResolver{devices: devices}
}

func (r *TargetResolver) Resolve(task *models.Task) ([]models.Device, error) {
	switch task.TargetType {
	case models.TargetAll:
		out, err := r.devices.ListAll()
		return out, errors.Wrap(err, "list all devices")
	case models.TargetGroup:
		if task.TargetGroupID == 0 {
			return nil, errors.Wrap(ErrValidation, "group target without group id")
		}
		out, err := r.devices.ListByGroup(task.TargetGroupID)
		return out, errors.Wrapf(err, "list group %d", task.TargetGroupID)
	case models.TargetSpecific:
		ids := task.DeviceIDs()
		if len(ids) == 0 {
			// Malformed or missing ID list resolves to no devices, not
			// an error; dispatch records the business failure.
			return nil, nil
		}
		out, err := r.devices.FindByIDs(ids)
		return out, errors.Wrap(err, "find devices by id")
	default:
		return nil, errors.Wrapf(ErrValidation, "unknown target type %q", task.TargetType)
	}
}
