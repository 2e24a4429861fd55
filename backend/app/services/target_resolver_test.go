package services

import (
	"testing"

	"droidfleet/backend/app/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDeviceSource struct {
	all    []models.Device
	groups map[uint][]models.Device
}

func (s *stubDeviceSource) ListAll() ([]models.Device, error) { return s.all, nil }

func (s *stubDeviceSource) ListByGroup(groupID uint) ([]models.Device, error) {
	return s.groups[groupID], nil
}

func (s *stubDeviceSource) FindByIDs(ids []uint) ([]models.Device, error) {
	want := make(map[uint]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []models.Device
	for _, d := range s.all {
		if want[d.ID] {
			out = append(out, d)
		}
	}
	return out, nil
}

func testFleet() *stubDeviceSource {
	d1 := models.Device{ID: 1, Code: "dev-1", GroupID: 10}
	d2 := models.Device{ID: 2, Code: "dev-2", GroupID: 10}
	d3 := models.Device{ID: 3, Code: "dev-3", GroupID: 20}
	return &stubDeviceSource{
		all:    []models.Device{d1, d2, d3},
		groups: map[uint][]models.Device{10: {d1, d2}, 20: {d3}},
	}
}

func TestResolveAll(t *testing.T) {
	r := NewTargetResolver(testFleet())
	got, err := r.Resolve(&models.Task{TargetType: models.TargetAll})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestResolveGroup(t *testing.T) {
	r := NewTargetResolver(testFleet())
	task := &models.Task{}
	task.SetTargetGroup(10)
	got, err := r.Resolve(task)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestResolveGroupWithoutID(t *testing.T) {
	r := NewTargetResolver(testFleet())
	_, err := r.Resolve(&models.Task{TargetType: models.TargetGroup})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestResolveSpecific(t *testing.T) {
	r := NewTargetResolver(testFleet())
	task := &models.Task{}
	task.SetTargetDevices([]uint{1, 3})
	got, err := r.Resolve(task)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint(1), got[0].ID)
	assert.Equal(t, uint(3), got[1].ID)
}

func TestResolveSpecificMalformedList(t *testing.T) {
	r := NewTargetResolver(testFleet())
	task := &models.Task{TargetType: models.TargetSpecific, TargetDeviceIDs: "{broken"}
	got, err := r.Resolve(task)
	require.NoError(t, err, "malformed list resolves to empty, not an error")
	assert.Empty(t, got)
}

func TestResolveUnknownTargetType(t *testing.T) {
	r := NewTargetResolver(testFleet())
	_, err := r.Resolve(&models.Task{TargetType: "planet"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTargetNormalization(t *testing.T) {
	task := &models.Task{}
	task.SetTargetDevices([]uint{1, 2})
	task.SetTargetGroup(10)
	assert.Empty(t, task.TargetDeviceIDs, "selecting a group clears the device list")

	task.SetTargetDevices([]uint{3})
	assert.Zero(t, task.TargetGroupID, "selecting devices clears the group")
}
